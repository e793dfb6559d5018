package vault

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type (
	// UserProfile is the signed-in user as returned by the API at login or refresh.
	UserProfile struct {
		ID          string         `json:"id"`
		Email       string         `json:"email,omitempty"`
		Name        string         `json:"name,omitempty"`
		Role        string         `json:"role,omitempty"`
		Permissions []string       `json:"permissions,omitempty"`
		Attributes  map[string]any `json:"attributes,omitempty"`
	}

	// Record is the persisted credential: the bearer token, the user it belongs to and,
	// for OAuth2 style APIs, the refresh token.
	Record struct {
		Token        string       `json:"token,omitempty"`
		User         *UserProfile `json:"user,omitempty"`
		RefreshToken string       `json:"refreshToken,omitempty"`
	}
)

// HasToken reports whether r carries a bearer token.
func (r *Record) HasToken() bool {
	return r != nil && r.Token != ""
}

// ExpiresAt returns the exp claim when the token is a JWT. The signature is not verified:
// the value is only used to refresh ahead of the server rejecting the token.
func (r *Record) ExpiresAt() (time.Time, bool) {
	if !r.HasToken() {
		return time.Time{}, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(r.Token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Expired reports a JWT whose exp has passed, allowing leeway. Opaque tokens never expire here.
func (r *Record) Expired(now time.Time, leeway time.Duration) bool {
	expiresAt, ok := r.ExpiresAt()
	if !ok {
		return false
	}
	return !now.Add(leeway).Before(expiresAt)
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	ret := *r
	if r.User != nil {
		user := *r.User
		user.Permissions = append([]string(nil), r.User.Permissions...)
		if r.User.Attributes != nil {
			user.Attributes = make(map[string]any, len(r.User.Attributes))
			for k, v := range r.User.Attributes {
				user.Attributes[k] = v
			}
		}
		ret.User = &user
	}
	return &ret
}
