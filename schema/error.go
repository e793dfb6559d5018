package schema

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorNetworkTimeout     = "NETWORK_TIMEOUT"
	ErrorNetworkUnavailable = "NETWORK_UNAVAILABLE"
	ErrorAuthExpired        = "AUTH_EXPIRED"
	ErrorAuthFailed         = "AUTH_FAILED"
	ErrorAuthRetryExhausted = "AUTH_RETRY_EXHAUSTED"
	ErrorAuthLoggedOut      = "AUTH_LOGGED_OUT"
	ErrorRequestRejected    = "REQUEST_REJECTED"
	ErrorServer             = "SERVER_ERROR"
	ErrorInvalidRequest     = "INVALID_REQUEST"
)

// DefaultLoginPath is the redirect target attached to fatal auth errors.
const DefaultLoginPath = "/login"

const (
	metaRedirect = "redirect"
	metaErrors   = "errors"
)

// NewTransientError wraps a dispatch failure (timeout, refused connection, reset).
func NewTransientError(source error, metadata map[string]any) *goerrors.Error {
	textCode := ErrorNetworkUnavailable
	message := "network unavailable"
	if isTimeout(source) {
		textCode = ErrorNetworkTimeout
		message = "request timed out"
	}
	ret := newError(message, goerrors.CategoryExternal, textCode, http.StatusBadGateway, source)
	if textCode == ErrorNetworkTimeout {
		ret.Code = http.StatusGatewayTimeout
	}
	if len(metadata) > 0 {
		ret.WithMetadata(metadata)
	}
	return ret
}

// NewAuthExpired signals a 401 that is eligible for the refresh protocol.
func NewAuthExpired() *goerrors.Error {
	return newError("credential expired", goerrors.CategoryAuth, ErrorAuthExpired, http.StatusUnauthorized, nil)
}

// NewAuthFailed is the fatal outcome of a rejected refresh; callers should redirect to login.
func NewAuthFailed(source error, redirect string) *goerrors.Error {
	if redirect == "" {
		redirect = DefaultLoginPath
	}
	ret := newError("authentication failed", goerrors.CategoryAuth, ErrorAuthFailed, http.StatusUnauthorized, source)
	return ret.WithMetadata(map[string]any{metaRedirect: redirect})
}

// NewRetryExhausted reports a request rejected again after a successful refresh.
func NewRetryExhausted(response *Response) *goerrors.Error {
	message := "request unauthorized after credential refresh"
	if response != nil {
		if serverMessage := extractMessage(response); serverMessage != "" {
			message = serverMessage
		}
	}
	return newError(message, goerrors.CategoryAuth, ErrorAuthRetryExhausted, http.StatusUnauthorized, nil)
}

// NewLoggedOut rejects callers that were waiting on a refresh when the session ended.
func NewLoggedOut() *goerrors.Error {
	return newError("session ended", goerrors.CategoryAuth, ErrorAuthLoggedOut, http.StatusUnauthorized, nil)
}

// NewInvalidRequest reports a request that could not be built locally.
func NewInvalidRequest(source error, message string) *goerrors.Error {
	return newError(message, goerrors.CategoryBadInput, ErrorInvalidRequest, http.StatusBadRequest, source)
}

// NewStatusError maps a non-2xx response to the error taxonomy, keeping the server message verbatim.
func NewStatusError(response *Response) *goerrors.Error {
	status := response.StatusCode
	message := extractMessage(response)
	if message == "" {
		message = http.StatusText(status)
	}
	if status == http.StatusUnauthorized {
		return NewAuthExpired()
	}
	var ret *goerrors.Error
	if status >= http.StatusInternalServerError {
		ret = newError(message, goerrors.CategoryExternal, ErrorServer, status, nil)
	} else {
		ret = newError(message, statusCategory(status), ErrorRequestRejected, status, nil)
	}
	if fieldErrors := extractFieldErrors(response); len(fieldErrors) > 0 {
		ret.WithMetadata(map[string]any{metaErrors: fieldErrors})
	}
	return ret
}

func newError(message string, category goerrors.Category, textCode string, code int, source error) *goerrors.Error {
	ret := goerrors.New(message, category).
		WithTextCode(textCode).
		WithCode(code)
	ret.Source = source
	return ret
}

func statusCategory(status int) goerrors.Category {
	switch status {
	case http.StatusForbidden:
		return goerrors.CategoryAuthz
	case http.StatusNotFound:
		return goerrors.CategoryNotFound
	case http.StatusConflict:
		return goerrors.CategoryConflict
	case http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case http.StatusBadRequest:
		return goerrors.CategoryBadInput
	default:
		return goerrors.CategoryValidation
	}
}

func extractMessage(response *Response) string {
	if response == nil || len(response.Body) == 0 || !json.Valid(response.Body) {
		return ""
	}
	var body struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(response.Body, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	if len(body.Error) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(body.Error, &text); err == nil {
		return text
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body.Error, &nested); err == nil {
		return nested.Message
	}
	return ""
}

func extractFieldErrors(response *Response) []any {
	if response == nil || len(response.Body) == 0 || !json.Valid(response.Body) {
		return nil
	}
	var body struct {
		Errors []any `json:"errors"`
	}
	if err := json.Unmarshal(response.Body, &body); err != nil {
		return nil
	}
	return body.Errors
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func asError(err error) (*goerrors.Error, bool) {
	var ret *goerrors.Error
	if err == nil || !goerrors.As(err, &ret) {
		return nil, false
	}
	return ret, true
}

// TextCode returns the taxonomy code of err, or "".
func TextCode(err error) string {
	if ret, ok := asError(err); ok {
		return ret.TextCode
	}
	return ""
}

// StatusCode returns the HTTP status associated with err, or 0.
func StatusCode(err error) int {
	if ret, ok := asError(err); ok {
		return ret.Code
	}
	return 0
}

// IsAuthFailed reports a terminal authentication failure.
func IsAuthFailed(err error) bool {
	switch TextCode(err) {
	case ErrorAuthFailed, ErrorAuthRetryExhausted, ErrorAuthLoggedOut:
		return true
	}
	return false
}

// IsAuthExpired reports a 401 that has not been through the refresh protocol.
func IsAuthExpired(err error) bool {
	return TextCode(err) == ErrorAuthExpired
}

// IsTransient reports a timeout or connectivity failure.
func IsTransient(err error) bool {
	switch TextCode(err) {
	case ErrorNetworkTimeout, ErrorNetworkUnavailable:
		return true
	}
	return false
}

// IsTimeout reports a dispatch that exceeded its deadline.
func IsTimeout(err error) bool {
	return TextCode(err) == ErrorNetworkTimeout
}

// RedirectTarget returns the login redirect carried by a fatal auth error.
func RedirectTarget(err error) (string, bool) {
	ret, ok := asError(err)
	if !ok || ret.TextCode != ErrorAuthFailed {
		return "", false
	}
	target, _ := ret.Metadata[metaRedirect].(string)
	return target, target != ""
}

// FieldErrors returns server supplied validation details, if any.
func FieldErrors(err error) []any {
	ret, ok := asError(err)
	if !ok {
		return nil
	}
	fieldErrors, _ := ret.Metadata[metaErrors].([]any)
	return fieldErrors
}

// ResponseMessage returns the human-readable message of an error, stripped of taxonomy decoration.
func ResponseMessage(err error) string {
	if ret, ok := asError(err); ok {
		return strings.TrimSpace(ret.Message)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
