package transport

import (
	"net/http"
)

// cookieWrap sends the session cookies held in jar and stores the ones the API sets, so the
// credential transport keeps the session without an http.Client level jar. Cookies already
// present on the request win.
type cookieWrap struct {
	inner http.RoundTripper
	jar   http.CookieJar
}

// WrapWithCookieJar returns inner bound to jar; wrapping twice with the same jar is a no-op.
func WrapWithCookieJar(inner http.RoundTripper, jar http.CookieJar) http.RoundTripper {
	if jar == nil || inner == nil {
		return inner
	}
	if wrapped, ok := inner.(*cookieWrap); ok && wrapped.jar == jar {
		return inner
	}
	return &cookieWrap{inner: inner, jar: jar}
}

func (w *cookieWrap) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for _, c := range w.jar.Cookies(clone.URL) {
		if _, err := clone.Cookie(c.Name); err == nil {
			continue
		}
		clone.AddCookie(c)
	}
	resp, err := w.inner.RoundTrip(clone)
	if err != nil {
		return nil, err
	}
	if cookies := resp.Cookies(); len(cookies) > 0 {
		w.jar.SetCookies(clone.URL, cookies)
	}
	return resp, nil
}
