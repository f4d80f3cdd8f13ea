package session

import (
	"net"
	"net/http"
	"time"
)

const cookieMaxAge = 30 * 24 * time.Hour

// Middleware resolves the session identity for every request and stores it in
// the request context. Newly minted keys are echoed in the X-Session-Id
// response header and a cookie.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, minted := Identify(MetadataFromRequest(r))
		if minted {
			w.Header().Set(HeaderName, id.SessionKey)
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    id.SessionKey,
				Path:     "/",
				MaxAge:   int(cookieMaxAge.Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
	})
}

// MetadataFromRequest reads the fingerprint inputs and the inbound token,
// preferring the header over the cookie.
func MetadataFromRequest(r *http.Request) Metadata {
	token := r.Header.Get(HeaderName)
	if token == "" {
		if c, err := r.Cookie(CookieName); err == nil {
			token = c.Value
		}
	}
	return Metadata{
		UserAgent:      r.Header.Get("User-Agent"),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
		ClientAddr:     clientHost(r.RemoteAddr),
		Token:          token,
	}
}

func clientHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
