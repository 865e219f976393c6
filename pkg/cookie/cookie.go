// Package cookie writes the service's http-only cookies with the
// configured Domain, Secure and SameSite attributes.
package cookie

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Payphone-Digital/auth-service/config"
)

// MaxSize is the largest serialized Set-Cookie value accepted. Browsers
// drop cookies above ~4096 bytes including attributes.
const MaxSize = 3800

var ErrTooLarge = errors.New("cookie exceeds maximum size")

type Jar struct {
	domain   string
	secure   bool
	sameSite http.SameSite
}

func New(cfg config.CookieConfig) *Jar {
	return &Jar{
		domain:   cfg.Domain,
		secure:   cfg.Secure,
		sameSite: ParseSameSite(cfg.SameSite),
	}
}

func ParseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

// Set writes an http-only cookie valid for maxAge.
func (j *Jar) Set(w http.ResponseWriter, name, value string, maxAge time.Duration) error {
	return j.write(w, j.build(name, value, maxAge, j.sameSite))
}

// SetCrossSite is Set with SameSite=None, used when the cookie must survive
// a cross-site POST back to the service. SameSite=None requires Secure.
func (j *Jar) SetCrossSite(w http.ResponseWriter, name, value string, maxAge time.Duration) error {
	c := j.build(name, value, maxAge, http.SameSiteNoneMode)
	c.Secure = true
	return j.write(w, c)
}

// Clear expires the cookie on the client.
func (j *Jar) Clear(w http.ResponseWriter, name string) {
	c := j.build(name, "", 0, j.sameSite)
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	http.SetCookie(w, c)
}

func (j *Jar) build(name, value string, maxAge time.Duration, sameSite http.SameSite) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   j.domain,
		MaxAge:   int(maxAge / time.Second),
		Expires:  time.Now().Add(maxAge),
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: sameSite,
	}
}

func (j *Jar) write(w http.ResponseWriter, c *http.Cookie) error {
	if len(c.String()) > MaxSize {
		return ErrTooLarge
	}
	http.SetCookie(w, c)
	return nil
}

// Get returns the named cookie value or "".
func Get(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
