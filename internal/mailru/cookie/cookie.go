// Package cookie holds the cookie record shared between the REST session and
// the browser, so that an authenticated page matches the authenticated client.
package cookie

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"
)

// Cookie is a cookie as the browser expects it. Expires is unix seconds.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	Size     int     `json:"size"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	Session  bool    `json:"session"`
}

// FromHTTP converts a cookie received over HTTP into its browser form.
func FromHTTP(c *http.Cookie) Cookie {
	expires := time.Unix(0, 0)
	if !c.Expires.IsZero() {
		expires = c.Expires
	}

	domain := c.Domain
	if !strings.HasPrefix(domain, ".") {
		domain = "." + domain
	}

	return Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   domain,
		Path:     c.Path,
		Expires:  float64(expires.Unix()),
		Size:     len(c.Name) + len(c.Value),
		HTTPOnly: c.HttpOnly,
		Secure:   c.Secure,
		Session:  false,
	}
}

// HTTP converts the cookie back into a net/http cookie.
func (c Cookie) HTTP() *http.Cookie {
	out := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HttpOnly: c.HTTPOnly,
		Secure:   c.Secure,
	}
	if c.Expires > 0 {
		out.Expires = time.Unix(int64(c.Expires), 0)
	}
	return out
}

// Hostname returns the domain without its leading dot.
func (c Cookie) Hostname() string {
	return strings.TrimPrefix(c.Domain, ".")
}

// ReadFile reads a JSON list of cookies.
func ReadFile(path string) ([]Cookie, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cookies []Cookie
	err = json.Unmarshal(contents, &cookies)
	if err != nil {
		return nil, err
	}
	return cookies, nil
}

// WriteFile stores cookies as a JSON list readable by ReadFile.
func WriteFile(path string, cookies []Cookie) error {
	contents, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, contents, 0600)
}
