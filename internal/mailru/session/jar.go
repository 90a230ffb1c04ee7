package session

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"
)

// recordingJar is a cookie jar that also remembers every cookie set by a
// response together with its domain, which http.CookieJar does not report
// back. The browser needs the domain to install the cookies.
type recordingJar struct {
	http.CookieJar

	mu       sync.Mutex
	order    []string
	received map[string]http.Cookie
}

func newRecordingJar(jar http.CookieJar) *recordingJar {
	return &recordingJar{
		CookieJar: jar,
		received:  map[string]http.Cookie{},
	}
}

func cookieKey(c http.Cookie) string {
	return c.Name + "|" + strings.TrimPrefix(c.Domain, ".") + "|" + c.Path
}

func (j *recordingJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.CookieJar.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	for _, c := range cookies {
		rec := *c
		if rec.Domain == "" {
			rec.Domain = u.Hostname()
		}
		if rec.Path == "" {
			rec.Path = "/"
		}
		key := cookieKey(rec)

		if rec.MaxAge < 0 || (!rec.Expires.IsZero() && rec.Expires.Before(now)) {
			delete(j.received, key)
			j.order = slices.DeleteFunc(j.order, func(k string) bool { return k == key })
			continue
		}
		if _, ok := j.received[key]; !ok {
			j.order = append(j.order, key)
		}
		j.received[key] = rec
	}
}

// Received returns the live cookies set by responses, oldest first.
func (j *recordingJar) Received() []http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]http.Cookie, 0, len(j.order))
	for _, key := range j.order {
		out = append(out, j.received[key])
	}
	return out
}
