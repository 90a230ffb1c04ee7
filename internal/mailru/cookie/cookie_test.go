package cookie

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestFromHTTP(t *testing.T) {
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	table := []struct {
		name     string
		input    *http.Cookie
		expected Cookie
	}{
		{
			name: "domain without dot and no expiry",
			input: &http.Cookie{
				Name:   "Mpop",
				Value:  "abc",
				Domain: "mail.ru",
				Path:   "/",
			},
			expected: Cookie{
				Name:    "Mpop",
				Value:   "abc",
				Domain:  ".mail.ru",
				Path:    "/",
				Expires: 0,
				Size:    7,
			},
		},
		{
			name: "dotted domain with flags",
			input: &http.Cookie{
				Name:     "ssdc",
				Value:    "1234",
				Domain:   ".my.mail.ru",
				Path:     "/",
				Expires:  expires,
				HttpOnly: true,
				Secure:   true,
			},
			expected: Cookie{
				Name:     "ssdc",
				Value:    "1234",
				Domain:   ".my.mail.ru",
				Path:     "/",
				Expires:  float64(expires.Unix()),
				Size:     8,
				HTTPOnly: true,
				Secure:   true,
			},
		},
	}

	for _, row := range table {
		t.Run(row.name, func(t *testing.T) {
			diff := cmp.Diff(row.expected, FromHTTP(row.input))
			require.Empty(t, diff)
		})
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	err := os.WriteFile(path, []byte(`[{"name":"a","value":"b","domain":".mail.ru","path":"/","expires":0}]`), 0600)
	require.NoError(t, err)

	cookies, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	require.Equal(t, "mail.ru", cookies[0].Hostname())
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	input := []Cookie{{Name: "Mpop", Value: "token", Domain: ".mail.ru", Path: "/", Size: 9, HTTPOnly: true}}
	require.NoError(t, WriteFile(path, input))

	cookies, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, input, cookies)
}
