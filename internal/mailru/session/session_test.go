package session

import (
	"context"
	"mailru-backend/internal/mailru/cookie"
	"mailru-backend/internal/mailru/sig"
	"mailru-backend/internal/telemetry"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

const (
	testAPIURL    = "https://api.test/platform/api"
	testPublicURL = "https://api.test/platform"
)

var errorContent = map[string]any{
	"error": map[string]any{
		"error_code": -1,
		"error_msg":  "test error msg",
	},
}

func newTestSession(t testing.TB, creds sig.Credentials, passError bool) (*Session, *httpmock.MockTransport) {
	transport := httpmock.NewMockTransport()
	s, err := New(Options{
		Credentials: creds,
		PassError:   passError,
		APIURL:      testAPIURL,
		PublicURL:   testPublicURL,
		Transport:   transport,
		Metrics:     telemetry.NewMetrics(),
	}, telemetry.NoopAPI{})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, transport
}

func TestPublicRequest(t *testing.T) {
	uidContent := map[string]any{"uid": float64(123456)}

	t.Run("ok", func(t *testing.T) {
		for _, pass := range []bool{true, false} {
			s, transport := newTestSession(t, sig.Credentials{}, pass)
			transport.RegisterResponder(
				http.MethodGet, testPublicURL+"/mail/someone",
				httpmock.NewJsonResponderOrPanic(200, uidContent),
			)

			res, err := s.PublicRequest(context.Background(), "mail", "someone")
			require.NoError(t, err)
			require.Equal(t, uidContent, res)
		}
	})

	t.Run("error passed", func(t *testing.T) {
		s, transport := newTestSession(t, sig.Credentials{}, true)
		transport.RegisterResponder(
			http.MethodGet, testPublicURL,
			httpmock.NewJsonResponderOrPanic(401, errorContent),
		)

		res, err := s.PublicRequest(context.Background())
		require.NoError(t, err)
		require.Equal(t, map[string]any{
			"error": map[string]any{
				"error_code": float64(-1),
				"error_msg":  "test error msg",
			},
		}, res)
	})

	t.Run("error raised", func(t *testing.T) {
		s, transport := newTestSession(t, sig.Credentials{}, false)
		transport.RegisterResponder(
			http.MethodGet, testPublicURL,
			httpmock.NewJsonResponderOrPanic(401, errorContent),
		)

		_, err := s.PublicRequest(context.Background())
		require.ErrorIs(t, err, ErrAPI)

		var apiErr APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, -1, apiErr.Code)
		require.Equal(t, "test error msg", apiErr.Message)
	})

	t.Run("status without error body", func(t *testing.T) {
		s, transport := newTestSession(t, sig.Credentials{}, false)
		transport.RegisterResponder(
			http.MethodGet, testPublicURL,
			httpmock.NewStringResponder(502, "bad gateway"),
		)

		_, err := s.PublicRequest(context.Background())
		var apiErr APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, 502, apiErr.Code)
	})
}

func TestRequestSignsParams(t *testing.T) {
	creds := sig.Credentials{
		AppID:       "123",
		PrivateKey:  "private key",
		AccessToken: "token",
		Uid:         "789",
	}
	s, transport := newTestSession(t, creds, false)

	var query map[string]string
	transport.RegisterResponder(
		http.MethodGet, testAPIURL,
		func(req *http.Request) (*http.Response, error) {
			query = map[string]string{}
			for k, v := range req.URL.Query() {
				query[k] = v[0]
			}
			return httpmock.NewJsonResponse(200, []any{map[string]any{"uid": "789"}})
		},
	)

	res, err := s.Request(context.Background(), Params{"method": "users.getInfo", "uids": 789})
	require.NoError(t, err)
	require.Equal(t, []any{map[string]any{"uid": "789"}}, res)

	expectedSig, err := creds.Sign(map[string]string{
		"method":      "users.getInfo",
		"uids":        "789",
		"app_id":      "123",
		"session_key": "token",
	})
	require.NoError(t, err)
	require.Equal(t, expectedSig, query["sig"])
	require.NotContains(t, query, "secure")
	require.Equal(t, "token", query["session_key"])
}

func TestRequestError(t *testing.T) {
	creds := sig.Credentials{AppID: "1", SecretKey: "s", AccessToken: "t"}

	for _, pass := range []bool{true, false} {
		s, transport := newTestSession(t, creds, pass)
		transport.RegisterResponder(
			http.MethodGet, testAPIURL,
			httpmock.NewJsonResponderOrPanic(200, errorContent),
		)

		res, err := s.Request(context.Background(), Params{"method": "stream.get"})
		if pass {
			require.NoError(t, err)
			require.Contains(t, res.(map[string]any), "error")
		} else {
			require.ErrorIs(t, err, ErrAPI)
		}
	}
}

func TestRequestUndefinedCircuit(t *testing.T) {
	s, transport := newTestSession(t, sig.Credentials{AppID: "1"}, true)

	_, err := s.Request(context.Background(), Params{"method": "users.getInfo"})
	require.ErrorIs(t, err, sig.ErrSignature)
	require.Equal(t, 0, transport.GetTotalCallCount())
}

func TestRequiredParams(t *testing.T) {
	s, _ := newTestSession(t, sig.Credentials{AppID: "1", AccessToken: "t", SecretKey: "s"}, false)
	require.Equal(t, map[string]string{"app_id": "1", "session_key": "t", "secure": "1"}, s.RequiredParams())

	s, _ = newTestSession(t, sig.Credentials{AppID: "1", AccessToken: "t", PrivateKey: "p", Uid: "2"}, false)
	require.Equal(t, map[string]string{"app_id": "1", "session_key": "t"}, s.RequiredParams())
}

func TestClearUidSwitchesCircuit(t *testing.T) {
	s, _ := newTestSession(t, sig.Credentials{Uid: "1", PrivateKey: "p", SecretKey: "s"}, false)
	require.Equal(t, sig.ClientServer, s.Circuit())
	s.ClearUid()
	require.Equal(t, sig.ServerServer, s.Circuit())
}

func TestCookiesRoundTrip(t *testing.T) {
	s, _ := newTestSession(t, sig.Credentials{}, false)
	input := []cookie.Cookie{
		{Name: "Mpop", Value: "abc", Domain: ".mail.ru", Path: "/", Size: 7},
	}
	s.SetCookies(input)
	require.Equal(t, input, s.Cookies())
}

func TestParamsStrings(t *testing.T) {
	p := Params{"a": 1, "b": "x", "c": true, "d": 1.5, "e": nil, "f": int64(7)}
	require.Equal(t, map[string]string{"a": "1", "b": "x", "c": "1", "d": "1.5", "f": "7"}, p.Strings())
}
