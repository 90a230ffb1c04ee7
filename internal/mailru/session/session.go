package session

import (
	"context"
	"encoding/json"
	"fmt"
	"mailru-backend/internal/assert"
	"mailru-backend/internal/mailru/cookie"
	"mailru-backend/internal/mailru/sig"
	"mailru-backend/internal/telemetry"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIURL    = "https://appsmail.ru/platform/api"
	DefaultPublicURL = "https://appsmail.ru/platform"
	ContentType      = "application/json"
)

const (
	report_session_request        = "session.request"
	report_session_public_request = "session.public-request"
)

type Options struct {
	Credentials sig.Credentials
	Cookies     []cookie.Cookie
	// PassError makes API error payloads come back as the result of a call
	// instead of an APIError.
	PassError bool

	APIURL    string
	PublicURL string
	// OAuthURL, AuthURL and RedirectURI are the endpoints of Login.
	OAuthURL    string
	AuthURL     string
	RedirectURI string
	Timeout     time.Duration
	// RateLimit is the maximum amount of requests per second, 0 disables limiting.
	RateLimit        float64
	CloudflareBypass bool
	// Transport replaces the default round tripper, used to stub the network in tests.
	Transport http.RoundTripper
	Metrics   *telemetry.Metrics
}

// Session owns the credentials and cookie jar of one authenticated actor
// and issues signed calls on its behalf.
type Session struct {
	http        *resty.Client
	jar         *recordingJar
	apiURL      string
	publicURL   string
	oauthURL    string
	authURL     string
	redirectURI string
	metrics     *telemetry.Metrics
	tel         telemetry.API

	mu        sync.Mutex
	creds     sig.Credentials
	cookies   []cookie.Cookie
	passError bool
}

func New(opts Options, tel telemetry.API) (*Session, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("session", tel)

	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.PublicURL == "" {
		opts.PublicURL = DefaultPublicURL
	}
	if opts.OAuthURL == "" {
		opts.OAuthURL = DefaultOAuthURL
	}
	if opts.AuthURL == "" {
		opts.AuthURL = DefaultAuthURL
	}
	if opts.RedirectURI == "" {
		opts.RedirectURI = DefaultRedirectURI
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 30
	}

	httpClient := resty.New()
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	jar := newRecordingJar(inner)
	httpClient.SetCookieJar(jar)
	httpClient.SetTimeout(opts.Timeout)
	httpClient.SetRedirectPolicy(
		resty.FlexibleRedirectPolicy(10),
		resty.RedirectPolicyFunc(func(req *http.Request, _ []*http.Request) error {
			if strings.HasPrefix(req.URL.String(), opts.RedirectURI) {
				return http.ErrUseLastResponse
			}
			return nil
		}),
	)
	httpClient.SetHeader("accept", ContentType)
	if opts.Transport != nil {
		httpClient.SetTransport(opts.Transport)
	} else if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel)

	s := &Session{
		http:        httpClient,
		jar:         jar,
		apiURL:      strings.TrimRight(opts.APIURL, "/"),
		publicURL:   strings.TrimRight(opts.PublicURL, "/"),
		oauthURL:    opts.OAuthURL,
		authURL:     opts.AuthURL,
		redirectURI: opts.RedirectURI,
		metrics:     opts.Metrics,
		tel:         tel,
		creds:       opts.Credentials,
		passError:   opts.PassError,
	}
	s.SetCookies(opts.Cookies)
	return s, nil
}

// NewPublic creates a session without credentials, only PublicRequest can be used with it.
func NewPublic(tel telemetry.API) (*Session, error) {
	return New(Options{}, tel)
}

func (s *Session) Credentials() sig.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

func (s *Session) Circuit() sig.Circuit {
	return s.Credentials().Circuit()
}

// ClearUid forgets the uid, switching the session to the server-server circuit
// when a secret key is present.
func (s *Session) ClearUid() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.Uid = ""
}

func (s *Session) PassError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passError
}

func (s *Session) SetPassError(pass bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passError = pass
}

// RequiredParams are the parameters every signed call carries.
func (s *Session) RequiredParams() map[string]string {
	creds := s.Credentials()
	params := map[string]string{
		"app_id":      creds.AppID,
		"session_key": creds.AccessToken,
	}
	if creds.PrivateKey == "" {
		params["secure"] = "1"
	}
	return params
}

// Request performs a signed call, params must contain "method".
func (s *Session) Request(ctx context.Context, params Params) (any, error) {
	creds := s.Credentials()
	if creds.Circuit() == sig.Undefined {
		s.tel.ReportWarning(report_session_request, sig.ErrSignature)
		return nil, fmt.Errorf("mailru session: %w", sig.ErrSignature)
	}

	merged := s.RequiredParams()
	for k, v := range params.Strings() {
		merged[k] = v
	}
	signature, err := creds.Sign(merged)
	if err != nil {
		return nil, fmt.Errorf("mailru session: %w", err)
	}
	merged["sig"] = signature

	res, err := s.http.R().
		SetContext(ctx).
		SetQueryParams(merged).
		Get(s.apiURL)
	if err != nil {
		s.metrics.IncAPIRequest("transport_error")
		s.tel.ReportBroken(report_session_request, fmt.Errorf("fetch: %w", err), merged["method"])
		return nil, fmt.Errorf("mailru session: request %s: %w", merged["method"], err)
	}
	return s.handle(report_session_request, res)
}

// PublicRequest performs an unsigned call to <public url>/<segments...>.
func (s *Session) PublicRequest(ctx context.Context, segments ...string) (any, error) {
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = url.PathEscape(seg)
	}
	endpoint := s.publicURL
	if len(escaped) > 0 {
		endpoint += "/" + strings.Join(escaped, "/")
	}

	res, err := s.http.R().
		SetContext(ctx).
		Get(endpoint)
	if err != nil {
		s.metrics.IncAPIRequest("transport_error")
		s.tel.ReportBroken(report_session_public_request, fmt.Errorf("fetch: %w", err), endpoint)
		return nil, fmt.Errorf("mailru session: public request %s: %w", endpoint, err)
	}
	return s.handle(report_session_public_request, res)
}

func (s *Session) handle(id string, res *resty.Response) (any, error) {
	var body any
	if len(res.Body()) > 0 {
		err := json.Unmarshal(res.Body(), &body)
		if err != nil && res.StatusCode() < 400 {
			s.metrics.IncAPIRequest("transport_error")
			s.tel.ReportBroken(id, fmt.Errorf("unmarshal json: %w", err), res.Request.URL)
			return nil, fmt.Errorf("mailru session: decode response: %w", err)
		}
		if err != nil {
			body = res.String()
		}
	}

	apiErr, isError := errorFromBody(body)
	if !isError && res.StatusCode() >= 400 {
		apiErr = APIError{Code: res.StatusCode(), Message: res.Status()}
		isError = true
	}
	if !isError {
		s.metrics.IncAPIRequest("ok")
		return body, nil
	}

	s.metrics.IncAPIRequest("api_error")
	s.tel.ReportDebug(id, apiErr.Code, apiErr.Message)
	if s.PassError() {
		if body == nil {
			return apiErr.Payload(), nil
		}
		return body, nil
	}
	return nil, apiErr
}

// Cookies returns the session cookies followed by those set by the server
// since the session was created, login cookies included.
func (s *Session) Cookies() []cookie.Cookie {
	s.mu.Lock()
	out := append([]cookie.Cookie(nil), s.cookies...)
	s.mu.Unlock()

	seen := map[string]bool{}
	for _, c := range out {
		seen[cookieKey(*c.HTTP())] = true
	}
	for _, received := range s.jar.Received() {
		if seen[cookieKey(received)] {
			continue
		}
		seen[cookieKey(received)] = true
		out = append(out, cookie.FromHTTP(&received))
	}
	return out
}

// SetCookies replaces the session cookies and loads them into the http cookie jar.
func (s *Session) SetCookies(cookies []cookie.Cookie) {
	s.mu.Lock()
	s.cookies = append([]cookie.Cookie(nil), cookies...)
	s.mu.Unlock()

	byHost := map[string][]*http.Cookie{}
	for _, c := range cookies {
		host := c.Hostname()
		if host == "" {
			continue
		}
		byHost[host] = append(byHost[host], c.HTTP())
	}
	for host, list := range byHost {
		s.jar.CookieJar.SetCookies(&url.URL{Scheme: "https", Host: host, Path: "/"}, list)
	}
}

// Close releases idle connections held by the session.
func (s *Session) Close() {
	s.http.GetClient().CloseIdleConnections()
}
