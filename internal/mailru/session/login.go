package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const (
	DefaultOAuthURL    = "https://connect.mail.ru/oauth/authorize"
	DefaultAuthURL     = "https://auth.mail.ru/cgi-bin/auth"
	DefaultRedirectURI = "http://connect.mail.ru/oauth/success.html"

	report_session_login = "session.login"

	// login form, access dialog and the final redirect
	maxLoginSteps = 4
)

// Privileges are the scopes an application can be granted.
var Privileges = []string{"photos", "guestbook", "stream", "messages", "events"}

// FullScope requests every privilege.
func FullScope() string {
	return strings.Join(Privileges, " ")
}

var ErrAuthorization = errors.New("authorization failed")

// AuthorizationError is a refused grant, Reason is the oauth error code.
type AuthorizationError struct {
	Reason      string
	Description string
}

func (e AuthorizationError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("authorization failed: %s", e.Reason)
	}
	return fmt.Sprintf("authorization failed: %s: %s", e.Reason, e.Description)
}

func (e AuthorizationError) Is(target error) bool {
	return target == ErrAuthorization
}

var emailRegex = regexp.MustCompile(`^([a-zA-Z0-9_.+-]+)@([a-zA-Z0-9-]+)\.([a-zA-Z0-9-.]+)$`)

// ParseAddr splits an e-mail address into the mail domain (without its top
// level part, ex. "mail" for "@mail.ru") and the screen name.
func ParseAddr(address string) (domain, screenName string, err error) {
	groups := emailRegex.FindStringSubmatch(address)
	if groups == nil {
		return "", "", fmt.Errorf("email address %q is not valid", address)
	}
	return groups[2], groups[1], nil
}

type LoginOptions struct {
	Email    string
	Password string
	// Scope defaults to FullScope.
	Scope string
}

// Grant is the outcome of a successful login.
type Grant struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Uid          string `json:"uid"`
}

// Login runs the implicit grant for the session app with an e-mail and
// password. On success the access token and uid are stored in the session
// credentials and the cookies of the login are kept in the cookie jar.
func (s *Session) Login(ctx context.Context, opts LoginOptions) (Grant, error) {
	loginError := func(err error) error {
		return fmt.Errorf("mailru session: login: %w", err)
	}

	appID := s.Credentials().AppID
	if appID == "" {
		return Grant{}, loginError(AuthorizationError{Reason: "invalid_client", Description: "app_id is required"})
	}
	domain, screenName, err := ParseAddr(opts.Email)
	if err != nil {
		return Grant{}, loginError(err)
	}
	scope := opts.Scope
	if scope == "" {
		scope = FullScope()
	}

	dialog := s.oauthURL + "?" + url.Values{
		"client_id":     {appID},
		"response_type": {"token"},
		"redirect_uri":  {s.redirectURI},
		"scope":         {scope},
	}.Encode()

	res, err := s.http.R().
		SetContext(ctx).
		Get(dialog)
	if err != nil {
		s.tel.ReportBroken(report_session_login, fmt.Errorf("authorization dialog: %w", err))
		return Grant{}, loginError(err)
	}

	submitted := false
	for step := 0; step < maxLoginSteps; step++ {
		if location, ok := s.grantLocation(res); ok {
			grant, err := s.finishLogin(location)
			if err != nil {
				s.tel.ReportWarning(report_session_login, err)
				return Grant{}, loginError(err)
			}
			s.tel.ReportDebug("logged in", grant.Uid)
			return grant, nil
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
		if err != nil {
			s.tel.ReportBroken(report_session_login, fmt.Errorf("parse login page: %w", err))
			return Grant{}, loginError(err)
		}

		if doc.Find(`input[name="Password"]`).Length() > 0 {
			if submitted {
				err := AuthorizationError{Reason: "invalid_credentials", Description: "login form was shown again"}
				s.tel.ReportWarning(report_session_login, err, opts.Email)
				return Grant{}, loginError(err)
			}
			submitted = true
			res, err = s.http.R().
				SetContext(ctx).
				SetFormData(map[string]string{
					"page":          dialog,
					"FailPage":      dialog,
					"Domain":        domain,
					"Login":         screenName,
					"Password":      opts.Password,
					"new_auth_form": "1",
					"saveauth":      "1",
				}).
				Post(s.authURL)
			if err != nil {
				s.tel.ReportBroken(report_session_login, fmt.Errorf("submit credentials: %w", err))
				return Grant{}, loginError(err)
			}
			continue
		}

		form := doc.Find("form").First()
		if form.Length() == 0 {
			err := fmt.Errorf("%w: unexpected page at %s", ErrAuthorization, res.Request.URL)
			s.tel.ReportBroken(report_session_login, err)
			return Grant{}, loginError(err)
		}
		res, err = s.submitForm(ctx, res, form)
		if err != nil {
			s.tel.ReportBroken(report_session_login, fmt.Errorf("access dialog: %w", err))
			return Grant{}, loginError(err)
		}
	}

	err = fmt.Errorf("%w: no access token after %d steps", ErrAuthorization, maxLoginSteps)
	s.tel.ReportBroken(report_session_login, err)
	return Grant{}, loginError(err)
}

// grantLocation returns the redirect to the oauth success page, the client
// stops following redirects there so its fragment survives.
func (s *Session) grantLocation(res *resty.Response) (string, bool) {
	if res.StatusCode() < 300 || res.StatusCode() >= 400 {
		return "", false
	}
	location := res.Header().Get("Location")
	if !strings.HasPrefix(location, s.redirectURI) {
		return "", false
	}
	return location, true
}

// submitForm sends every named input of form to its action, resolved
// against the url of the page it came from.
func (s *Session) submitForm(ctx context.Context, page *resty.Response, form *goquery.Selection) (*resty.Response, error) {
	base := page.RawResponse.Request.URL
	action, err := base.Parse(form.AttrOr("action", ""))
	if err != nil {
		return nil, fmt.Errorf("form action: %w", err)
	}

	data := url.Values{}
	form.Find("input[name]").Each(func(_ int, input *goquery.Selection) {
		data.Add(input.AttrOr("name", ""), input.AttrOr("value", ""))
	})

	req := s.http.R().SetContext(ctx)
	if strings.EqualFold(form.AttrOr("method", http.MethodPost), http.MethodGet) {
		action.RawQuery = data.Encode()
		return req.Get(action.String())
	}
	return req.SetFormDataFromValues(data).Post(action.String())
}

func (s *Session) finishLogin(location string) (Grant, error) {
	u, err := url.Parse(location)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: redirect: %w", ErrAuthorization, err)
	}
	values, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: redirect fragment: %w", ErrAuthorization, err)
	}
	if reason := values.Get("error"); reason != "" {
		return Grant{}, AuthorizationError{Reason: reason, Description: values.Get("error_description")}
	}

	grant := Grant{
		AccessToken:  values.Get("access_token"),
		RefreshToken: values.Get("refresh_token"),
		Uid:          values.Get("x_mailru_vid"),
	}
	if grant.AccessToken == "" {
		return Grant{}, AuthorizationError{Reason: "no_token", Description: "redirect carries no access token"}
	}
	if expires := values.Get("expires_in"); expires != "" {
		grant.ExpiresIn, err = strconv.Atoi(expires)
		if err != nil {
			return Grant{}, fmt.Errorf("%w: expires_in: %w", ErrAuthorization, err)
		}
	}

	s.mu.Lock()
	s.creds.AccessToken = grant.AccessToken
	if grant.Uid != "" {
		s.creds.Uid = grant.Uid
	}
	s.mu.Unlock()
	return grant, nil
}
