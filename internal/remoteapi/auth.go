package remoteapi

import (
	"net/http"
)

// csrfHeaderName is the header the remote API expects the CSRF token
// under on every state-changing request.
const csrfHeaderName = "X-CSRF-Token"

// AuthProvider supplies the credentials a request needs: a cookie jar
// carrying the session, and (when required) a CSRF header value applied
// to every non-GET request. Defined at the consumer per "accept
// interfaces, return structs" — implementations live in secretstore and
// cmd/, not here.
type AuthProvider interface {
	// Apply decorates req with whatever headers/cookies this provider
	// contributes. Called once per attempt, including retries, so a
	// provider that refreshes tokens can do so transparently.
	Apply(req *http.Request) error

	// Jar returns the cookie jar to attach to the http.Client, or nil if
	// the provider does not use cookies.
	Jar() http.CookieJar
}

// CookieAuthProvider authenticates via a session cookie jar plus a CSRF
// header value, matching the remote API's primary login flow.
type CookieAuthProvider struct {
	jar       http.CookieJar
	csrfToken string
}

// NewCookieAuthProvider creates a CookieAuthProvider from a populated jar
// and the CSRF token obtained at login time.
func NewCookieAuthProvider(jar http.CookieJar, csrfToken string) *CookieAuthProvider {
	return &CookieAuthProvider{jar: jar, csrfToken: csrfToken}
}

func (p *CookieAuthProvider) Apply(req *http.Request) error {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		req.Header.Set(csrfHeaderName, p.csrfToken)
	}

	return nil
}

func (p *CookieAuthProvider) Jar() http.CookieJar {
	return p.jar
}

// BearerAuthProvider authenticates via a static bearer token. Used as a
// fallback when the remote API is configured for token-based auth
// instead of a browser session.
type BearerAuthProvider struct {
	token string
}

// NewBearerAuthProvider creates a BearerAuthProvider from a pre-obtained
// token. There is no refresh dance — a new token requires a new login.
func NewBearerAuthProvider(token string) *BearerAuthProvider {
	return &BearerAuthProvider{token: token}
}

func (p *BearerAuthProvider) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+p.token)
	return nil
}

func (p *BearerAuthProvider) Jar() http.CookieJar {
	return nil
}
