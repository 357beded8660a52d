package router

import "net/http"

// Authenticator resolves the authenticated caller of a request. The session
// system establishing identity lives outside this core.
type Authenticator interface {
	// Authenticate returns the caller's principal id, or "" when the
	// request carries no authenticated identity.
	Authenticate(r *http.Request) string
}

// HeaderAuthenticator trusts a reverse-proxy-injected identity header. It is
// the default collaborator for deployments that terminate auth upstream.
type HeaderAuthenticator struct {
	Header string
}

func (a HeaderAuthenticator) Authenticate(r *http.Request) string {
	header := a.Header
	if header == "" {
		header = "x-caller-id"
	}
	return r.Header.Get(header)
}
