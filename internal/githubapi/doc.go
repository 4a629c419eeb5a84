// Package githubapi issues authenticated GitHub REST requests for helmbump.
//
// Requests are built and decoded with go-github; the token travels through an
// oauth2 transport using the "token" scheme, and a rate limiting transport
// holds requests back while the API quota is exhausted. Non-2xx responses are
// reported as RequestFailedError.
package githubapi
