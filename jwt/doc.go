// Package jwt issues and verifies stateless session tokens. Tokens carry the
// account id and the role the session was granted under; expiry is the only
// end-of-life mechanism, there is no server-side revocation.
package jwt
