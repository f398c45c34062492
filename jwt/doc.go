// Package jwt issues and verifies the signed access and refresh tokens bound
// to a login session. Access and refresh tokens are signed with distinct keys
// so a leaked refresh token can never pass as an access token.
package jwt
