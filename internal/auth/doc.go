// Package auth verifies ID tokens issued by the configured OpenID Connect
// provider. Tokens are validated against the provider's JWKS and carry the
// group memberships used for administrative access.
package auth
