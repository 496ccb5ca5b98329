// Package auth implements the token authentication boundary of the storefront
// backend: credential verification, HS512 token issuance and validation, plus
// the user registration and lookup the boundary needs.
//
// Login flow:
//   - UserProvider looks the user up by username and compares the bcrypt hash.
//     Unknown users and bad passwords stay distinct internally and are
//     collapsed by PublicError at the HTTP boundary.
//   - TokenServiceImpl signs sub, uid, iat, exp and jti claims. Tokens are
//     valid for the configured window (ten days by default) and travel as
//     "Authorization: Bearer <token>".
//
// Request flow:
//   - RouteAuthenticator.Authenticate runs the middleware/pipeline stages
//     (parse bearer, validate, listen) through middleware/jwtware. Requests
//     without a token pass through anonymously; RequireIdentity rejects them.
//   - The signature is verified before any claim is trusted, so a tampered
//     token reports ErrInvalidSignature even when it is also expired.
//
// Activity sinks:
//   - ActivitySink receives login, rejection and registration events. Sinks
//     run best-effort; telemetry.ActivityMetrics counts them.
package auth
