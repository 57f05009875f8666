// Package token decodes the unverified claims of access and refresh tokens and,
// for authorities and tests, issues signed tokens.
//
// # Decoding
//
// [Decode] extracts exp, iat, role, userId and tokenType without checking the
// signature. Signature verification belongs to the remote authority; decoded
// claims are only used for local scheduling and routing decisions. Claims that
// do not match the expected shape fail with [ErrMalformedToken].
//
// # Clock
//
// Every expiry comparison uses [Now], which is the current epoch second minus
// one. The slack absorbs drift between this process and the issuer.
//
// # What this package must NOT do
//
//   - Perform I/O or hold token storage.
//   - Trust decoded claims for authorization on the server side.
package token
