// Package auth implements user accounts with revocable session tokens.
//
// Credential store:
//   - Users live in a bun backed store (SQLite or Postgres) with goose
//     migrations. Passwords are hashed with bcrypt once per change, right
//     before the record is written.
//   - Issued tokens are rows in session_tokens. Issue inserts a row, logout
//     deletes the matching rows and logout-all deletes every row for the user,
//     so concurrent sessions never overwrite each other.
//
// Tokens:
//   - TokenService signs HS256 JWTs and only accepts a token while its exact
//     string is still stored for the user. A valid signature is not enough.
//
// HTTP:
//   - RouteAuthenticator wraps middleware/jwtware, which runs every request
//     through an explicit state machine (unauthenticated, token extracted,
//     validated, attached or rejected).
//   - UserController mounts the account API and the browser views.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by AccountService.
//     Sinks run best-effort (errors are logged) so you can forward to a
//     database or queue without blocking authentication.
package auth
