// Package auth provides authentication for the meshboard API.
//
// The system has a single operator account defined in configuration,
// so there is no user store; what remains is deliberately small:
//   - Argon2id password hashing (OWASP 2025 recommendation) in PHC
//     string format, for the configured admin password hash
//   - Short-lived HS256 JWT access tokens, validated by signature only
//   - Single-use, one-minute WebSocket tickets, since browsers cannot
//     attach an Authorization header to an upgrade request
//
// The HTTP layer owns credential checks against config and the
// middleware that enforces tokens; this package owns the primitives.
package auth
