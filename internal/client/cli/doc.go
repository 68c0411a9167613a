// Package cli provides the interactive Latchkey command-line client.
//
// It wires configuration, the local credential vault, the identity HTTP
// client, and an interactive REPL around the session orchestrator. Typical
// flow: sign in (password or quick unlock), optionally enroll the unlock
// passphrase, and inspect session state.
//
// Key commands:
//   - login / register: password authentication against the identity service
//   - unlock: quick unlock via the enrolled local factor
//   - resend / newemail: email-confirmation flow after registration
//   - reset: request a password recovery email
//   - signout / status / help / exit
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
