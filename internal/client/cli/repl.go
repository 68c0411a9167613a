package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isAuthenticated() bool
	Login(ctx context.Context) error
	Register(ctx context.Context) error
	Unlock(ctx context.Context) error
	Resend(ctx context.Context) error
	NewEmail(ctx context.Context) error
	Reset(ctx context.Context) error
	SignOut(ctx context.Context) error
	DisableUnlock(ctx context.Context) error
	Status(ctx context.Context) error
}

// runREPL starts a simple read-eval-print loop for the Latchkey CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Any errors returned by command handlers are ignored here; handlers render
// their own messages. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("lk> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isAuthenticated() {
				printlnFn("Available commands: status, signout, nounlock, exit")
			} else {
				printlnFn("Available commands: login, register, unlock, resend, newemail, reset, status, exit")
			}

		case "login":
			_ = a.Login(ctx)

		case "register":
			_ = a.Register(ctx)

		case "unlock":
			_ = a.Unlock(ctx)

		case "resend":
			_ = a.Resend(ctx)

		case "newemail":
			_ = a.NewEmail(ctx)

		case "reset":
			_ = a.Reset(ctx)

		case "signout":
			_ = a.SignOut(ctx)

		case "nounlock":
			_ = a.DisableUnlock(ctx)

		case "s", "status":
			_ = a.Status(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

func (a *App) repl(ctx context.Context, scanner *bufio.Scanner) {
	printlnFn("Welcome to Latchkey CLI (type 'help' for commands)")
	runREPL(ctx, a, a.statusLine, scanner)
}

func (a *App) statusLine() string {
	snap := a.orch.Snapshot()
	s := snap.Phase.String()
	if snap.UserEmail != "" {
		s = snap.UserEmail + " " + s
	}
	return "(" + s + ")"
}
