package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface the REPL needs. *App satisfies it.
type execIface interface {
	isLoggedIn() bool
	SignUp(ctx context.Context) error
	SignIn(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Verify(ctx context.Context) error
	SignOut(ctx context.Context) error
}

// runREPL reads one command per line and dispatches it until EOF, "exit" or
// "quit", or until ctx is done.
//
//	Signed out (/sign-in, /sign-up):
//	  signup | register   fill in the sign-up form
//	  signin | login      fill in the sign-in form
//	Signed in (/):
//	  whoami              show the verified user
//	  verify              re-check the session with the service
//	  signout | logout    end the session
//	Always:
//	  help, exit | quit
//
// Prompts and replies go to out. Handler errors are reported and the loop
// continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, out io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprintf(out, "ga %s > ", statusFn())

		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		var cmdErr error
		switch cmd := parts[0]; cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(out, "Available commands: whoami, verify, signout, exit")
			} else {
				fmt.Fprintln(out, "Available commands: signup, signin, exit")
			}

		case "signup", "register":
			cmdErr = a.SignUp(ctx)

		case "signin", "login":
			cmdErr = a.SignIn(ctx)

		case "whoami", "verify", "signout", "logout":
			if !a.isLoggedIn() {
				fmt.Fprintln(out, "Please sign in first")
				continue
			}
			switch cmd {
			case "whoami":
				cmdErr = a.WhoAmI(ctx)
			case "verify":
				cmdErr = a.Verify(ctx)
			default:
				cmdErr = a.SignOut(ctx)
			}

		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return

		default:
			fmt.Fprintln(out, "Unknown command:", cmd)
		}

		if cmdErr != nil {
			if errors.Is(cmdErr, io.EOF) {
				return
			}
			fmt.Fprintln(out, "Error:", cmdErr)
		}
	}
}
