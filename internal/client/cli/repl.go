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
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Accounts(ctx context.Context, args []string) error
	Create(ctx context.Context) error
	Switch(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Session(ctx context.Context) error
	Put(ctx context.Context, args []string) error
	Get(ctx context.Context, args []string) error
	Clear(ctx context.Context, args []string) error
}

const (
	helpSignedOut = "Available commands: register, login, exit"
	helpSignedIn  = "Available commands: accounts [query], create, switch <id>, delete <id>, session, " +
		"put <kind> <key> <value>, get <kind>, clear [kind...], logout, exit"
)

// runREPL starts a read-eval-print loop. The first token of each line is
// the command, the rest its arguments. Errors from handlers are printed
// and the loop continues. It returns on EOF, "exit" or "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("acctl %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpSignedIn)
			} else {
				printlnFn(helpSignedOut)
			}
		case "register":
			err = a.Register(ctx)
		case "login":
			err = a.Login(ctx)
		case "logout":
			err = a.Logout(ctx)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			if !a.isLoggedIn() {
				printlnFn("Unknown command:", cmd)
				continue
			}
			err = dispatchSignedIn(ctx, a, cmd, args)
		}

		if err != nil {
			printlnFn("Error:", err)
		}
	}
}

func dispatchSignedIn(ctx context.Context, a execIface, cmd string, args []string) error {
	switch cmd {
	case "l", "accounts":
		return a.Accounts(ctx, args)
	case "create":
		return a.Create(ctx)
	case "switch":
		return a.Switch(ctx, args)
	case "delete":
		return a.Delete(ctx, args)
	case "session":
		return a.Session(ctx)
	case "put":
		return a.Put(ctx, args)
	case "get":
		return a.Get(ctx, args)
	case "clear":
		return a.Clear(ctx, args)
	default:
		printlnFn("Unknown command:", cmd)
		return nil
	}
}
