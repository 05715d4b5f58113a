package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. Arguments are
// the tokens after the command name.
type execIface interface {
	Status(ctx context.Context) error
	Generate(ctx context.Context, args []string) error
	History(ctx context.Context, args []string) error
	Buy(ctx context.Context, args []string) error
	Portal(ctx context.Context) error
	Export(ctx context.Context, args []string) error
}

const helpText = "Available commands: status, generate [harmony] [size], history [n], buy credits|pro, portal, export <id>, exit"

// runREPL reads commands line by line until EOF, "exit" or "quit". Handler
// errors are reported by the handlers themselves.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("palette %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printlnFn(helpText)

		case "status", "s":
			_ = a.Status(ctx)

		case "generate", "g":
			_ = a.Generate(ctx, args)

		case "history", "h":
			_ = a.History(ctx, args)

		case "buy":
			if len(args) != 1 {
				printlnFn("Usage: buy credits|pro")
				continue
			}
			_ = a.Buy(ctx, args)

		case "portal":
			_ = a.Portal(ctx)

		case "export":
			if len(args) != 1 {
				printlnFn("Usage: export <id>")
				continue
			}
			_ = a.Export(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
