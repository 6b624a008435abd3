// portalctl signs in to the agency portal and answers access questions from
// the command line. Every invocation owns exactly one auth session.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], appOptions{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr})
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type command struct {
	summary string
	run     func(ctx context.Context, a *app, flags *pflag.FlagSet, args []string) error
	flags   func(flags *pflag.FlagSet)
}

var commands = map[string]command{
	"login":               loginCommand,
	"signup":              signupCommand,
	"logout":              logoutCommand,
	"whoami":              whoamiCommand,
	"check":               checkCommand,
	"reset-password":      resetPasswordCommand,
	"update-password":     updatePasswordCommand,
	"watch-notifications": watchNotificationsCommand,
}

var commandOrder = []string{
	"login", "signup", "logout", "whoami", "check",
	"reset-password", "update-password", "watch-notifications",
}

func run(ctx context.Context, argv []string, opts appOptions) error {
	if len(argv) == 0 || argv[0] == "-h" || argv[0] == "--help" || argv[0] == "help" {
		printUsage(opts.stdout)
		return nil
	}

	name := argv[0]
	cmd, ok := commands[name]
	if !ok {
		printUsage(opts.stderr)
		return fmt.Errorf("unknown command %q", name)
	}

	flags := pflag.NewFlagSet("portalctl "+name, pflag.ContinueOnError)
	flags.SetOutput(opts.stderr)
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log auth state transitions to stderr")
	if cmd.flags != nil {
		cmd.flags(flags)
	}
	if err := flags.Parse(argv[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	a := newApp(ctx, opts)
	defer a.Close()

	return cmd.run(ctx, a, flags, flags.Args())
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: portalctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-20s %s\n", name, commands[name].summary)
	}
}
