// Package cli implements the interactive command line: running sessions,
// showing the roster of the last run, browsing history and decoding
// captured envelopes.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sagereplay/sagereplay/internal/config"
	"github.com/sagereplay/sagereplay/internal/connector"
	"github.com/sagereplay/sagereplay/internal/db"
	"github.com/sagereplay/sagereplay/internal/events"
	"github.com/sagereplay/sagereplay/internal/session"
)

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	runner   *session.Runner
	store    *db.SessionStore

	in  *bufio.Reader
	out io.Writer
}

// NewCLI creates a new CLI handler. store may be nil.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, runner *session.Runner, store *db.SessionStore, in io.Reader, out io.Writer) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		runner:   runner,
		store:    store,
		in:       bufio.NewReader(in),
		out:      out,
	}
}

// Start runs the command loop until quit, EOF or ctx cancellation.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\nsagereplay CLI ready. Type 'help' for available commands.")
	fmt.Fprintln(c.out, "─────────────────────────────────────────────────────")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Fprint(c.out, "sagereplay> ")
		line, err := c.in.ReadString('\n')
		if err != nil && line == "" {
			if !errors.Is(err, io.EOF) {
				log.Warn().Err(err).Msg("CLI: read failed")
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if cmd == "quit" || cmd == "exit" || cmd == "q" {
			fmt.Fprintln(c.out, "Bye.")
			c.eventBus.Emit(ctx, events.Event{Type: events.EventShutdown, Source: "cli"})
			return
		}

		if err := c.execute(ctx, cmd, args); err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "run", "r":
		_, err := c.Run(ctx)
		return err
	case "status", "s":
		c.printStatus()
	case "characters", "chars":
		return c.printCharacters()
	case "history":
		return c.printHistory(ctx, args)
	case "decode":
		return c.cmdDecode(args)
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, `
Commands:
  run                 Run one session with the configured account
  status              Show the steps of the last run
  characters          Show the roster of the last successful run
  history [n]         List the n most recent recorded sessions (default 10)
  decode <file>       Decode a captured envelope file
  help                Show this help
  quit                Leave the CLI`)
}

// Run executes one session, prompting for missing credentials first, and
// prints its report.
func (c *CLI) Run(ctx context.Context) (*session.Report, error) {
	if !c.cfg.HasCredentials() {
		config.PromptCredentials(c.cfg, c.in, c.out)
	}

	report, err := c.runner.Run(ctx, nil)
	if report != nil {
		PrintReport(c.out, report)
	}
	return report, err
}

func (c *CLI) printStatus() {
	last := c.runner.Last()
	if last == nil {
		fmt.Fprintln(c.out, "No session has run yet.")
		return
	}
	PrintReport(c.out, last)
}

func (c *CLI) printCharacters() error {
	report, ok := c.runner.LastSuccessful()
	if !ok {
		return fmt.Errorf("no successful session yet")
	}
	PrintCharacters(c.out, report.Result)
	return nil
}

func (c *CLI) printHistory(ctx context.Context, args []string) error {
	if c.store == nil {
		return fmt.Errorf("session history is disabled")
	}
	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		limit = n
	}

	sessions, err := c.store.List(ctx, limit)
	if err != nil {
		return err
	}
	PrintSessions(c.out, sessions)
	return nil
}

func (c *CLI) cmdDecode(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("file path required")
	}
	return DecodeFile(c.out, args[0])
}

// DecodeFile decodes a captured envelope and prints its summary.
func DecodeFile(out io.Writer, path string) error {
	env, err := connector.DecodeFile(path)
	if err != nil {
		return err
	}
	PrintEnvelope(out, env)
	return nil
}
