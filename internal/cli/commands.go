// Package cli implements the interactive console of the running client and
// the tables the command-line tools print.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hearthlink/hearthlink/internal/command"
	"github.com/hearthlink/hearthlink/internal/db"
	"github.com/hearthlink/hearthlink/internal/network"
	"github.com/hearthlink/hearthlink/internal/protocol"
)

// Engine is the connection the console drives. *network.Client implements it.
type Engine interface {
	Stats() network.Stats
	SendCommand(cmd protocol.Command) error
	Commands() *protocol.Registry[protocol.Command]
	Replies() *protocol.Registry[protocol.Reply]
}

// Journal is the session history the console lists.
type Journal interface {
	Recent(ctx context.Context, limit int) ([]db.Session, error)
}

// Settings is the configuration the set command edits.
type Settings interface {
	UpdateField(section, key string, value interface{}) error
	Save() error
}

// CLI provides an interactive command-line interface.
type CLI struct {
	engine   Engine
	journal  Journal  // nil when disabled
	settings Settings // nil disables set
	quit     func()

	in  io.Reader
	out io.Writer
}

// NewCLI creates a console reading in and writing out. quit is called by the
// quit command.
func NewCLI(engine Engine, journal Journal, quit func(), in io.Reader, out io.Writer) *CLI {
	return &CLI{
		engine:  engine,
		journal: journal,
		quit:    quit,
		in:      in,
		out:     out,
	}
}

// SetSettings enables the set command.
func (c *CLI) SetSettings(settings Settings) {
	c.settings = settings
}

// Start reads commands until ctx is done or the input ends.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\nHearthlink console ready. Type 'help' for available commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			parts := strings.Fields(line)
			if err := c.execute(ctx, strings.ToLower(parts[0]), parts[1:]); err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
		}
	}
}

// execute processes a single console command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		RenderStatus(c.out, c.engine.Stats(), time.Now())
	case "ids":
		RenderIDs(c.out, c.engine.Commands().Entries(), c.engine.Replies().Entries())
	case "sessions":
		return c.cmdSessions(ctx)
	case "say", "shout", "whisper":
		return c.cmdTalk(cmd, args)
	case "move", "run":
		return c.cmdMove(args, cmd == "run")
	case "turn":
		return c.cmdTurn(args)
	case "set", "setconfig":
		return c.cmdSet(args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down Hearthlink...")
		if c.quit != nil {
			c.quit()
		}
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, `
  status            Show the connection
  ids               List registered command and reply ids
  sessions          Show recent sessions
  say <text>        Talk, normal range
  shout <text>      Talk, shout range
  whisper <text>    Talk, whisper range
  move <dir>        Walk one step (n, ne, e, se, s, sw, w, nw)
  run <dir>         Run one step
  turn <dir>        Turn in place
  set <s.key> <v>   Update a configuration value, applied on restart
  quit              Shut down
  help              Show this help message`)
}

func (c *CLI) cmdSessions(ctx context.Context) error {
	if c.journal == nil {
		return errors.New("journal is disabled")
	}
	sessions, err := c.journal.Recent(ctx, 10)
	if err != nil {
		return err
	}
	RenderSessions(c.out, sessions, time.Now())
	return nil
}

func (c *CLI) cmdTalk(mode string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s <text>", mode)
	}
	id, err := command.TalkID(mode)
	if err != nil {
		return err
	}
	talk, err := command.Acquire[*command.Talk](c.engine.Commands(), id)
	if err != nil {
		return err
	}
	talk.Text = strings.Join(args, " ")
	return c.send(talk)
}

func (c *CLI) cmdMove(args []string, run bool) error {
	dir, err := directionArg(args)
	if err != nil {
		return err
	}
	move, err := command.Acquire[*command.Move](c.engine.Commands(), protocol.CmdMove)
	if err != nil {
		return err
	}
	move.Direction = dir
	move.Mode = command.ModeWalk
	if run {
		move.Mode = command.ModeRun
	}
	return c.send(move)
}

func (c *CLI) cmdTurn(args []string) error {
	dir, err := directionArg(args)
	if err != nil {
		return err
	}
	turn, err := command.Acquire[*command.Turn](c.engine.Commands(), protocol.CmdTurn)
	if err != nil {
		return err
	}
	turn.Direction = dir
	return c.send(turn)
}

func (c *CLI) send(cmd protocol.Command) error {
	if err := c.engine.SendCommand(cmd); err != nil {
		c.engine.Commands().Recycle(cmd)
		return err
	}
	log.Debug().Str("command", protocol.CommandName(cmd.ID())).Msg("CLI: command queued")
	return nil
}

func (c *CLI) cmdSet(args []string) error {
	if c.settings == nil {
		return errors.New("configuration is read-only")
	}
	if len(args) < 2 {
		return errors.New("usage: set <section.key> <value>")
	}
	section, key, ok := strings.Cut(args[0], ".")
	if !ok {
		return fmt.Errorf("invalid key %q, want section.key", args[0])
	}

	raw := strings.Join(args[1:], " ")
	if err := c.settings.UpdateField(section, key, parseValue(raw)); err != nil {
		return err
	}
	if err := c.settings.Save(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Config updated: %s = %s (restart to apply)\n", args[0], raw)
	return nil
}

// parseValue turns console input into a JSON-compatible value.
func parseValue(raw string) interface{} {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

func directionArg(args []string) (command.Direction, error) {
	if len(args) < 1 {
		return 0, errors.New("direction required")
	}
	return command.ParseDirection(args[0])
}
