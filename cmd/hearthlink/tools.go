package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hearthlink/hearthlink/internal/cli"
	"github.com/hearthlink/hearthlink/internal/command"
	"github.com/hearthlink/hearthlink/internal/config"
	"github.com/hearthlink/hearthlink/internal/db"
	"github.com/hearthlink/hearthlink/internal/protocol"
	"github.com/hearthlink/hearthlink/internal/reply"
	"github.com/hearthlink/hearthlink/internal/world"
)

func setupCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Run the interactive setup wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configDir)
			if err != nil {
				return err
			}
			return config.RunSetupWizard(cfg, os.Stdin, os.Stdout)
		},
	}
}

func idsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ids",
		Short: "List the registered command and reply identifiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			commands, err := command.NewRegistry()
			if err != nil {
				return err
			}
			replies, err := reply.NewRegistry(&reply.Env{World: world.NewState()})
			if err != nil {
				return err
			}
			cli.RenderIDs(cmd.OutOrStdout(), commands.Entries(), replies.Entries())
			return nil
		},
	}
}

func sessionsCmd(configDir *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Show recent sessions from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configDir)
			if err != nil {
				return err
			}
			journalCfg := cfg.GetJournal()
			if !journalCfg.Enabled {
				return fmt.Errorf("journal is disabled in %s", cfg.Path())
			}

			journal, err := db.NewJournal(journalCfg.Path)
			if err != nil {
				return err
			}
			defer journal.Close()

			sessions, err := journal.Recent(context.Background(), limit)
			if err != nil {
				return err
			}
			cli.RenderSessions(cmd.OutOrStdout(), sessions, time.Now())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of sessions to show")
	return cmd
}

func frameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "frame <keepalive|say|shout|whisper|login> [args...]",
		Short: "Hex dump the frame a command encodes to",
		Example: `  hearthlink frame keepalive
  hearthlink frame shout hello world
  hearthlink frame login 3 name password`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			commands, err := command.NewRegistry()
			if err != nil {
				return err
			}

			c, err := buildCommand(commands, args[0], args[1:])
			if err != nil {
				return err
			}
			defer commands.Recycle(c)

			w := protocol.NewWriter(64)
			if err := protocol.AppendFrame(w, c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (0x%02X), %d bytes\n", protocol.CommandName(c.ID()), c.ID(), w.Len())
			fmt.Fprint(cmd.OutOrStdout(), protocol.HexDump(w.Bytes()))
			return nil
		},
	}
	return cmd
}

func buildCommand(commands *command.Registry, name string, args []string) (protocol.Command, error) {
	switch strings.ToLower(name) {
	case "keepalive", "keep-alive":
		return commands.Get(protocol.CmdKeepAlive)
	case "say", "shout", "whisper":
		id, err := command.TalkID(name)
		if err != nil {
			return nil, err
		}
		talk, err := command.Acquire[*command.Talk](commands, id)
		if err != nil {
			return nil, err
		}
		talk.Text = strings.Join(args, " ")
		return talk, nil
	case "login":
		if len(args) != 3 {
			return nil, fmt.Errorf("usage: frame login <version> <name> <password>")
		}
		var v int
		if _, err := fmt.Sscanf(args[0], "%d", &v); err != nil {
			return nil, fmt.Errorf("invalid version %q", args[0])
		}
		login, err := command.Acquire[*command.Login](commands, protocol.CmdLogin)
		if err != nil {
			return nil, err
		}
		login.Version = v
		login.Name = args[1]
		login.Password = args[2]
		return login, nil
	default:
		return nil, fmt.Errorf("unknown command %q", name)
	}
}
