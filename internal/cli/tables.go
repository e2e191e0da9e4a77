package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/hearthlink/hearthlink/internal/db"
	"github.com/hearthlink/hearthlink/internal/network"
	"github.com/hearthlink/hearthlink/internal/protocol"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

// RenderIDs prints the registered identifiers of both directions. Aliases
// show the id they share a type with.
func RenderIDs(w io.Writer, commands, replies []protocol.Entry) {
	tw := newTable(w, "Direction", "ID", "Name", "Type", "Alias Of")
	for _, e := range commands {
		tw.Append(idRow("command", e, protocol.CommandName(e.ID)))
	}
	for _, e := range replies {
		tw.Append(idRow("reply", e, protocol.ReplyName(e.ID)))
	}
	tw.Render()
}

func idRow(direction string, e protocol.Entry, name string) []string {
	alias := ""
	if e.Canonical != e.ID {
		alias = fmt.Sprintf("0x%02X", e.Canonical)
	}
	return []string{direction, fmt.Sprintf("0x%02X", e.ID), name, e.Type, alias}
}

// RenderSessions prints journal sessions, newest first.
func RenderSessions(w io.Writer, sessions []db.Session, now time.Time) {
	tw := newTable(w, "ID", "Remote", "Started", "Duration", "Ended By")
	for _, s := range sessions {
		endedBy := "active"
		if s.EndedAt != nil {
			endedBy = s.Reason
			if s.Lost {
				endedBy = "lost: " + s.Reason
			}
		}
		tw.Append([]string{
			fmt.Sprintf("%d", s.ID),
			s.Remote,
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			s.Duration(now).Truncate(time.Second).String(),
			endedBy,
		})
	}
	tw.Render()
}

// RenderStatus prints a connection snapshot.
func RenderStatus(w io.Writer, stats network.Stats, now time.Time) {
	tw := newTable(w, "Connected", "Remote", "Uptime", "Outbound", "Inbound", "Delayed")
	uptime := "-"
	remote := "-"
	if stats.Connected {
		uptime = now.Sub(stats.ConnectedAt).Truncate(time.Second).String()
		remote = stats.Remote
	}
	tw.Append([]string{
		fmt.Sprintf("%v", stats.Connected),
		remote,
		uptime,
		fmt.Sprintf("%d", stats.Outbound),
		fmt.Sprintf("%d", stats.Inbound),
		fmt.Sprintf("%d", stats.Delayed),
	})
	tw.Render()
}
