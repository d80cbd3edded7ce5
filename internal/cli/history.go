package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/mrlokans/listenwise/internal/config"
	"github.com/mrlokans/listenwise/internal/connector"
	"github.com/mrlokans/listenwise/internal/entities"
)

// HistoryCommand prints an owner's audit trail.
type HistoryCommand struct {
	OwnerID      uint
	Type         string
	Limit        int
	JSON         bool
	DatabasePath string

	Out io.Writer
}

func NewHistoryCommand() *HistoryCommand {
	return &HistoryCommand{Out: os.Stdout}
}

func (cmd *HistoryCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)

	fs.UintVar(&cmd.OwnerID, "owner", 0, "Owner ID (required)")
	fs.StringVar(&cmd.Type, "type", "", "Only show auth, sync, recommend, preferences or cleanup events")
	fs.IntVar(&cmd.Limit, "limit", 20, "Maximum number of events")
	fs.BoolVar(&cmd.JSON, "json", false, "Print events as JSON")
	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the database file (default: $DATABASE_PATH or "+config.DefaultDatabasePath+")")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s history -owner <id> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Show the most recent audit events for an owner.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireOwner(cmd.OwnerID); err != nil {
		return err
	}
	switch entities.AuditEventType(cmd.Type) {
	case "", entities.AuditEventAuth, entities.AuditEventSync, entities.AuditEventRecommend,
		entities.AuditEventPreferences, entities.AuditEventCleanup:
	default:
		return fmt.Errorf("unknown event type %q", cmd.Type)
	}
	if cmd.Limit <= 0 {
		return fmt.Errorf("-limit must be positive")
	}
	return nil
}

func (cmd *HistoryCommand) Run() error {
	conn, closeFn, err := openConnector(cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer closeFn()

	return cmd.run(context.Background(), conn)
}

func (cmd *HistoryCommand) run(_ context.Context, conn *connector.Connector) error {
	out := stdout(cmd.Out)

	events, total, err := conn.Audit().Events(cmd.OwnerID, entities.AuditEventType(cmd.Type), cmd.Limit, 0)
	if err != nil {
		return err
	}
	if cmd.JSON {
		return printJSON(out, events)
	}
	if len(events) == 0 {
		fmt.Fprintln(out, "No events.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tACTION\tSTATUS\tDETAILS")
	for _, e := range events {
		details := e.Description
		if e.ErrorMsg != "" {
			details = e.ErrorMsg
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04"), e.EventType, e.Action, e.Status, details)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if total > int64(len(events)) {
		fmt.Fprintf(out, "(%d of %d events)\n", len(events), total)
	}
	return nil
}
