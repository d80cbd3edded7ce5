package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mrlokans/listenwise/internal/config"
	"github.com/mrlokans/listenwise/internal/connector"
	"github.com/mrlokans/listenwise/internal/recommend"
)

// SyncCommand pulls an owner's library, optionally followed by a
// recommendation run.
type SyncCommand struct {
	OwnerID      uint
	Recommend    bool
	JSON         bool
	Verbose      bool
	DatabasePath string

	Out io.Writer
}

func NewSyncCommand() *SyncCommand {
	return &SyncCommand{Out: os.Stdout}
}

func (cmd *SyncCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)

	fs.UintVar(&cmd.OwnerID, "owner", 0, "Owner ID (required)")
	fs.BoolVar(&cmd.Recommend, "recommend", false, "Generate recommendations after a successful sync")
	fs.BoolVar(&cmd.JSON, "json", false, "Print the sync report as JSON")
	fs.BoolVar(&cmd.Verbose, "verbose", false, "List per-item errors")
	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the database file (default: $DATABASE_PATH or "+config.DefaultDatabasePath+")")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s sync -owner <id> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Fetch the owner's remote library and store it locally.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	return requireOwner(cmd.OwnerID)
}

func (cmd *SyncCommand) Run() error {
	conn, closeFn, err := openConnector(cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer closeFn()

	return cmd.run(context.Background(), conn)
}

func (cmd *SyncCommand) run(ctx context.Context, conn *connector.Connector) error {
	out := stdout(cmd.Out)

	report, err := conn.SyncLibrary(ctx, cmd.OwnerID)
	if err != nil {
		return err
	}

	if cmd.JSON {
		if err := printJSON(out, report); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, "Library Sync")
		fmt.Fprintln(out, "============")
		fmt.Fprintf(out, "Fetched:   %d (%d pages)\n", report.Fetched, report.Pages)
		fmt.Fprintf(out, "Created:   %d\n", report.Created)
		fmt.Fprintf(out, "Updated:   %d\n", report.Updated)
		fmt.Fprintf(out, "Unchanged: %d\n", report.Skipped)
		fmt.Fprintf(out, "Errors:    %d\n", report.ErrorCount())
		if report.Truncated {
			fmt.Fprintln(out, "Stopped at the page limit; raise SYNC_MAX_PAGES to fetch more.")
		}
		if cmd.Verbose {
			for _, e := range report.Errors {
				fmt.Fprintf(out, "  %s: %s\n", e.ASIN, e.Message)
			}
		}
	}

	if !cmd.Recommend {
		return nil
	}

	recs, err := conn.GenerateRecommendations(ctx, cmd.OwnerID, recommend.Limits{})
	if err != nil {
		return fmt.Errorf("generate recommendations: %w", err)
	}
	if !cmd.JSON {
		fmt.Fprintf(out, "\nGenerated %d recommendations\n", len(recs))
	}
	return nil
}
