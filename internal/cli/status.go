package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mrlokans/listenwise/internal/config"
	"github.com/mrlokans/listenwise/internal/connector"
	"github.com/mrlokans/listenwise/internal/entities"
)

// StatusCommand prints an owner's connection and run status, or disconnects
// the owner.
type StatusCommand struct {
	OwnerID      uint
	Disconnect   bool
	DatabasePath string

	Out io.Writer
}

func NewStatusCommand() *StatusCommand {
	return &StatusCommand{Out: os.Stdout}
}

// NewDisconnectCommand is StatusCommand with Disconnect preset.
func NewDisconnectCommand() *StatusCommand {
	return &StatusCommand{Disconnect: true, Out: os.Stdout}
}

func (cmd *StatusCommand) ParseFlags(args []string) error {
	name := "status"
	if cmd.Disconnect {
		name = "disconnect"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)

	fs.UintVar(&cmd.OwnerID, "owner", 0, "Owner ID (required)")
	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the database file (default: $DATABASE_PATH or "+config.DefaultDatabasePath+")")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s %s -owner <id> [options]\n\n", os.Args[0], name)
		if cmd.Disconnect {
			fmt.Fprintf(os.Stderr, "Forget the owner's stored session. The synced library is kept.\n\n")
		} else {
			fmt.Fprintf(os.Stderr, "Show the owner's connection, library size and the latest sync and\nrecommendation runs.\n\n")
		}
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	return requireOwner(cmd.OwnerID)
}

func (cmd *StatusCommand) Run() error {
	conn, closeFn, err := openConnector(cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer closeFn()

	return cmd.run(context.Background(), conn)
}

func (cmd *StatusCommand) run(ctx context.Context, conn *connector.Connector) error {
	out := stdout(cmd.Out)

	if cmd.Disconnect {
		if err := conn.Disconnect(ctx, cmd.OwnerID); err != nil {
			return err
		}
		fmt.Fprintf(out, "Owner %d disconnected\n", cmd.OwnerID)
		return nil
	}

	cred, err := conn.CredentialStatus(cmd.OwnerID)
	switch {
	case errors.Is(err, connector.ErrNotConnected):
		fmt.Fprintln(out, "Connection:  not connected")
	case err != nil:
		return err
	default:
		fmt.Fprintf(out, "Connection:  %s (%s)\n", cred.Status, cred.Marketplace)
		if !cred.ExpiresAt.IsZero() {
			fmt.Fprintf(out, "Expires:     %s\n", cred.ExpiresAt.Local().Format("2006-01-02 15:04"))
		}
		if cred.LastError != "" {
			fmt.Fprintf(out, "Last error:  %s\n", cred.LastError)
		}
	}

	for _, kind := range []entities.RunKind{entities.RunKindSync, entities.RunKindRecommend} {
		claim, err := conn.RunStatus(cmd.OwnerID, kind)
		if err != nil {
			return err
		}
		label := fmt.Sprintf("%-12s", "Last "+string(kind)+":")
		if claim == nil {
			fmt.Fprintf(out, "%s never\n", label)
			continue
		}
		status := string(claim.Status)
		if claim.Status == entities.RunStatusRunning {
			active, err := conn.RunActive(cmd.OwnerID, kind)
			if err != nil {
				return err
			}
			if !active {
				status = "abandoned"
			}
		}
		fmt.Fprintf(out, "%s %s at %s\n", label, status, claim.StartedAt.Local().Format("2006-01-02 15:04"))
	}

	summary, err := conn.LibrarySummary(cmd.OwnerID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Library:     %d books (%d hidden)\n", summary.Total, summary.Total-summary.Visible)
	return nil
}
