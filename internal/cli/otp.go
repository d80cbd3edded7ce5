package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mrlokans/listenwise/internal/config"
	"github.com/mrlokans/listenwise/internal/connector"
)

// OTPCommand completes an open one-time code challenge.
type OTPCommand struct {
	ChallengeRef string
	Code         string
	DatabasePath string

	Out io.Writer
}

func NewOTPCommand() *OTPCommand {
	return &OTPCommand{Out: os.Stdout}
}

func (cmd *OTPCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("otp", flag.ExitOnError)

	fs.StringVar(&cmd.ChallengeRef, "challenge", "", "Challenge reference printed by login (required)")
	fs.StringVar(&cmd.Code, "code", "", "One-time code (required)")
	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the database file (default: $DATABASE_PATH or "+config.DefaultDatabasePath+")")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s otp -challenge <ref> -code <code>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Submit the one-time code for a pending login.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.ChallengeRef == "" {
		return fmt.Errorf("required flag -challenge not provided")
	}
	if cmd.Code == "" {
		return fmt.Errorf("required flag -code not provided")
	}
	return nil
}

func (cmd *OTPCommand) Run() error {
	conn, closeFn, err := openConnector(cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer closeFn()

	return cmd.run(context.Background(), conn)
}

func (cmd *OTPCommand) run(ctx context.Context, conn *connector.Connector) error {
	out := stdout(cmd.Out)

	result, err := conn.SubmitOTP(ctx, cmd.ChallengeRef, cmd.Code)
	if err != nil {
		if result != nil && result.AttemptsRemaining > 0 {
			fmt.Fprintf(out, "Code rejected, %d attempts left\n", result.AttemptsRemaining)
		}
		return err
	}

	printAuthResult(out, result)
	return nil
}
