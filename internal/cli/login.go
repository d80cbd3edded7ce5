package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mrlokans/listenwise/internal/catalog"
	"github.com/mrlokans/listenwise/internal/config"
	"github.com/mrlokans/listenwise/internal/connector"
	"github.com/mrlokans/listenwise/internal/session"
)

// PasswordEnv lets scripts pass the password without a flag.
const PasswordEnv = "LISTENWISE_PASSWORD"

// LoginCommand connects an owner to their marketplace account.
type LoginCommand struct {
	OwnerID      uint
	Marketplace  string
	Username     string
	Password     string
	OTP          string
	Interactive  bool
	DatabasePath string

	In  io.Reader
	Out io.Writer
}

func NewLoginCommand() *LoginCommand {
	return &LoginCommand{In: os.Stdin, Out: os.Stdout}
}

func (cmd *LoginCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)

	fs.UintVar(&cmd.OwnerID, "owner", 0, "Owner ID (required)")
	fs.StringVar(&cmd.Marketplace, "marketplace", "us", "Marketplace code")
	fs.StringVar(&cmd.Username, "user", "", "Account email or phone")
	fs.StringVar(&cmd.Password, "password", "", "Account password (default: $"+PasswordEnv+")")
	fs.StringVar(&cmd.OTP, "otp", "", "One-time code, if already known")
	fs.BoolVar(&cmd.Interactive, "interactive", true, "Prompt for missing password and one-time code")
	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the database file (default: $DATABASE_PATH or "+config.DefaultDatabasePath+")")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s login -owner <id> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Connect an owner to their audiobook store account. A stored session is\n")
		fmt.Fprintf(os.Stderr, "reused or refreshed; otherwise the credentials below are used.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s login -owner 1 -marketplace uk -user me@example.com\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s=secret %s login -owner 1 -user me@example.com -interactive=false\n", PasswordEnv, os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := requireOwner(cmd.OwnerID); err != nil {
		return err
	}
	if _, err := catalog.LookupMarketplace(cmd.Marketplace); err != nil {
		return err
	}
	if cmd.Password == "" {
		cmd.Password = os.Getenv(PasswordEnv)
	}

	return nil
}

func (cmd *LoginCommand) Run() error {
	conn, closeFn, err := openConnector(cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer closeFn()

	return cmd.run(context.Background(), conn)
}

func (cmd *LoginCommand) run(ctx context.Context, conn *connector.Connector) error {
	out := stdout(cmd.Out)
	in := bufio.NewReader(cmd.stdin())

	req := session.AuthRequest{
		OwnerID:     cmd.OwnerID,
		Marketplace: cmd.Marketplace,
		Username:    cmd.Username,
		Password:    cmd.Password,
	}
	if req.Username != "" && req.Password == "" && cmd.Interactive {
		password, err := prompt(in, out, "Password: ")
		if err != nil {
			return err
		}
		req.Password = password
	}

	result, err := conn.Authenticate(ctx, req)
	if err != nil {
		return err
	}

	if result.Status == session.StatusOTPRequired {
		code := cmd.OTP
		if code == "" && cmd.Interactive {
			code, err = prompt(in, out, "One-time code: ")
			if err != nil {
				return err
			}
		}
		if code == "" {
			fmt.Fprintf(out, "One-time code required. Challenge: %s\n", result.ChallengeRef)
			fmt.Fprintf(out, "Complete with: %s otp -challenge %s -code <code>\n", os.Args[0], result.ChallengeRef)
			return nil
		}

		result, err = conn.SubmitOTP(ctx, result.ChallengeRef, code)
		if err != nil {
			if result != nil && result.AttemptsRemaining > 0 {
				fmt.Fprintf(out, "Code rejected, %d attempts left. Challenge: %s\n", result.AttemptsRemaining, result.ChallengeRef)
			}
			return err
		}
	}

	printAuthResult(out, result)
	return nil
}

func (cmd *LoginCommand) stdin() io.Reader {
	if cmd.In == nil {
		return os.Stdin
	}
	return cmd.In
}

func printAuthResult(out io.Writer, result *session.AuthResult) {
	fmt.Fprintf(out, "Status: %s\n", result.Status)
	if result.ExpiresAt != nil {
		fmt.Fprintf(out, "Session expires: %s\n", result.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
}
