package main

import (
	"fmt"
	"os"

	"github.com/mrlokans/listenwise/internal/cli"
	"github.com/mrlokans/listenwise/internal/config"
	"github.com/mrlokans/listenwise/internal/entrypoint"
)

// Version information - set at build time via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

// command is implemented by every cli command.
type command interface {
	ParseFlags(args []string) error
	Run() error
}

func main() {
	// If no arguments or "serve" command, run the background service
	if len(os.Args) < 2 || os.Args[1] == "serve" {
		cfg := config.NewConfig()
		if err := entrypoint.Run(cfg, Version); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	name := os.Args[1]
	args := os.Args[2:]

	var cmd command
	switch name {
	case "login":
		cmd = cli.NewLoginCommand()
	case "otp":
		cmd = cli.NewOTPCommand()
	case "sync":
		cmd = cli.NewSyncCommand()
	case "recommend":
		cmd = cli.NewRecommendCommand()
	case "library":
		cmd = cli.NewLibraryCommand()
	case "preferences":
		cmd = cli.NewPreferencesCommand()
	case "status":
		cmd = cli.NewStatusCommand()
	case "disconnect":
		cmd = cli.NewDisconnectCommand()
	case "history":
		cmd = cli.NewHistoryCommand()
	case "gen-key":
		cmd = cli.NewGenKeyCommand()

	case "version":
		fmt.Printf("listenwise %s (%s)\n", Version, Commit)
		return

	case "-h", "--help", "help":
		printUsage()
		return

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	if err := cmd.ParseFlags(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve        Run task workers, scheduler and session refresher (default)\n")
	fmt.Fprintf(os.Stderr, "  login        Connect an owner to their store account\n")
	fmt.Fprintf(os.Stderr, "  otp          Submit the one-time code for a pending login\n")
	fmt.Fprintf(os.Stderr, "  sync         Fetch an owner's library\n")
	fmt.Fprintf(os.Stderr, "  recommend    Generate, list or dismiss recommendations\n")
	fmt.Fprintf(os.Stderr, "  library      List an owner's synced books\n")
	fmt.Fprintf(os.Stderr, "  preferences  Show or change an owner's preferences\n")
	fmt.Fprintf(os.Stderr, "  status       Show an owner's connection, library and runs\n")
	fmt.Fprintf(os.Stderr, "  disconnect   Forget an owner's stored session\n")
	fmt.Fprintf(os.Stderr, "  history      Show an owner's audit trail\n")
	fmt.Fprintf(os.Stderr, "  gen-key      Print a random master key for %s\n", config.MasterKeyEnv)
	fmt.Fprintf(os.Stderr, "  version      Print version information\n")
	fmt.Fprintf(os.Stderr, "\nUse '%s <command> -h' for help on a specific command.\n", os.Args[0])
}
