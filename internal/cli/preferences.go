package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mrlokans/listenwise/internal/config"
	"github.com/mrlokans/listenwise/internal/connector"
	"github.com/mrlokans/listenwise/internal/entities"
)

// PreferencesCommand shows or updates an owner's preferences. Only flags
// given on the command line are changed.
type PreferencesCommand struct {
	OwnerID      uint
	Update       connector.PreferencesUpdate
	JSON         bool
	DatabasePath string

	Out io.Writer
}

func NewPreferencesCommand() *PreferencesCommand {
	return &PreferencesCommand{Out: os.Stdout}
}

func (cmd *PreferencesCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("preferences", flag.ExitOnError)

	var (
		language      string
		marketplace   string
		maxPrice      float64
		currency      string
		notifications bool
		priceAlerts   bool
		newReleases   bool
	)

	fs.UintVar(&cmd.OwnerID, "owner", 0, "Owner ID (required)")
	fs.StringVar(&language, "language", "", "Preferred language; empty shows every language")
	fs.StringVar(&marketplace, "marketplace", "", "Marketplace code")
	fs.Float64Var(&maxPrice, "max-price", 0, "Cash price up to which a book is bought outright")
	fs.StringVar(&currency, "currency", "", "Three-letter currency code")
	fs.BoolVar(&notifications, "notifications", false, "Enable notifications")
	fs.BoolVar(&priceAlerts, "price-alerts", false, "Enable price alerts")
	fs.BoolVar(&newReleases, "new-releases", false, "Enable new release alerts")
	fs.BoolVar(&cmd.JSON, "json", false, "Print preferences as JSON")
	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the database file (default: $DATABASE_PATH or "+config.DefaultDatabasePath+")")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s preferences -owner <id> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Show the owner's preferences, or change the ones given as flags.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s preferences -owner 1 -language german -max-price 9.99\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s preferences -owner 1 -language \"\"\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "language":
			cmd.Update.PreferredLanguage = &language
		case "marketplace":
			cmd.Update.Marketplace = &marketplace
		case "max-price":
			cmd.Update.MaxPrice = &maxPrice
		case "currency":
			cmd.Update.Currency = &currency
		case "notifications":
			cmd.Update.NotificationsEnabled = &notifications
		case "price-alerts":
			cmd.Update.PriceAlertEnabled = &priceAlerts
		case "new-releases":
			cmd.Update.NewReleaseAlerts = &newReleases
		}
	})

	return requireOwner(cmd.OwnerID)
}

func (cmd *PreferencesCommand) hasChanges() bool {
	return cmd.Update != (connector.PreferencesUpdate{})
}

func (cmd *PreferencesCommand) Run() error {
	conn, closeFn, err := openConnector(cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer closeFn()

	return cmd.run(context.Background(), conn)
}

func (cmd *PreferencesCommand) run(ctx context.Context, conn *connector.Connector) error {
	out := stdout(cmd.Out)

	var (
		prefs *entities.Preferences
		err   error
	)
	if cmd.hasChanges() {
		prefs, err = conn.UpdatePreferences(ctx, cmd.OwnerID, cmd.Update)
	} else {
		prefs, err = conn.GetPreferences(cmd.OwnerID)
	}
	if err != nil {
		return err
	}

	if cmd.JSON {
		return printJSON(out, prefs)
	}

	language := prefs.PreferredLanguage
	if language == "" {
		language = "(any)"
	}
	fmt.Fprintf(out, "Language:      %s\n", language)
	fmt.Fprintf(out, "Marketplace:   %s\n", prefs.Marketplace)
	fmt.Fprintf(out, "Max price:     %.2f %s\n", prefs.MaxPrice, prefs.Currency)
	fmt.Fprintf(out, "Notifications: %t\n", prefs.NotificationsEnabled)
	fmt.Fprintf(out, "Price alerts:  %t\n", prefs.PriceAlertEnabled)
	fmt.Fprintf(out, "New releases:  %t\n", prefs.NewReleaseAlerts)
	return nil
}
