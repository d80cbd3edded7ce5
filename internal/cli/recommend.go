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
	"github.com/mrlokans/listenwise/internal/recommend"
)

// RecommendCommand generates, lists or dismisses recommendations.
type RecommendCommand struct {
	OwnerID      uint
	Limits       recommend.Limits
	ListOnly     bool
	Kind         string
	Limit        int
	Dismiss      uint
	JSON         bool
	DatabasePath string

	Out io.Writer
}

func NewRecommendCommand() *RecommendCommand {
	return &RecommendCommand{Out: os.Stdout}
}

func (cmd *RecommendCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("recommend", flag.ExitOnError)

	fs.UintVar(&cmd.OwnerID, "owner", 0, "Owner ID (required)")
	fs.IntVar(&cmd.Limits.Authors, "authors", 0, "Top authors to search (default: $RECOMMEND_LIMIT_AUTHORS)")
	fs.IntVar(&cmd.Limits.Narrators, "narrators", 0, "Top narrators to search (default: $RECOMMEND_LIMIT_NARRATORS)")
	fs.IntVar(&cmd.Limits.Series, "series", 0, "Top series to search (default: $RECOMMEND_LIMIT_SERIES)")
	fs.BoolVar(&cmd.ListOnly, "list", false, "List current recommendations without generating")
	fs.StringVar(&cmd.Kind, "kind", "", "Only list one kind: author, narrator or series")
	fs.IntVar(&cmd.Limit, "limit", 0, "Maximum recommendations to print (0 = all)")
	fs.UintVar(&cmd.Dismiss, "dismiss", 0, "Dismiss the recommendation with this ID")
	fs.BoolVar(&cmd.JSON, "json", false, "Print recommendations as JSON")
	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the database file (default: $DATABASE_PATH or "+config.DefaultDatabasePath+")")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s recommend -owner <id> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Search the store for books by the owner's favourite authors, narrators\n")
		fmt.Fprintf(os.Stderr, "and series, and print what they do not own yet.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s recommend -owner 1 -authors 3 -narrators 0 -series 2\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s recommend -owner 1 -list -kind series\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s recommend -owner 1 -dismiss 42\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := requireOwner(cmd.OwnerID); err != nil {
		return err
	}
	if cmd.Limits.Authors < 0 || cmd.Limits.Narrators < 0 || cmd.Limits.Series < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	switch entities.RecommendationKind(cmd.Kind) {
	case "", entities.RecommendationKindAuthor, entities.RecommendationKindNarrator, entities.RecommendationKindSeries:
	default:
		return fmt.Errorf("unknown kind %q", cmd.Kind)
	}
	return nil
}

func (cmd *RecommendCommand) Run() error {
	conn, closeFn, err := openConnector(cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer closeFn()

	return cmd.run(context.Background(), conn)
}

func (cmd *RecommendCommand) run(ctx context.Context, conn *connector.Connector) error {
	out := stdout(cmd.Out)

	if cmd.Dismiss != 0 {
		if err := conn.DismissRecommendation(cmd.OwnerID, cmd.Dismiss); err != nil {
			return err
		}
		fmt.Fprintf(out, "Dismissed recommendation %d\n", cmd.Dismiss)
		return nil
	}

	if !cmd.ListOnly {
		if _, err := conn.GenerateRecommendations(ctx, cmd.OwnerID, cmd.Limits); err != nil {
			return err
		}
	}

	recs, err := conn.ListRecommendations(cmd.OwnerID, entities.RecommendationKind(cmd.Kind), cmd.Limit)
	if err != nil {
		return err
	}

	if cmd.JSON {
		return printJSON(out, recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(out, "No recommendations.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tBECAUSE OF\tTITLE\tAUTHORS\tPRICE\tBUY WITH")
	for _, r := range recs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Kind, r.SourceName, r.Title, r.Authors, formatPrice(r.Price, r.Currency), r.PurchaseMethod)
	}
	return tw.Flush()
}

func formatPrice(price *float64, currency string) string {
	if price == nil {
		return "-"
	}
	if currency == "" {
		return fmt.Sprintf("%.2f", *price)
	}
	return fmt.Sprintf("%.2f %s", *price, currency)
}
