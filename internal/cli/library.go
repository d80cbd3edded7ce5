package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mrlokans/listenwise/internal/config"
	"github.com/mrlokans/listenwise/internal/connector"
	"github.com/mrlokans/listenwise/internal/database/library"
	"github.com/mrlokans/listenwise/internal/entities"
)

// LibraryCommand lists an owner's synced library, or shows one book.
type LibraryCommand struct {
	OwnerID      uint
	Query        library.EntryQuery
	ASIN         string
	JSON         bool
	DatabasePath string

	Out io.Writer
}

func NewLibraryCommand() *LibraryCommand {
	return &LibraryCommand{Out: os.Stdout}
}

func (cmd *LibraryCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("library", flag.ExitOnError)

	var sort string
	fs.UintVar(&cmd.OwnerID, "owner", 0, "Owner ID (required)")
	fs.StringVar(&cmd.Query.Search, "search", "", "Only books whose title or subtitle contains this text")
	fs.StringVar(&cmd.Query.Author, "author", "", "Only books by a matching author")
	fs.StringVar(&cmd.Query.Narrator, "narrator", "", "Only books read by a matching narrator")
	fs.StringVar(&cmd.Query.Series, "series", "", "Only books in a matching series")
	fs.BoolVar(&cmd.Query.IncludeHidden, "all", false, "Include books hidden by the language filter")
	fs.StringVar(&sort, "sort", string(library.SortTitle), "Order by title, release_date, runtime or acquired")
	fs.BoolVar(&cmd.Query.Desc, "desc", false, "Reverse the order")
	fs.IntVar(&cmd.Query.Limit, "limit", 20, "Books per page")
	fs.IntVar(&cmd.Query.Offset, "offset", 0, "Books to skip")
	fs.StringVar(&cmd.ASIN, "asin", "", "Show one book instead of a list")
	fs.BoolVar(&cmd.JSON, "json", false, "Print as JSON")
	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the database file (default: $DATABASE_PATH or "+config.DefaultDatabasePath+")")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s library -owner <id> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "List the owner's synced library. Text filters are case-insensitive.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s library -owner 1 -series expanse -sort release_date\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s library -owner 1 -asin B08G9PRS1K -json\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireOwner(cmd.OwnerID); err != nil {
		return err
	}
	cmd.Query.Sort = library.EntrySort(sort)
	if !library.ValidSort(cmd.Query.Sort) {
		return fmt.Errorf("unknown sort %q", sort)
	}
	if cmd.Query.Limit <= 0 {
		return fmt.Errorf("-limit must be positive")
	}
	if cmd.Query.Offset < 0 {
		return fmt.Errorf("-offset must not be negative")
	}
	return nil
}

func (cmd *LibraryCommand) Run() error {
	conn, closeFn, err := openConnector(cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer closeFn()

	return cmd.run(context.Background(), conn)
}

func (cmd *LibraryCommand) run(_ context.Context, conn *connector.Connector) error {
	out := stdout(cmd.Out)

	if cmd.ASIN != "" {
		detail, err := conn.Book(cmd.OwnerID, cmd.ASIN)
		if err != nil {
			return err
		}
		if cmd.JSON {
			return printJSON(out, detail)
		}
		printBook(out, detail)
		return nil
	}

	page, err := conn.Library(cmd.OwnerID, cmd.Query)
	if err != nil {
		return err
	}
	if cmd.JSON {
		return printJSON(out, page)
	}
	if len(page.Entries) == 0 {
		fmt.Fprintln(out, "No books.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ASIN\tTITLE\tAUTHOR\tLENGTH\tPROGRESS")
	for _, e := range page.Entries {
		title := e.Book.Title
		if !e.Visible {
			title += " (hidden)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Book.ASINValue(), title, contributorNames(e.Book.Contributors, entities.RoleAuthor),
			formatRuntime(e.Book.RuntimeMinutes), progress(e))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if page.Total > int64(len(page.Entries)) {
		fmt.Fprintf(out, "(%d-%d of %d books)\n", page.Offset+1, page.Offset+len(page.Entries), page.Total)
	}
	return nil
}

func printBook(out io.Writer, d *connector.BookDetail) {
	title := d.Book.Title
	if d.Book.Subtitle != "" {
		title += ": " + d.Book.Subtitle
	}
	fmt.Fprintf(out, "Title:      %s\n", title)
	fmt.Fprintf(out, "ASIN:       %s\n", d.Book.ASINValue())
	fmt.Fprintf(out, "Authors:    %s\n", contributorNames(d.Book.Contributors, entities.RoleAuthor))
	if narrators := contributorNames(d.Book.Contributors, entities.RoleNarrator); narrators != "" {
		fmt.Fprintf(out, "Narrators:  %s\n", narrators)
	}
	for _, s := range d.Book.Series {
		position := s.SequenceLabel
		if s.Sequence != nil {
			position = fmt.Sprintf("%g", *s.Sequence)
		}
		if position != "" {
			fmt.Fprintf(out, "Series:     %s #%s\n", s.Series.Title, position)
		} else {
			fmt.Fprintf(out, "Series:     %s\n", s.Series.Title)
		}
	}
	if d.Book.Language != "" {
		fmt.Fprintf(out, "Language:   %s\n", d.Book.Language)
	}
	if d.Book.RuntimeMinutes != nil {
		fmt.Fprintf(out, "Length:     %s\n", formatRuntime(d.Book.RuntimeMinutes))
	}
	if d.Book.ReleaseDate != nil {
		fmt.Fprintf(out, "Released:   %s\n", d.Book.ReleaseDate.Format("2006-01-02"))
	}
	fmt.Fprintf(out, "Progress:   %s\n", progress(*d.Entry))
	if !d.Entry.Visible {
		fmt.Fprintln(out, "Hidden by the language filter")
	}
}

func contributorNames(links []entities.BookContributor, role entities.ContributorRole) string {
	var names []string
	for _, l := range links {
		if l.Role == role {
			names = append(names, l.Contributor.Name)
		}
	}
	return strings.Join(names, ", ")
}

func formatRuntime(minutes *int) string {
	if minutes == nil {
		return "-"
	}
	return fmt.Sprintf("%dh%02dm", *minutes/60, *minutes%60)
}

func progress(e entities.LibraryEntry) string {
	switch {
	case e.IsFinished:
		return "yes"
	case e.PercentComplete != nil:
		return fmt.Sprintf("%.0f%%", *e.PercentComplete)
	default:
		return "-"
	}
}
