// Package cli implements the one-shot commands of the listenwise binary.
// Every command follows the same shape: ParseFlags validates arguments and
// Run performs the operation against the configured database.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/segmentio/encoding/json"

	"github.com/mrlokans/listenwise/internal/config"
	"github.com/mrlokans/listenwise/internal/connector"
)

// openConnector opens the connector from the environment, with dbPath
// overriding DATABASE_PATH when set. The caller runs the returned close func.
func openConnector(dbPath string) (*connector.Connector, func(), error) {
	cfg := config.NewConfig()
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	conn, db, err := connector.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return conn, func() { db.Close() }, nil
}

func requireOwner(ownerID uint) error {
	if ownerID == 0 {
		return fmt.Errorf("required flag -owner not provided")
	}
	return nil
}

// prompt writes label to out and reads one trimmed line from in.
func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimSpace(line), nil
}

func printJSON(out io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}

func stdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
