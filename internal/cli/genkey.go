package cli

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mrlokans/listenwise/internal/config"
	"github.com/mrlokans/listenwise/internal/crypto"
)

// GenKeyCommand prints a fresh random master key.
type GenKeyCommand struct {
	Out io.Writer
}

func NewGenKeyCommand() *GenKeyCommand {
	return &GenKeyCommand{Out: os.Stdout}
}

func (cmd *GenKeyCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("gen-key", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s gen-key\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Print a random base64 master key for %s.\n", config.MasterKeyEnv)
	}
	return fs.Parse(args)
}

func (cmd *GenKeyCommand) Run() error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout(cmd.Out), key)
	return err
}
