package cmd

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cryptoscan",
	Short: "Detect embedded cryptographic constructs in binaries",
	Long: `cryptoscan matches configurable constant signatures against an ELF
binary's raw byte stream and against the constants found in a lifted
instruction stream, identifying well-known crypto tables and magic
values regardless of the integer width they were compiled to.`,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(configsCmd)
}

func Execute() {
	// Check if --no-tui is present, or if output is being piped, to
	// bypass fang's automatic markdown rendering.
	noTUI := false
	for _, arg := range os.Args[1:] {
		if arg == "--no-tui" || arg == "-n" {
			noTUI = true
			break
		}
	}

	if !noTUI && !term.IsTerminal(os.Stdout.Fd()) {
		noTUI = true
	}

	if noTUI {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
	} else {
		if err := fang.Execute(
			context.Background(),
			rootCmd,
			fang.WithNotifySignal(os.Interrupt),
		); err != nil {
			os.Exit(1)
		}
	}
}
