package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"cryptoscan/internal/binview"
	"cryptoscan/internal/elfx"
	"cryptoscan/internal/ir"
	"cryptoscan/internal/logging"
	"cryptoscan/internal/report"
	"cryptoscan/internal/scan"
	"cryptoscan/internal/ui/colorize"
)

var (
	scanStatic      bool
	scanSignature   bool
	scansDir        string
	scanDebugAddr   string
	scanNoTUI       bool
	scanMarkdownOut bool
	scanContext     int
)

var scanCmd = &cobra.Command{
	Use:   "scan [binary]",
	Short: "Scan a binary for known cryptographic constants",
	Long: `Scan runs the enabled signature definitions against the binary's
mapped byte stream and against the constants of its lifted instruction
stream, then applies symbols at data-match addresses and renders a
report.`,
	Example: `
# Scan with the bundled signatures
cryptoscan scan /path/to/libgame.so

# Plain output, custom signature directory
cryptoscan scan -n --scans ./my-scans /path/to/binary
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if scanNoTUI || !term.IsTerminal(os.Stdout.Fd()) {
			return runScanPlain(args[0])
		}
		return runScanTUI(args[0])
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanStatic, "static", true, "Run the data and IL constant scans")
	scanCmd.Flags().BoolVar(&scanSignature, "signature", false, "Run the signature scan stage")
	scanCmd.Flags().StringVar(&scansDir, "scans", "scans", "Directory of signature definition files")
	scanCmd.Flags().StringVar(&scanDebugAddr, "debug-address", "", "Hex address at which to trace trigger evaluation")
	scanCmd.Flags().BoolVarP(&scanNoTUI, "no-tui", "n", false, "Plain output without the interactive view")
	scanCmd.Flags().BoolVar(&scanMarkdownOut, "markdown", false, "Print the markdown report instead of plain text")
	scanCmd.Flags().IntVar(&scanContext, "context", 0, "Instructions of disassembly context to print around IL matches")
}

// scanInputs bundles everything one run needs.
type scanInputs struct {
	im      *elfx.Image
	configs []*scan.Config
	instrs  []*ir.Instruction
	opts    scan.Options
}

func buildScanInputs(path string, logger *log.Logger) (*scanInputs, error) {
	configs, err := scan.LoadConfigs(scansDir, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded configurations", "count", len(configs))

	opts := scan.Options{Static: scanStatic, Signature: scanSignature}
	if scanDebugAddr != "" {
		addr, err := strconv.ParseUint(strings.TrimPrefix(scanDebugAddr, "0x"), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid debug address %q: %w", scanDebugAddr, err)
		}
		opts.DebugAddress = &addr
	}

	im, err := elfx.Open(path)
	if err != nil {
		return nil, err
	}

	instrs, err := ir.LiftText(im)
	if err != nil {
		// The data scan can still run; the IL scan just sees no stream.
		logger.Warn("Could not lift instruction stream", "error", err)
	}

	return &scanInputs{im: im, configs: configs, instrs: instrs, opts: opts}, nil
}

func (in *scanInputs) orchestrator(progress scan.ProgressFunc, logger *log.Logger) *scan.Orchestrator {
	return &scan.Orchestrator{
		Configs:  in.configs,
		Reader:   binview.New(in.im),
		Instrs:   in.instrs,
		Host:     in.im,
		Options:  in.opts,
		Progress: progress,
		Log:      logger,
	}
}

func runScanPlain(path string) error {
	lc := logging.NewLogger()
	defer lc.Close()
	logger := lc.Logger

	inputs, err := buildScanInputs(path, logger)
	if err != nil {
		return err
	}
	defer inputs.im.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	orch := inputs.orchestrator(func(msg string) { logger.Info(msg) }, logger)
	result := orch.Run(ctx)

	if len(result.Matches) == 0 && !result.Cancelled {
		fmt.Println("No crypto constructs identified.")
		return nil
	}

	rep := report.New(result).WithSymbols(inputs.im)
	if scanMarkdownOut {
		fmt.Print(rep.Markdown())
	} else {
		fmt.Print(rep.Text())
	}

	if scanContext > 0 {
		printMatchContext(inputs.im, result.Matches, scanContext, logger)
	}
	return nil
}

// printMatchContext disassembles the executable section once and prints
// the instructions around every IL match.
func printMatchContext(im *elfx.Image, matches []scan.Match, around int, logger *log.Logger) {
	stream, err := ir.DecodeText(im)
	if err != nil {
		logger.Warn("No disassembly context available", "error", err)
		return
	}

	for _, m := range matches {
		if m.Kind != scan.MatchILConstant {
			continue
		}
		window := stream.Window(m.Instr.Addr, around, around)
		if len(window) == 0 {
			continue
		}

		fmt.Printf("\n%s at %#x:\n", m.Scan.Name, m.Instr.Addr)
		var sb strings.Builder
		for _, inst := range window {
			marker := " "
			if inst.VA == m.Instr.Addr {
				marker = ">"
			}
			fmt.Fprintf(&sb, "%s %#x  %s\n", marker, inst.VA, inst.Text)
		}
		highlighted, err := colorize.Assembly(sb.String())
		if err != nil {
			highlighted = sb.String()
		}
		fmt.Print(highlighted)
	}
}
