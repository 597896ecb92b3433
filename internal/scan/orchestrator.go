package scan

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"cryptoscan/internal/ir"
)

// Host is the slice of the binary-analysis engine the orchestrator
// needs for post-processing: defining symbols at match addresses.
// Implementations must reject unmapped addresses.
type Host interface {
	DefineSymbol(offset uint64, label, kind string) error
}

// SymbolKindData marks symbols applied at data-constant match addresses.
const SymbolKindData = "data"

// Options selects the scan stages for one run.
type Options struct {
	// Static enables both the data constant scan and the IL constant scan.
	Static bool
	// Signature enables the signature scan stage.
	Signature bool
	// DebugAddress, if set, traces trigger evaluation at one address.
	DebugAddress *uint64
}

// Result aggregates one run's matches. Matches appear in discovery
// order: data-scan matches by ascending address, then IL matches in
// instruction-stream order.
type Result struct {
	Matches   []Match
	Cancelled bool
}

// Orchestrator runs the selected scanners in sequence over externally
// owned inputs and applies match directives through the host. It runs
// on a single worker; nothing here is safe for concurrent reuse.
type Orchestrator struct {
	Configs  []*Config
	Reader   ByteReader
	Instrs   []*ir.Instruction
	Host     Host
	Options  Options
	Progress ProgressFunc
	Log      *log.Logger
}

// Run executes the scan stages, checking for cancellation at every
// stage boundary. A cancelled run still post-processes whatever partial
// results were collected.
func (o *Orchestrator) Run(ctx context.Context) *Result {
	logger := o.Log
	if logger == nil {
		logger = log.Default()
	}

	var results []Match

	if o.Options.Static {
		o.progress("Commencing data constant scans...")
		data := &DataScanner{Progress: o.Progress, DebugAddress: o.Options.DebugAddress, Log: logger}
		results = append(results, data.Scan(ctx, o.Reader, o.Configs)...)

		if ctx.Err() == nil {
			o.progress("Commencing IL constant scans...")
			il := &ILScanner{Log: logger}
			results = append(results, il.Scan(ctx, o.Instrs, o.Configs)...)
		}
	}

	if o.Options.Signature && ctx.Err() == nil {
		o.progress("Running signature scans")
		results = append(results, o.runSignatureScans()...)
	}

	cancelled := ctx.Err() != nil
	if cancelled {
		o.progress("Cancelling scan, checking for partial results...")
	}

	if len(results) != 0 {
		plural := "es"
		if len(results) == 1 {
			plural = ""
		}
		o.progress(fmt.Sprintf("Scan found %d match%s", len(results), plural))
		o.applySymbols(results, logger)
	} else if !cancelled {
		o.progress("No scan results found")
	}

	return &Result{Matches: results, Cancelled: cancelled}
}

// runSignatureScans is a placeholder: the signature scan algorithm is
// not yet supported and the stage yields no matches.
func (o *Orchestrator) runSignatureScans() []Match {
	if o.Log != nil {
		o.Log.Warn("Signature scans are not yet supported")
	}
	return nil
}

// applySymbols defines a symbol at every data match whose config asks
// for one. Only data matches carry a stable absolute address; IL matches
// are never used for symbol naming. A rejected address is logged and
// skipped, never fatal.
func (o *Orchestrator) applySymbols(results []Match, logger *log.Logger) {
	if o.Host == nil {
		return
	}
	for _, result := range results {
		if result.Kind != MatchDataConstant || result.Scan.OnMatch.Type != MatchTypeSymbol {
			continue
		}
		if err := o.Host.DefineSymbol(result.Addr, result.Scan.OnMatch.Label, SymbolKindData); err != nil {
			logger.Error("Invalid address for symbol", "address", fmt.Sprintf("%#x", result.Addr), "error", err)
		}
	}
}

func (o *Orchestrator) progress(msg string) {
	if o.Progress != nil {
		o.Progress(msg)
	}
}

func progressLine(msg string, percentage int) string {
	return fmt.Sprintf("%s (%d%%)", msg, percentage)
}
