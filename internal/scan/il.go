package scan

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"cryptoscan/internal/ir"
)

// ILScanner matches constants extracted from lifted IR against chunked
// flag signatures. Constants wider than one byte are compared piecewise
// against flag chunks of the constant's width, which also catches
// logical constants that compilers broke up across several instructions.
type ILScanner struct {
	// Log receives diagnostics for skipped configs. Defaults to log.Default().
	Log *log.Logger
}

// Scan extracts the constants of every instruction in the stream and
// returns one match per (instruction, chunk) pair that agrees. Matches
// are returned in instruction-stream order.
func (s *ILScanner) Scan(ctx context.Context, instrs []*ir.Instruction, configs []*Config) []Match {
	logger := s.Log
	if logger == nil {
		logger = log.Default()
	}

	scans := compileStatic(configs, logger)

	var results []Match
	if len(scans) == 0 {
		return results
	}

	var consts []*ir.Instruction
	for _, instr := range instrs {
		consts = append(consts, ExtractConstants(instr)...)
	}

	for _, c := range consts {
		if ctx.Err() != nil {
			break
		}
		// Single-byte constants are far too common to be meaningful.
		if c.Size <= 1 {
			continue
		}
		constValue := fmt.Sprintf("%0*x", c.Size*2, c.Value)

		for _, scan := range scans {
			for _, chunk := range chunkFlags(scan.flags, c.Size) {
				if hexChunk(chunk) == constValue {
					results = append(results, newILMatch(scan.cfg, c, chunk))
				}
			}
		}
	}

	return results
}

// chunkFlags partitions flags into consecutive chunks of length width.
// A short trailing chunk cannot correspond to a full-width constant and
// is discarded, never padded.
func chunkFlags(flags []byte, width int) [][]byte {
	if width <= 0 {
		return nil
	}
	var chunks [][]byte
	for i := 0; i+width <= len(flags); i += width {
		chunks = append(chunks, flags[i:i+width])
	}
	return chunks
}

// hexChunk renders a flag chunk the same way constants are rendered:
// lowercase hex, two digits per byte, no radix prefix.
func hexChunk(chunk []byte) string {
	return fmt.Sprintf("%x", chunk)
}
