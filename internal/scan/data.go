package scan

import (
	"bytes"
	"context"

	"github.com/charmbracelet/log"
)

// ByteReader is the byte-level view of the binary's address space
// consumed by the data scanner. The reader's cursor is exclusively
// owned by the scanner for the duration of one scan.
type ByteReader interface {
	// Offset returns the cursor's current absolute position.
	Offset() uint64
	// SeekRelative moves the cursor by delta bytes without reading.
	SeekRelative(delta int64)
	// ReadByte reads the byte at the cursor and advances by one.
	// It returns false without advancing when the cursor sits on an
	// unreadable offset or past end-of-data.
	ReadByte() (byte, bool)
	// EOF reports whether the cursor has passed the end of data.
	EOF() bool
	// IsValidOffset reports whether an offset is mapped and readable.
	IsValidOffset(offset uint64) bool
	// Length returns the total scannable distance.
	Length() uint64
}

// ProgressFunc receives coarse human-readable progress updates.
type ProgressFunc func(msg string)

// Lookahead bounds for seekNextByte. The base bound fits constants
// stored as up to 128-bit integers; it roughly doubles when a null byte
// is the value being sought, since the seek then returns early.
const (
	lookaheadMax     = 15
	lookaheadMaxNull = lookaheadMax*2 + 1
)

// DataScanner performs a single forward pass over a binary's byte
// stream, matching configured constant signatures regardless of the
// integer width they were compiled to.
type DataScanner struct {
	// Progress, if set, receives an update at every 5% of covered distance.
	Progress ProgressFunc
	// DebugAddress, if set, logs trigger evaluation at that one address.
	DebugAddress *uint64
	// Log receives diagnostics for skipped configs. Defaults to log.Default().
	Log *log.Logger
}

// compiledScan pairs a config with its parsed flag bytes.
type compiledScan struct {
	cfg   *Config
	flags []byte
}

// compileStatic selects enabled static configs and parses their flags.
// Configs with malformed flags fail individually and are logged, never
// failing the run.
func compileStatic(configs []*Config, logger *log.Logger) []compiledScan {
	var scans []compiledScan
	for _, cfg := range configs {
		if cfg.Type != TypeStatic || !cfg.Enabled {
			continue
		}
		flags, err := cfg.FlagBytes()
		if err != nil {
			logger.Error("Skipping scan with malformed flags", "scan", cfg.Name, "error", err)
			continue
		}
		scans = append(scans, compiledScan{cfg: cfg, flags: flags})
	}
	return scans
}

// Scan walks the reader from its current position to end-of-data and
// returns every confirmed match in ascending address order. The scan is
// a single pass: each byte is compared against every config's trigger
// byte, and a trigger hit starts a bounded null-skipping lookahead for
// the remaining flag bytes. Cancellation of ctx stops the pass at the
// next iteration, returning the matches confirmed so far.
//
// Constants whose encoding embeds significant zero bytes at positions
// where the signature does not expect a zero will be missed; that is a
// known limit of the null-skipping heuristic.
func (s *DataScanner) Scan(ctx context.Context, r ByteReader, configs []*Config) []Match {
	logger := s.Log
	if logger == nil {
		logger = log.Default()
	}

	scans := compileStatic(configs, logger)

	var results []Match
	if len(scans) == 0 {
		return results
	}

	progressTrigger := 5
	startOffset := r.Offset()
	totalDistance := r.Length()

	for !r.EOF() && ctx.Err() == nil {
		debug := s.DebugAddress != nil && r.Offset() == *s.DebugAddress
		if debug {
			logger.Info("At debug address", "offset", r.Offset())
		}

		b, ok := s.nextByte(r)

		if s.Progress != nil && totalDistance > 0 {
			percentage := int((r.Offset() - startOffset) * 100 / totalDistance)
			if percentage >= progressTrigger {
				progressTrigger += 5
				for progressTrigger < percentage {
					progressTrigger += 5
				}
				s.Progress(progressLine("Scanning data for constants", percentage))
			}
		}

		if !ok {
			break
		}

		for _, scan := range scans {
			if debug {
				logger.Info("Checking trigger", "scan", scan.cfg.Name, "trigger", scan.flags[0], "byte", b)
			}
			if b != scan.flags[0] {
				continue
			}
			if debug {
				logger.Info("Trigger match at debug address", "scan", scan.cfg.Name)
			}

			// Cursor sits immediately after the trigger byte; every
			// lookahead below must be undone back to this position so
			// overlapping triggers are still seen.
			afterTrigger := r.Offset()
			flagCount := len(scan.flags) - 1

			testBytes := make([]byte, 0, flagCount)
			for i := 0; i < flagCount; i++ {
				nullWanted := scan.flags[i+1] == 0
				if testByte, ok := s.seekNextByte(r, nullWanted); ok {
					testBytes = append(testBytes, testByte)
				}
			}

			// Confirm only on exactly the right count and content.
			if len(testBytes) == flagCount && bytes.Equal(testBytes, scan.flags[1:]) {
				results = append(results, newDataMatch(scan.cfg, afterTrigger-1))
			}

			// Track back irrespective of the outcome.
			r.SeekRelative(int64(afterTrigger) - int64(r.Offset()))
		}
	}

	return results
}

// nextByte reads the next byte, stepping over unmapped offsets.
// Returns false at end-of-data.
func (s *DataScanner) nextByte(r ByteReader) (byte, bool) {
	for !r.IsValidOffset(r.Offset()) && !r.EOF() {
		r.SeekRelative(1)
	}
	if r.EOF() {
		return 0, false
	}
	return r.ReadByte()
}

// seekNextByte finds the next non-zero byte within a bounded distance,
// skipping zeros unless a zero is the value being sought. This copes
// with the same logical constant stored as a byte array or as an
// 8/16/32/64/128-bit integer with natural zero padding.
func (s *DataScanner) seekNextByte(r ByteReader, allowNull bool) (byte, bool) {
	maxDist := lookaheadMax
	if allowNull {
		maxDist = lookaheadMaxNull
	}

	for !r.IsValidOffset(r.Offset()) && !r.EOF() {
		r.SeekRelative(1)
	}

	dist := 0
	for !r.EOF() && dist <= maxDist {
		dist++
		b, ok := r.ReadByte()
		if !ok {
			r.SeekRelative(1)
			continue
		}
		if b != 0 || allowNull {
			return b, true
		}
	}
	return 0, false
}
