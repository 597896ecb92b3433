// Package report renders the outcome of one scan run as markdown for
// terminal display and as plain text for piping or saving. The report
// is a pure function of the matches and the cancellation flag; symbol
// context is optional decoration.
package report

import (
	"fmt"
	"strings"

	"cryptoscan/internal/elfx"
	"cryptoscan/internal/scan"
)

// DefaultTitle heads every scan report.
const DefaultTitle = "CryptoScan results"

// SymbolSource resolves the symbol enclosing an address, used to name
// the function around an IL match. elfx.Image satisfies it.
type SymbolSource interface {
	SymbolAt(va uint64) (elfx.Sym, bool)
}

// Report is a renderable summary of one scan run.
type Report struct {
	Title     string
	Matches   []scan.Match
	Cancelled bool

	symbols SymbolSource
}

// New builds a report from a scan result.
func New(result *scan.Result) *Report {
	return &Report{
		Title:     DefaultTitle,
		Matches:   result.Matches,
		Cancelled: result.Cancelled,
	}
}

// WithSymbols decorates IL matches with their enclosing function name.
func (r *Report) WithSymbols(src SymbolSource) *Report {
	r.symbols = src
	return r
}

func (r *Report) split() (data, il []scan.Match) {
	for _, m := range r.Matches {
		switch m.Kind {
		case scan.MatchDataConstant:
			data = append(data, m)
		case scan.MatchILConstant:
			il = append(il, m)
		}
	}
	return data, il
}

func (r *Report) summary() string {
	plural := "es"
	if len(r.Matches) == 1 {
		plural = ""
	}
	return fmt.Sprintf("Identified %d match%s.", len(r.Matches), plural)
}

// Markdown renders the report for rich terminal display.
func (r *Report) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", r.Title)

	if r.Cancelled {
		sb.WriteString("> Scan cancelled before completion; results may be partial.\n\n")
	}
	sb.WriteString(r.summary())
	sb.WriteString("\n")

	data, il := r.split()

	if len(data) > 0 {
		sb.WriteString("\n## Data constant matches\n\n")
		sb.WriteString("| Address | Signature | Description |\n")
		sb.WriteString("|---|---|---|\n")
		for _, m := range data {
			fmt.Fprintf(&sb, "| `%#x` | %s | %s |\n", m.Addr, m.Scan.Name, m.Scan.Description)
		}
	}

	if len(il) > 0 {
		sb.WriteString("\n## IL constant matches\n\n")
		sb.WriteString("| Address | Signature | Matched chunk | Function |\n")
		sb.WriteString("|---|---|---|---|\n")
		for _, m := range il {
			fmt.Fprintf(&sb, "| `%#x` | %s | `%x` | %s |\n",
				m.Instr.Addr, m.Scan.Name, m.Chunk, r.functionAt(m.Instr.Addr))
		}
	}

	return sb.String()
}

// Text renders the report as plain text.
func (r *Report) Text() string {
	var sb strings.Builder
	sb.WriteString(r.Title + "\n")
	sb.WriteString(strings.Repeat("=", len(r.Title)) + "\n\n")

	if r.Cancelled {
		sb.WriteString("Scan cancelled before completion; results may be partial.\n\n")
	}
	sb.WriteString(r.summary())
	sb.WriteString("\n")

	data, il := r.split()

	if len(data) > 0 {
		sb.WriteString("\nData constant matches:\n")
		for _, m := range data {
			fmt.Fprintf(&sb, "  %#x  %s  (%s)\n", m.Addr, m.Scan.Name, m.Scan.Description)
		}
	}

	if len(il) > 0 {
		sb.WriteString("\nIL constant matches:\n")
		for _, m := range il {
			line := fmt.Sprintf("  %#x  %s  chunk %x", m.Instr.Addr, m.Scan.Name, m.Chunk)
			if fn := r.functionAt(m.Instr.Addr); fn != "" {
				line += "  in " + fn
			}
			sb.WriteString(line + "\n")
		}
	}

	return sb.String()
}

func (r *Report) functionAt(va uint64) string {
	if r.symbols == nil {
		return ""
	}
	sym, ok := r.symbols.SymbolAt(va)
	if !ok {
		return ""
	}
	if sym.Demangled != "" {
		return sym.Demangled
	}
	return sym.Name
}
