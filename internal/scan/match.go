package scan

import (
	"fmt"

	"cryptoscan/internal/ir"
)

// MatchKind tags the two match variants so consumers can distinguish
// them exhaustively without type inspection.
type MatchKind int

const (
	// MatchDataConstant is a hit in the raw byte stream; Addr is set.
	MatchDataConstant MatchKind = iota
	// MatchILConstant is a hit on a lifted constant; Instr and Chunk are set.
	MatchILConstant
)

// Match is one confirmed signature hit. Matches are immutable once
// created and live only for the duration of one scan run.
type Match struct {
	Kind  MatchKind
	Scan  *Config
	Addr  uint64          // MatchDataConstant: absolute address of the trigger byte
	Instr *ir.Instruction // MatchILConstant: the constant node that matched
	Chunk []byte          // MatchILConstant: the flag sub-sequence that matched
}

func newDataMatch(cfg *Config, addr uint64) Match {
	return Match{Kind: MatchDataConstant, Scan: cfg, Addr: addr}
}

func newILMatch(cfg *Config, instr *ir.Instruction, chunk []byte) Match {
	return Match{Kind: MatchILConstant, Scan: cfg, Instr: instr, Chunk: chunk}
}

func (m Match) String() string {
	switch m.Kind {
	case MatchDataConstant:
		return fmt.Sprintf("%s at %#x", m.Scan.Name, m.Addr)
	case MatchILConstant:
		return fmt.Sprintf("%s in instruction at %#x", m.Scan.Name, m.Instr.Addr)
	default:
		return fmt.Sprintf("%s (unknown match kind)", m.Scan.Name)
	}
}
