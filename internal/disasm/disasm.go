// Package disasm defines a common instruction representation used
// across architecture-specific decoders and the IR lifter.
package disasm

import "sort"

// Inst is a simplified decoded instruction.
type Inst struct {
	VA   uint64  // virtual address of instruction
	Text string  // formatted disassembly string
	Op   string  // mnemonic in lowercase
	Raw  [4]byte // raw encoding
}

// Stream is a linear sequence of instructions in ascending VA order.
type Stream []Inst

// IndexOf returns the position of the instruction at va, or -1 when the
// address falls between instructions or outside the stream.
func (s Stream) IndexOf(va uint64) int {
	i := sort.Search(len(s), func(i int) bool { return s[i].VA >= va })
	if i < len(s) && s[i].VA == va {
		return i
	}
	return -1
}

// Window returns the instructions surrounding va, up to before
// instructions ahead of it and after instructions past it. An address
// not in the stream yields an empty window.
func (s Stream) Window(va uint64, before, after int) Stream {
	i := s.IndexOf(va)
	if i < 0 {
		return nil
	}
	lo := i - before
	if lo < 0 {
		lo = 0
	}
	hi := i + after + 1
	if hi > len(s) {
		hi = len(s)
	}
	return s[lo:hi]
}
