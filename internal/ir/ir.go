// Package ir defines a small expression-tree representation for lifted
// instructions. Every node is an Instruction; constant leaves carry a
// value and an explicit byte width so scanners can match them without
// caring about the original encoding.
package ir

import "fmt"

// Op identifies the kind of an IR node.
type Op int

const (
	OpUnknown Op = iota
	OpConst
	OpSetReg
	OpArith
	OpLogic
	OpCompare
	OpLoad
	OpStore
	OpBranch
	OpCall
)

func (op Op) String() string {
	switch op {
	case OpConst:
		return "const"
	case OpSetReg:
		return "set_reg"
	case OpArith:
		return "arith"
	case OpLogic:
		return "logic"
	case OpCompare:
		return "compare"
	case OpLoad:
		return "load"
	case OpStore:
		return "store"
	case OpBranch:
		return "branch"
	case OpCall:
		return "call"
	default:
		return "unknown"
	}
}

// Instruction is one node of a lifted expression tree. A node with
// Op == OpConst is a constant leaf; Value and Size are only meaningful
// on such leaves. Any other node may nest sub-expressions through
// Operands.
type Instruction struct {
	Addr     uint64 // virtual address of the source instruction
	Op       Op
	Value    uint64 // constant value, OpConst leaves only
	Size     int    // result width in bytes
	Text     string // formatted source instruction, for reports
	Operands []Operand
}

func (i *Instruction) isOperand() {}

func (i *Instruction) String() string {
	if i.Op == OpConst {
		return fmt.Sprintf("const.%d(%#x)", i.Size, i.Value)
	}
	return fmt.Sprintf("%s@%#x", i.Op, i.Addr)
}

// Operand is a single operand of an Instruction. Sub-expressions are
// *Instruction values; registers appear as Register. Scanners only
// descend into sub-expressions.
type Operand interface {
	isOperand()
}

// Register is a named register operand.
type Register string

func (Register) isOperand() {}

// Const builds a constant leaf of the given byte width.
func Const(addr, value uint64, size int) *Instruction {
	return &Instruction{Addr: addr, Op: OpConst, Value: value, Size: size}
}

// WidthOf returns the natural byte width of a value: the smallest of
// 1, 2, 4 or 8 that holds it.
func WidthOf(v uint64) int {
	switch {
	case v <= 0xff:
		return 1
	case v <= 0xffff:
		return 2
	case v <= 0xffffffff:
		return 4
	default:
		return 8
	}
}
