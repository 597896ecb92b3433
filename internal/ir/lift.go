package ir

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"

	"cryptoscan/internal/disasm"
	"cryptoscan/internal/elfx"
)

// LiftText decodes the image's executable section and lifts every
// instruction into the IR, folding movz/movk sequences back into the
// wide constants they materialize. Undecodable words are skipped; the
// stream stays in address order.
func LiftText(im *elfx.Image) ([]*Instruction, error) {
	if im.Text.Size == 0 {
		return nil, fmt.Errorf("no executable section in %s", im.Path)
	}
	data, ok := im.ReadBytesVA(im.Text.VA, int(im.Text.Size))
	if !ok {
		return nil, fmt.Errorf("unreadable executable section at %#x", im.Text.VA)
	}

	stream := make([]*Instruction, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		va := im.Text.VA + uint64(i)
		inst, err := arm64asm.Decode(data[i : i+4])
		if err != nil {
			continue
		}
		stream = append(stream, liftInst(va, inst))
	}
	return FoldMovConstants(stream), nil
}

// DecodeText returns the plain disassembly of the executable section,
// for report context around IL matches.
func DecodeText(im *elfx.Image) (disasm.Stream, error) {
	if im.Text.Size == 0 {
		return nil, fmt.Errorf("no executable section in %s", im.Path)
	}
	data, ok := im.ReadBytesVA(im.Text.VA, int(im.Text.Size))
	if !ok {
		return nil, fmt.Errorf("unreadable executable section at %#x", im.Text.VA)
	}

	stream := make(disasm.Stream, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		va := im.Text.VA + uint64(i)
		inst, err := arm64asm.Decode(data[i : i+4])
		if err != nil {
			continue
		}
		d := disasm.Inst{
			VA:   va,
			Text: strings.ToLower(inst.String()),
			Op:   strings.ToLower(inst.Op.String()),
		}
		copy(d.Raw[:], data[i:i+4])
		stream = append(stream, d)
	}
	return stream, nil
}

// liftInst maps one decoded instruction to an IR node. Register
// operands become Register values; immediates become constant leaves
// with their natural byte width.
func liftInst(va uint64, inst arm64asm.Inst) *Instruction {
	node := &Instruction{
		Addr: va,
		Op:   opFamily(inst.Op.String()),
		Text: strings.ToLower(inst.String()),
	}
	for _, arg := range inst.Args {
		if arg == nil {
			break
		}
		switch a := arg.(type) {
		case arm64asm.Reg:
			node.Operands = append(node.Operands, Register(strings.ToLower(a.String())))
		case arm64asm.RegSP:
			node.Operands = append(node.Operands, Register(strings.ToLower(a.String())))
		default:
			if v, ok := parseImmediate(arg); ok {
				node.Operands = append(node.Operands, Const(va, v, WidthOf(v)))
			}
		}
	}
	return node
}

// opFamily buckets mnemonics into IR op kinds.
func opFamily(mnemonic string) Op {
	m := strings.ToUpper(mnemonic)
	switch {
	case strings.HasPrefix(m, "MOV"):
		return OpSetReg
	case strings.HasPrefix(m, "ADD"), strings.HasPrefix(m, "SUB"),
		strings.HasPrefix(m, "MUL"), strings.HasPrefix(m, "MADD"),
		strings.HasPrefix(m, "MSUB"), strings.HasPrefix(m, "NEG"),
		strings.HasPrefix(m, "SDIV"), strings.HasPrefix(m, "UDIV"):
		return OpArith
	case strings.HasPrefix(m, "AND"), strings.HasPrefix(m, "ORR"),
		strings.HasPrefix(m, "EOR"), strings.HasPrefix(m, "BIC"),
		strings.HasPrefix(m, "EON"), strings.HasPrefix(m, "LSL"),
		strings.HasPrefix(m, "LSR"), strings.HasPrefix(m, "ASR"),
		strings.HasPrefix(m, "ROR"):
		return OpLogic
	case strings.HasPrefix(m, "CMP"), strings.HasPrefix(m, "CMN"),
		strings.HasPrefix(m, "TST"), strings.HasPrefix(m, "CCM"):
		return OpCompare
	case strings.HasPrefix(m, "LD"):
		return OpLoad
	case strings.HasPrefix(m, "ST"):
		return OpStore
	case m == "BL", m == "BLR":
		return OpCall
	case strings.HasPrefix(m, "B"), strings.HasPrefix(m, "CB"),
		strings.HasPrefix(m, "TB"), m == "RET":
		return OpBranch
	default:
		return OpUnknown
	}
}

// parseImmediate extracts an immediate value from an instruction argument.
// ImmShift keeps its fields unexported, so it is parsed from its string
// form, applying any left shift.
func parseImmediate(arg arm64asm.Arg) (uint64, bool) {
	switch a := arg.(type) {
	case arm64asm.Imm:
		return uint64(a.Imm), true
	case arm64asm.Imm64:
		return a.Imm, true
	case arm64asm.ImmShift:
		return parseImmShift(a.String())
	}
	return 0, false
}

func parseImmShift(str string) (uint64, bool) {
	parts := strings.SplitN(strings.ToLower(str), ",", 2)
	imm := strings.TrimSpace(strings.TrimPrefix(parts[0], "#"))

	var val uint64
	var err error
	if strings.HasPrefix(imm, "0x") {
		val, err = strconv.ParseUint(imm[2:], 16, 64)
	} else {
		var sv int64
		sv, err = strconv.ParseInt(imm, 10, 64)
		val = uint64(sv)
	}
	if err != nil {
		return 0, false
	}

	if len(parts) == 2 {
		shifted := strings.TrimSpace(parts[1])
		if rest, ok := strings.CutPrefix(shifted, "lsl #"); ok {
			shift, err := strconv.ParseUint(rest, 10, 8)
			if err != nil || shift >= 64 {
				return 0, false
			}
			val <<= shift
		}
	}
	return val, true
}

// FoldMovConstants merges a movz followed by movk instructions on the
// same register into one constant assignment. Compilers materialize
// wide constants this way, and matching wants the recombined value.
func FoldMovConstants(instrs []*Instruction) []*Instruction {
	out := make([]*Instruction, 0, len(instrs))
	i := 0
	for i < len(instrs) {
		cur := instrs[i]
		reg, base, ok := movImmTarget(cur, "movz")
		if !ok {
			out = append(out, cur)
			i++
			continue
		}

		folded := base
		j := i + 1
		for j < len(instrs) {
			nreg, part, ok := movImmTarget(instrs[j], "movk")
			if !ok || nreg != reg {
				break
			}
			folded |= part
			j++
		}

		if j == i+1 {
			out = append(out, cur)
			i++
			continue
		}

		width := WidthOf(folded)
		if min := foldedWidth(j - i); width < min {
			width = min
		}
		out = append(out, &Instruction{
			Addr:     cur.Addr,
			Op:       OpSetReg,
			Text:     cur.Text,
			Operands: []Operand{reg, Const(cur.Addr, folded, width)},
		})
		i = j
	}
	return out
}

// foldedWidth gives the minimum byte width implied by the number of
// 16-bit mov pieces.
func foldedWidth(pieces int) int {
	switch {
	case pieces >= 3:
		return 8
	case pieces == 2:
		return 4
	default:
		return 2
	}
}

// movImmTarget matches "mnemonic reg, #imm" shapes and returns the
// destination register and immediate constant.
func movImmTarget(instr *Instruction, mnemonic string) (Register, uint64, bool) {
	if instr.Op != OpSetReg || !strings.HasPrefix(instr.Text, mnemonic) {
		return "", 0, false
	}
	if len(instr.Operands) < 2 {
		return "", 0, false
	}
	reg, ok := instr.Operands[0].(Register)
	if !ok {
		return "", 0, false
	}
	c, ok := instr.Operands[1].(*Instruction)
	if !ok || c.Op != OpConst {
		return "", 0, false
	}
	return reg, c.Value, true
}
