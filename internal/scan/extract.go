package scan

import "cryptoscan/internal/ir"

// ExtractConstants walks an instruction's operand tree and returns its
// constant leaf nodes in pre-order, left-to-right. An instruction with
// no constant leaves yields an empty result.
func ExtractConstants(instr *ir.Instruction) []*ir.Instruction {
	var consts []*ir.Instruction
	collectConstants(instr, &consts)
	return consts
}

func collectConstants(node *ir.Instruction, consts *[]*ir.Instruction) {
	if node.Op == ir.OpConst {
		*consts = append(*consts, node)
		return
	}
	for _, operand := range node.Operands {
		if sub, ok := operand.(*ir.Instruction); ok {
			collectConstants(sub, consts)
		}
	}
}
