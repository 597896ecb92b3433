package ir

import "testing"

func TestWidthOf(t *testing.T) {
	tests := []struct {
		value uint64
		want  int
	}{
		{0, 1},
		{0xff, 1},
		{0x100, 2},
		{0xffff, 2},
		{0x10000, 4},
		{0xffffffff, 4},
		{0x100000000, 8},
		{0xffffffffffffffff, 8},
	}
	for _, tt := range tests {
		if got := WidthOf(tt.value); got != tt.want {
			t.Errorf("WidthOf(%#x) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestParseImmShift(t *testing.T) {
	tests := []struct {
		str  string
		want uint64
		ok   bool
	}{
		{"#0x1234", 0x1234, true},
		{"#42", 42, true},
		{"#0x1234, lsl #16", 0x12340000, true},
		{"#0x9e37, LSL #16", 0x9e370000, true},
		{"#-1", 0xffffffffffffffff, true},
		{"garbage", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseImmShift(tt.str)
		if ok != tt.ok {
			t.Errorf("parseImmShift(%q) ok = %v, want %v", tt.str, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("parseImmShift(%q) = %#x, want %#x", tt.str, got, tt.want)
		}
	}
}

func TestOpFamily(t *testing.T) {
	tests := []struct {
		mnemonic string
		want     Op
	}{
		{"MOVZ", OpSetReg},
		{"MOVK", OpSetReg},
		{"ADD", OpArith},
		{"EOR", OpLogic},
		{"CMP", OpCompare},
		{"LDR", OpLoad},
		{"STP", OpStore},
		{"BL", OpCall},
		{"CBZ", OpBranch},
		{"RET", OpBranch},
		{"NOP", OpUnknown},
	}
	for _, tt := range tests {
		if got := opFamily(tt.mnemonic); got != tt.want {
			t.Errorf("opFamily(%q) = %v, want %v", tt.mnemonic, got, tt.want)
		}
	}
}

func movz(addr uint64, reg string, value uint64) *Instruction {
	return &Instruction{
		Addr: addr, Op: OpSetReg, Text: "movz " + reg,
		Operands: []Operand{Register(reg), Const(addr, value, WidthOf(value))},
	}
}

func movk(addr uint64, reg string, value uint64) *Instruction {
	return &Instruction{
		Addr: addr, Op: OpSetReg, Text: "movk " + reg,
		Operands: []Operand{Register(reg), Const(addr, value, WidthOf(value))},
	}
}

func foldedConst(t *testing.T, instr *Instruction) (uint64, int) {
	t.Helper()
	if len(instr.Operands) != 2 {
		t.Fatalf("folded instruction has %d operands", len(instr.Operands))
	}
	c, ok := instr.Operands[1].(*Instruction)
	if !ok || c.Op != OpConst {
		t.Fatalf("second operand is not a constant: %v", instr.Operands[1])
	}
	return c.Value, c.Size
}

func TestFoldMovConstants(t *testing.T) {
	t.Run("movz movk pair folds to 32-bit constant", func(t *testing.T) {
		instrs := []*Instruction{
			movz(0x100, "w8", 0x79b9),
			movk(0x104, "w8", 0x9e370000),
		}
		got := FoldMovConstants(instrs)
		if len(got) != 1 {
			t.Fatalf("got %d instructions, want 1", len(got))
		}
		value, size := foldedConst(t, got[0])
		if value != 0x9e3779b9 {
			t.Errorf("folded value = %#x, want 0x9e3779b9", value)
		}
		if size != 4 {
			t.Errorf("folded size = %d, want 4", size)
		}
		if got[0].Addr != 0x100 {
			t.Errorf("folded address = %#x, want the movz address", got[0].Addr)
		}
	})

	t.Run("four piece sequence folds to 64-bit constant", func(t *testing.T) {
		instrs := []*Instruction{
			movz(0x100, "x9", 0x0404),
			movk(0x104, "x9", 0x03030000),
			movk(0x108, "x9", 0x020200000000),
			movk(0x10c, "x9", 0x0101000000000000),
		}
		got := FoldMovConstants(instrs)
		if len(got) != 1 {
			t.Fatalf("got %d instructions, want 1", len(got))
		}
		value, size := foldedConst(t, got[0])
		if value != 0x0101020203030404 {
			t.Errorf("folded value = %#x", value)
		}
		if size != 8 {
			t.Errorf("folded size = %d, want 8", size)
		}
	})

	t.Run("movk on a different register breaks the fold", func(t *testing.T) {
		instrs := []*Instruction{
			movz(0x100, "w8", 0x79b9),
			movk(0x104, "w9", 0x9e370000),
		}
		got := FoldMovConstants(instrs)
		if len(got) != 2 {
			t.Fatalf("got %d instructions, want 2", len(got))
		}
	})

	t.Run("lone movz is untouched", func(t *testing.T) {
		instrs := []*Instruction{movz(0x100, "w8", 0x42)}
		got := FoldMovConstants(instrs)
		if len(got) != 1 || got[0] != instrs[0] {
			t.Fatal("lone movz should pass through unchanged")
		}
	})

	t.Run("unrelated instructions pass through", func(t *testing.T) {
		other := &Instruction{Addr: 0x100, Op: OpArith, Text: "add x0, x1, x2"}
		got := FoldMovConstants([]*Instruction{other})
		if len(got) != 1 || got[0] != other {
			t.Fatal("non-mov instruction should pass through unchanged")
		}
	})
}
