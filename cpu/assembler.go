// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/ezrec/rv32i/memory"
)

// Macro represents a macro definition in the assembly language.
type Macro struct {
	LineNo int      // Line number of the macro definition.
	Args   []string // Arguments for the macro.
	Lines  []string // Lines of macro text to expand.
}

// Predefined system equates
var sysEquate = map[string]string{
	"LINENO": "0",
}

// Labels that select the program entry point.
var entryLabels = []string{"_start", "start"}

// Assembler is a single pass macro assembler for RV32I.
type Assembler struct {
	Verbose bool     // If set, verbosely logs the assembler actions.
	Origin  uint32   // Load address. Zero selects memory.TEXT_START.
	Opcode  []Opcode // List of generated opcodes.

	predefine map[string]string   // Predefines
	origin    uint32              // Effective origin of the current parse.
	Label     map[string]uint32   // Map of labels to absolute addresses.
	Equate    map[string]string   // Map of equates.
	Macro     map[string](*Macro) // Map of macros.

	expansions int // Count of macro expansions, for local labels.
}

// Predefine defines a new equate or redefines an existing equate.
func (asm *Assembler) Predefine(equ string, value string) {
	if asm.predefine == nil {
		asm.predefine = map[string]string{equ: value}
	} else {
		asm.predefine[equ] = value
	}
}

// regMap maps register names, numeric and ABI, to register numbers.
var regMap = func() map[string]uint32 {
	regs := map[string]uint32{"fp": 8}
	for n, name := range RegisterName {
		regs[fmt.Sprintf("x%d", n)] = uint32(n)
		regs[name] = uint32(n)
	}
	return regs
}()

// register returns the register number of a word.
func (asm *Assembler) register(word string) (reg uint32, err error) {
	reg, ok := regMap[word]
	if ok {
		return
	}

	equate, ok := asm.Equate[word]
	if ok {
		reg, ok = regMap[equate]
		if ok {
			return
		}
	}

	err = fmt.Errorf("%w: %v", ErrRegisterInvalid, word)
	return
}

// csr returns the CSR number of a name or value.
func (asm *Assembler) csr(word string) (csr uint32, err error) {
	csr, ok := CsrName[word]
	if ok {
		return
	}

	value, err := asm.valueOf(word)
	if err != nil || value < 0 || value > 0xfff {
		err = fmt.Errorf("%w: %v", ErrCsrInvalid, word)
		return
	}

	csr = uint32(value)
	return
}

// valueOf returns the value of a simple word, resolving equates.
func (asm *Assembler) valueOf(word string) (value int32, err error) {
	for range 8 {
		equate, ok := asm.Equate[word]
		if !ok {
			break
		}
		word = equate
	}

	if len(word) == 0 {
		err = ErrParseNumber(word)
		return
	}

	invert := false
	if word[0] == '~' {
		invert = true
		word = word[1:]
	}

	v64, err := strconv.ParseInt(word, 0, 64)
	if err != nil || v64 > 0xffffffff || v64 < -int64(0x80000000) {
		err = ErrParseNumber(word)
		return
	}

	value = int32(uint32(v64))
	if invert {
		value = ^value
	}

	return
}

// parenEval does compile-time $(...) evaluations
func (asm *Assembler) parenEval(expr string) (value int64, err error) {
	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for key := range asm.Equate {
		var value32 int32
		value32, err = asm.valueOf(key)
		if err != nil {
			// Ignore non-integer equates. They may be registers
			// or something else.
			err = nil
			continue
		}
		pred[key] = starlark.MakeInt(int(value32))
	}
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		return
	}
	st_rc, ok := dict["rc"]
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int, ok := st_rc.(starlark.Int)
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	value, ok = st_int.Int64()
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	return
}

var (
	reCharacter  = regexp.MustCompile(`'\\?[^']'`)
	reExpression = regexp.MustCompile(`\$\([^\$]*\)`)
	reIdentifier = regexp.MustCompile(`^[A-Za-z_.@][A-Za-z0-9_.@]*$`)
)

// stripComment removes a trailing ';' or '#' comment, ignoring
// characters inside quotes.
func stripComment(text string) string {
	quoted := false
	for n := 0; n < len(text); n++ {
		switch text[n] {
		case '\\':
			if quoted {
				n++
			}
		case '\'':
			quoted = !quoted
		case ';', '#':
			if !quoted {
				return text[:n]
			}
		}
	}
	return text
}

// parseLine parses a single line as an opcode.
func (asm *Assembler) parseLine(line string, lineno int) (words []string, err error) {
	// Set line number.
	asm.Equate["LINENO"] = fmt.Sprintf("%v", lineno)

	// Do 'x' evaluations
	line = reCharacter.ReplaceAllStringFunc(line, func(word string) string {
		str := word[1 : len(word)-1]
		if str[0] == '\\' {
			str = str[1:]
			switch str {
			case "\\":
				str = "\\"
			case "n":
				str = "\n"
			case "r":
				str = "\r"
			case "t":
				str = "\t"
			case "0":
				str = "\x00"
			case "e":
				str = "\033"
			default:
				return word
			}
		} else if len(str) != 1 {
			return word
		}
		return fmt.Sprintf("%v", str[0])
	})

	// Do $() evaluations
	line = reExpression.ReplaceAllStringFunc(line, func(str string) string {
		value, _err := asm.parenEval(str[2 : len(str)-1])
		if _err != nil {
			err = _err
		}
		return fmt.Sprintf("%d", value)
	})
	if err != nil {
		return
	}

	words = strings.Fields(strings.ReplaceAll(line, ",", " "))

	if len(words) == 0 {
		return
	}

	// .equ CONST VALUE
	if words[0] == ".equ" || words[0] == ".set" {
		if len(words) != 3 {
			err = ErrEquateSyntax
			return
		}
		_, ok := asm.Equate[words[1]]
		if ok {
			err = ErrEquateDuplicate
			return
		}
		asm.Equate[words[1]] = words[2]
		words = words[:0]
		return
	}

	for n, word := range words {
		// Check for equate next
		equate, ok := asm.Equate[word]
		if ok {
			words[n] = equate
		}
	}

	for strings.HasSuffix(words[0], ":") {
		label := words[0][:len(words[0])-1]
		_, ok := asm.Label[label]
		if ok {
			err = ErrLabelDuplicate
			return
		}

		if asm.Label == nil {
			asm.Label = make(map[string]uint32, 16)
		}
		asm.Label[label] = asm.currentAddress()
		words = words[1:]
		if len(words) == 0 {
			return
		}
	}

	// .macro processing
	macro, ok := asm.Macro[words[0]]
	if ok {
		name := words[0]

		args := words[1:]
		if len(args) != len(macro.Args) {
			err = ErrMacroSyntax
			return
		}
		// Turn args into equs
		old_equate := maps.Clone(asm.Equate)
		for n, arg := range macro.Args {
			asm.Equate[arg] = words[1+n]
		}
		defer func() { asm.Equate = old_equate }()

		asm.expansions++
		local := fmt.Sprintf("%v_%v_", name, asm.expansions)

		for n, line := range macro.Lines {
			lineno := macro.LineNo + n

			line = strings.ReplaceAll(line, "@", local)
			words, err = asm.parseLine(line, lineno)
			if err != nil {
				err = &ErrMacro{Macro: name, Line: lineno, Err: err}
				err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
				return
			}

			err = asm.parseWords(words, macro.LineNo+n)
			if err != nil {
				err = &ErrMacro{Macro: name, Line: lineno, Err: err}
				err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
				return
			}
		}

		words = nil
		return
	}

	return
}

// currentAddress gets the address of the next instruction.
func (asm *Assembler) currentAddress() uint32 {
	if len(asm.Opcode) == 0 {
		return asm.origin
	}

	last := asm.Opcode[len(asm.Opcode)-1]

	return last.Address + uint32(4*len(last.Codes))
}

// Parse parses an input stream into a Program containing opcodes.
func (asm *Assembler) Parse(input io.Reader) (prog *Program, err error) {

	scanner := bufio.NewScanner(input)

	var line string
	var lineno int
	var macro *Macro

	defer func() {
		if err != nil {
			if _, ok := err.(*ErrSyntax); !ok {
				err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
			}
		}
	}()

	asm.origin = asm.Origin
	if asm.origin == 0 {
		asm.origin = memory.TEXT_START
	}

	clear(asm.Label)
	asm.Opcode = asm.Opcode[:0]
	if asm.Macro == nil {
		asm.Macro = make(map[string](*Macro))
	}
	clear(asm.Macro)
	asm.expansions = 0
	asm.Equate = maps.Clone(sysEquate)
	for attr, val := range asm.predefine {
		asm.Equate[attr] = val
	}

	for scanner.Scan() {
		text := scanner.Text()
		lineno += 1

		if asm.Verbose {
			log.Printf("%v: %v\n", lineno, text)
		}

		line = strings.TrimSpace(stripComment(text))
		words := strings.Fields(line)

		// .macro NAME arg...
		if len(words) > 0 && words[0] == ".macro" {
			if macro != nil {
				err = ErrMacroNesting
				return
			}
			if len(words) < 2 {
				err = ErrMacroSyntax
				return
			}
			_, ok := asm.Macro[words[1]]
			if ok {
				err = ErrMacroDuplicate
				return
			}
			macro = &Macro{
				LineNo: lineno + 1,
			}
			if len(words) > 2 {
				macro.Args = strings.Fields(strings.ReplaceAll(strings.Join(words[2:], " "), ",", " "))
			}
			asm.Macro[words[1]] = macro
			continue
		}

		if len(words) > 0 && words[0] == ".endm" {
			if macro == nil {
				err = ErrMacroLonelyEndm
				return
			}
			macro = nil
			continue
		}

		if macro != nil {
			macro.Lines = append(macro.Lines, line)
			continue
		}

		words, err = asm.parseLine(line, lineno)
		if err != nil {
			return
		}

		err = asm.parseWords(words, lineno)
		if err != nil {
			return
		}
	}

	err = scanner.Err()
	if err != nil {
		return
	}

	if macro != nil {
		err = ErrMacroLonely
		return
	}

	// Final linking of labels.
	for n := range asm.Opcode {
		op := &asm.Opcode[n]

		if len(op.LinkLabel) == 0 {
			continue
		}
		label := op.LinkLabel
		target, ok := asm.Label[label]
		if !ok {
			err = &ErrSyntax{LineNo: op.LineNo, Line: strings.Join(op.Words, " "), Err: ErrLabelMissing(label)}
			return
		}
		var codes []uint32
		codes, err = op.link(target)
		if err != nil {
			err = &ErrSyntax{LineNo: op.LineNo, Line: strings.Join(op.Words, " "), Err: err}
			return
		}
		if len(codes) != len(op.Codes) {
			log.Fatalf("Unable to link label '%s' to line %d: %v", label, op.LineNo, op.Words)
		}
		op.Codes = codes
	}

	prog = &Program{
		Origin:  asm.origin,
		Entry:   asm.origin,
		Opcodes: slices.Clone(asm.Opcode),
		Label:   maps.Clone(asm.Label),
	}
	for _, label := range entryLabels {
		if entry, ok := asm.Label[label]; ok {
			prog.Entry = entry
			break
		}
	}

	return
}

// rTypeMap maps register-register ALU mnemonics to funct3/funct7.
var rTypeMap = map[string][2]uint32{
	"add":  {F3_ADD, F7_BASE},
	"sub":  {F3_ADD, F7_ALT},
	"sll":  {F3_SLL, F7_BASE},
	"slt":  {F3_SLT, F7_BASE},
	"sltu": {F3_SLTU, F7_BASE},
	"xor":  {F3_XOR, F7_BASE},
	"srl":  {F3_SRL, F7_BASE},
	"sra":  {F3_SRL, F7_ALT},
	"or":   {F3_OR, F7_BASE},
	"and":  {F3_AND, F7_BASE},
}

// iTypeMap maps register-immediate ALU mnemonics to funct3.
var iTypeMap = map[string]uint32{
	"addi":  F3_ADD,
	"slti":  F3_SLT,
	"sltiu": F3_SLTU,
	"xori":  F3_XOR,
	"ori":   F3_OR,
	"andi":  F3_AND,
}

// shiftMap maps immediate shift mnemonics to funct3/funct7.
var shiftMap = map[string][2]uint32{
	"slli": {F3_SLL, F7_BASE},
	"srli": {F3_SRL, F7_BASE},
	"srai": {F3_SRL, F7_ALT},
}

var loadMap = map[string]uint32{
	"lb":  F3_LB,
	"lh":  F3_LH,
	"lw":  F3_LW,
	"lbu": F3_LBU,
	"lhu": F3_LHU,
}

var storeMap = map[string]uint32{
	"sb": F3_SB,
	"sh": F3_SH,
	"sw": F3_SW,
}

// branchMap maps branch mnemonics to funct3. Swapped forms exchange
// their register operands.
var branchMap = map[string]struct {
	funct3  uint32
	swapped bool
}{
	"beq":  {F3_BEQ, false},
	"bne":  {F3_BNE, false},
	"blt":  {F3_BLT, false},
	"bge":  {F3_BGE, false},
	"bltu": {F3_BLTU, false},
	"bgeu": {F3_BGEU, false},
	"bgt":  {F3_BLT, true},
	"ble":  {F3_BGE, true},
	"bgtu": {F3_BLTU, true},
	"bleu": {F3_BGEU, true},
}

var csrOpMap = map[string]uint32{
	"csrrw":  F3_CSRRW,
	"csrrs":  F3_CSRRS,
	"csrrc":  F3_CSRRC,
	"csrrwi": F3_CSRRWI,
	"csrrsi": F3_CSRRSI,
	"csrrci": F3_CSRRCI,
}

// fixedMap maps operand-less mnemonics to their instruction words.
var fixedMap = map[string]uint32{
	"nop":     WORD_NOP,
	"ecall":   WORD_ECALL,
	"ebreak":  WORD_EBREAK,
	"mret":    WORD_MRET,
	"wfi":     WORD_WFI,
	"fence":   MakeCodeI(OP_FENCE, 0, F3_FENCE, 0, 0x0ff),
	"fence.i": MakeCodeI(OP_FENCE, 0, F3_FENCE_I, 0, 0),
	"ret":     MakeCodeI(OP_JALR, 0, 0, 1, 0),
}

// checkArgs verifies the operand count.
func checkArgs(args []string, count int) (err error) {
	switch {
	case len(args) < count:
		err = ErrOpcodeValueMissing
	case len(args) > count:
		err = ErrOpcodeExtraArgs
	}
	return
}

// immediate returns a value that must fit in a signed field.
func (asm *Assembler) immediate(word string, bits uint) (value int32, err error) {
	value, err = asm.valueOf(word)
	if err != nil {
		return
	}
	if !fitsSigned(int64(value), bits) {
		err = fmt.Errorf("%w: %v", ErrImmediateRange, word)
	}
	return
}

// unsigned returns a value that must lie in [0, limit].
func (asm *Assembler) unsigned(word string, limit int32) (value int32, err error) {
	value, err = asm.valueOf(word)
	if err != nil {
		return
	}
	if value < 0 || value > limit {
		err = fmt.Errorf("%w: %v", ErrImmediateRange, word)
	}
	return
}

// memOperand parses 'offset(reg)', '(reg)' or 'reg'.
func (asm *Assembler) memOperand(word string) (offset int32, reg uint32, err error) {
	open := strings.IndexByte(word, '(')
	if open < 0 {
		reg, err = asm.register(word)
		return
	}
	if !strings.HasSuffix(word, ")") {
		err = fmt.Errorf("%w: %v", ErrRegisterInvalid, word)
		return
	}

	reg, err = asm.register(word[open+1 : len(word)-1])
	if err != nil {
		return
	}

	if open > 0 {
		offset, err = asm.immediate(word[:open], 12)
	}
	return
}

// target parses a jump target as either a numeric offset or a label.
func (asm *Assembler) target(word string) (offset int32, label string, err error) {
	offset, err = asm.valueOf(word)
	if err == nil {
		return
	}

	if reIdentifier.MatchString(word) {
		label = word
		err = nil
		return
	}

	return
}

// pcRelative checks a PC-relative offset against a signed field width.
func pcRelative(offset int64, bits uint) (err error) {
	if offset%2 != 0 || !fitsSigned(offset, bits) {
		err = fmt.Errorf("%w: %d", ErrOffsetRange, offset)
	}
	return
}

// parseWords evaluates the words in a line of assembly text.
func (asm *Assembler) parseWords(words []string, lineno int) (err error) {
	var codes []uint32
	var label string
	var link func(target uint32) ([]uint32, error)

	// no-op
	if len(words) == 0 {
		return
	}

	initial_words := words
	address := asm.currentAddress()

	defer func() {
		if err != nil || len(codes) == 0 {
			return
		}
		opcode := Opcode{LineNo: lineno, Address: address, Words: initial_words, Codes: codes, LinkLabel: label, link: link}
		asm.Opcode = append(asm.Opcode, opcode)
	}()

	// linkTo defers encoding to link time when the target is a label.
	linkTo := func(word string, encode func(offset int64) ([]uint32, error), size int) (err error) {
		var offset int32
		offset, label, err = asm.target(word)
		if err != nil {
			return
		}
		if len(label) == 0 {
			codes, err = encode(int64(offset))
			return
		}
		link = func(target uint32) ([]uint32, error) {
			return encode(int64(int32(target - address)))
		}
		codes = make([]uint32, size)
		return
	}

	mnemonic := words[0]
	args := words[1:]

	// Alternate syntax substitutions
	switch {
	case mnemonic == "mv" && len(args) == 2:
		mnemonic, args = "addi", []string{args[0], args[1], "0"}
	case mnemonic == "not" && len(args) == 2:
		mnemonic, args = "xori", []string{args[0], args[1], "-1"}
	case mnemonic == "neg" && len(args) == 2:
		mnemonic, args = "sub", []string{args[0], "x0", args[1]}
	case mnemonic == "seqz" && len(args) == 2:
		mnemonic, args = "sltiu", []string{args[0], args[1], "1"}
	case mnemonic == "snez" && len(args) == 2:
		mnemonic, args = "sltu", []string{args[0], "x0", args[1]}
	case mnemonic == "j" && len(args) == 1:
		mnemonic, args = "jal", []string{"x0", args[0]}
	case mnemonic == "jal" && len(args) == 1:
		args = []string{"ra", args[0]}
	case mnemonic == "jr" && len(args) == 1:
		mnemonic, args = "jalr", []string{"x0", args[0]}
	case mnemonic == "jalr" && len(args) == 1:
		args = []string{"ra", args[0]}
	case mnemonic == "beqz" && len(args) == 2:
		mnemonic, args = "beq", []string{args[0], "x0", args[1]}
	case mnemonic == "bnez" && len(args) == 2:
		mnemonic, args = "bne", []string{args[0], "x0", args[1]}
	case mnemonic == "csrr" && len(args) == 2:
		mnemonic, args = "csrrs", []string{args[0], args[1], "x0"}
	case mnemonic == "csrw" && len(args) == 2:
		mnemonic, args = "csrrw", []string{"x0", args[0], args[1]}
	default:
		// unchanged
	}

	if word, ok := fixedMap[mnemonic]; ok {
		err = checkArgs(args, 0)
		if err != nil {
			return
		}
		codes = []uint32{word}
		return
	}

	if f3f7, ok := rTypeMap[mnemonic]; ok {
		err = checkArgs(args, 3)
		if err != nil {
			return
		}
		var regs [3]uint32
		for n := range regs {
			regs[n], err = asm.register(args[n])
			if err != nil {
				return
			}
		}
		codes = []uint32{MakeCodeR(OP_REG, regs[0], f3f7[0], regs[1], regs[2], f3f7[1])}
		return
	}

	if funct3, ok := iTypeMap[mnemonic]; ok {
		err = checkArgs(args, 3)
		if err != nil {
			return
		}
		var rd, rs1 uint32
		var imm int32
		rd, err = asm.register(args[0])
		if err != nil {
			return
		}
		rs1, err = asm.register(args[1])
		if err != nil {
			return
		}
		imm, err = asm.immediate(args[2], 12)
		if err != nil {
			return
		}
		codes = []uint32{MakeCodeI(OP_IMM, rd, funct3, rs1, imm)}
		return
	}

	if f3f7, ok := shiftMap[mnemonic]; ok {
		err = checkArgs(args, 3)
		if err != nil {
			return
		}
		var rd, rs1 uint32
		var shamt int32
		rd, err = asm.register(args[0])
		if err != nil {
			return
		}
		rs1, err = asm.register(args[1])
		if err != nil {
			return
		}
		shamt, err = asm.unsigned(args[2], 31)
		if err != nil {
			return
		}
		codes = []uint32{MakeCodeI(OP_IMM, rd, f3f7[0], rs1, shamt|int32(f3f7[1]<<5))}
		return
	}

	if funct3, ok := loadMap[mnemonic]; ok {
		err = checkArgs(args, 2)
		if err != nil {
			return
		}
		var rd, rs1 uint32
		var offset int32
		rd, err = asm.register(args[0])
		if err != nil {
			return
		}
		offset, rs1, err = asm.memOperand(args[1])
		if err != nil {
			return
		}
		codes = []uint32{MakeCodeI(OP_LOAD, rd, funct3, rs1, offset)}
		return
	}

	if funct3, ok := storeMap[mnemonic]; ok {
		err = checkArgs(args, 2)
		if err != nil {
			return
		}
		var rs1, rs2 uint32
		var offset int32
		rs2, err = asm.register(args[0])
		if err != nil {
			return
		}
		offset, rs1, err = asm.memOperand(args[1])
		if err != nil {
			return
		}
		codes = []uint32{MakeCodeS(OP_STORE, funct3, rs1, rs2, offset)}
		return
	}

	if branch, ok := branchMap[mnemonic]; ok {
		err = checkArgs(args, 3)
		if err != nil {
			return
		}
		var rs1, rs2 uint32
		rs1, err = asm.register(args[0])
		if err != nil {
			return
		}
		rs2, err = asm.register(args[1])
		if err != nil {
			return
		}
		if branch.swapped {
			rs1, rs2 = rs2, rs1
		}
		err = linkTo(args[2], func(offset int64) (codes []uint32, err error) {
			err = pcRelative(offset, 13)
			if err != nil {
				return
			}
			codes = []uint32{MakeCodeB(OP_BRANCH, branch.funct3, rs1, rs2, int32(offset))}
			return
		}, 1)
		return
	}

	if funct3, ok := csrOpMap[mnemonic]; ok {
		err = checkArgs(args, 3)
		if err != nil {
			return
		}
		var rd, csr, src uint32
		rd, err = asm.register(args[0])
		if err != nil {
			return
		}
		csr, err = asm.csr(args[1])
		if err != nil {
			return
		}
		if funct3 >= F3_CSRRWI {
			var zimm int32
			zimm, err = asm.unsigned(args[2], 31)
			src = uint32(zimm)
		} else {
			src, err = asm.register(args[2])
		}
		if err != nil {
			return
		}
		codes = []uint32{MakeCodeCsr(rd, funct3, src, csr)}
		return
	}

	switch mnemonic {
	case "lui", "auipc":
		err = checkArgs(args, 2)
		if err != nil {
			return
		}
		var rd uint32
		var imm int32
		rd, err = asm.register(args[0])
		if err != nil {
			return
		}
		imm, err = asm.unsigned(args[1], 0xfffff)
		if err != nil {
			return
		}
		op := OP_LUI
		if mnemonic == "auipc" {
			op = OP_AUIPC
		}
		codes = []uint32{MakeCodeU(op, rd, imm<<12)}
	case "jal":
		err = checkArgs(args, 2)
		if err != nil {
			return
		}
		var rd uint32
		rd, err = asm.register(args[0])
		if err != nil {
			return
		}
		err = linkTo(args[1], func(offset int64) (codes []uint32, err error) {
			err = pcRelative(offset, 21)
			if err != nil {
				return
			}
			codes = []uint32{MakeCodeJ(OP_JAL, rd, int32(offset))}
			return
		}, 1)
	case "jalr":
		var rd, rs1 uint32
		var offset int32
		switch len(args) {
		case 2:
			rd, err = asm.register(args[0])
			if err != nil {
				return
			}
			offset, rs1, err = asm.memOperand(args[1])
		case 3:
			rd, err = asm.register(args[0])
			if err != nil {
				return
			}
			rs1, err = asm.register(args[1])
			if err != nil {
				return
			}
			offset, err = asm.immediate(args[2], 12)
		default:
			err = checkArgs(args, 2)
		}
		if err != nil {
			return
		}
		codes = []uint32{MakeCodeI(OP_JALR, rd, 0, rs1, offset)}
	case "li":
		err = checkArgs(args, 2)
		if err != nil {
			return
		}
		var rd uint32
		var value int32
		rd, err = asm.register(args[0])
		if err != nil {
			return
		}
		value, err = asm.valueOf(args[1])
		if err != nil {
			return
		}
		if fitsSigned(int64(value), 12) {
			codes = []uint32{MakeCodeI(OP_IMM, rd, F3_ADD, 0, value)}
			return
		}
		upper, lower := splitImmediate(value)
		codes = []uint32{MakeCodeU(OP_LUI, rd, upper)}
		if lower != 0 {
			codes = append(codes, MakeCodeI(OP_IMM, rd, F3_ADD, rd, lower))
		}
	case "la", "call", "tail":
		// Two word PC-relative sequences: auipc, then addi or jalr.
		var rd uint32
		var second func(lower int32) uint32
		switch mnemonic {
		case "la":
			err = checkArgs(args, 2)
			if err != nil {
				return
			}
			rd, err = asm.register(args[0])
			if err != nil {
				return
			}
			args = args[1:]
			second = func(lower int32) uint32 { return MakeCodeI(OP_IMM, rd, F3_ADD, rd, lower) }
		case "call":
			err = checkArgs(args, 1)
			rd = 1
			second = func(lower int32) uint32 { return MakeCodeI(OP_JALR, 1, 0, 1, lower) }
		case "tail":
			err = checkArgs(args, 1)
			rd = 6
			second = func(lower int32) uint32 { return MakeCodeI(OP_JALR, 0, 0, 6, lower) }
		}
		if err != nil {
			return
		}
		err = linkTo(args[0], func(offset int64) (codes []uint32, err error) {
			if !fitsSigned(offset, 32) {
				err = fmt.Errorf("%w: %d", ErrOffsetRange, offset)
				return
			}
			upper, lower := splitImmediate(int32(offset))
			codes = []uint32{MakeCodeU(OP_AUIPC, rd, upper), second(lower)}
			return
		}, 2)
	case ".word":
		if len(args) == 0 {
			err = ErrOpcodeValueMissing
			return
		}
		for _, arg := range args {
			var value int32
			value, err = asm.valueOf(arg)
			if err == nil {
				codes = append(codes, uint32(value))
				continue
			}
			if len(args) != 1 || !reIdentifier.MatchString(arg) {
				return
			}
			// A single label: its absolute address.
			err = nil
			label = arg
			link = func(target uint32) ([]uint32, error) {
				return []uint32{target}, nil
			}
			codes = []uint32{0}
		}
	default:
		err = fmt.Errorf("%w: %v", ErrInstructionInvalid, mnemonic)
		return
	}

	return
}
