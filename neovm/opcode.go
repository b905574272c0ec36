// Copyright © 2018 The ELPS authors

package neovm

import "fmt"

// Opcode is a single NeoVM instruction code.
type Opcode byte

// Constants.
const (
	PUSHINT8   Opcode = 0x00
	PUSHINT16  Opcode = 0x01
	PUSHINT32  Opcode = 0x02
	PUSHINT64  Opcode = 0x03
	PUSHINT128 Opcode = 0x04
	PUSHINT256 Opcode = 0x05
	PUSHT      Opcode = 0x08
	PUSHF      Opcode = 0x09
	PUSHA      Opcode = 0x0A
	PUSHNULL   Opcode = 0x0B
	PUSHDATA1  Opcode = 0x0C
	PUSHDATA2  Opcode = 0x0D
	PUSHDATA4  Opcode = 0x0E
	PUSHM1     Opcode = 0x0F
	PUSH0      Opcode = 0x10
	PUSH1      Opcode = 0x11
	PUSH2      Opcode = 0x12
	PUSH3      Opcode = 0x13
	PUSH4      Opcode = 0x14
	PUSH5      Opcode = 0x15
	PUSH6      Opcode = 0x16
	PUSH7      Opcode = 0x17
	PUSH8      Opcode = 0x18
	PUSH9      Opcode = 0x19
	PUSH10     Opcode = 0x1A
	PUSH11     Opcode = 0x1B
	PUSH12     Opcode = 0x1C
	PUSH13     Opcode = 0x1D
	PUSH14     Opcode = 0x1E
	PUSH15     Opcode = 0x1F
	PUSH16     Opcode = 0x20
)

// Flow control.
const (
	NOP        Opcode = 0x21
	JMP        Opcode = 0x22
	JMP_L      Opcode = 0x23
	JMPIF      Opcode = 0x24
	JMPIF_L    Opcode = 0x25
	JMPIFNOT   Opcode = 0x26
	JMPIFNOT_L Opcode = 0x27
	JMPEQ      Opcode = 0x28
	JMPEQ_L    Opcode = 0x29
	JMPNE      Opcode = 0x2A
	JMPNE_L    Opcode = 0x2B
	JMPGT      Opcode = 0x2C
	JMPGT_L    Opcode = 0x2D
	JMPGE      Opcode = 0x2E
	JMPGE_L    Opcode = 0x2F
	JMPLT      Opcode = 0x30
	JMPLT_L    Opcode = 0x31
	JMPLE      Opcode = 0x32
	JMPLE_L    Opcode = 0x33
	CALL       Opcode = 0x34
	CALL_L     Opcode = 0x35
	CALLA      Opcode = 0x36
	CALLT      Opcode = 0x37
	ABORT      Opcode = 0x38
	ASSERT     Opcode = 0x39
	THROW      Opcode = 0x3A
	TRY        Opcode = 0x3B
	TRY_L      Opcode = 0x3C
	ENDTRY     Opcode = 0x3D
	ENDTRY_L   Opcode = 0x3E
	ENDFINALLY Opcode = 0x3F
	RET        Opcode = 0x40
	SYSCALL    Opcode = 0x41
)

// Stack.
const (
	DEPTH    Opcode = 0x43
	DROP     Opcode = 0x45
	NIP      Opcode = 0x46
	XDROP    Opcode = 0x48
	CLEAR    Opcode = 0x49
	DUP      Opcode = 0x4A
	OVER     Opcode = 0x4B
	PICK     Opcode = 0x4D
	TUCK     Opcode = 0x4E
	SWAP     Opcode = 0x50
	ROT      Opcode = 0x51
	ROLL     Opcode = 0x52
	REVERSE3 Opcode = 0x53
	REVERSE4 Opcode = 0x54
	REVERSEN Opcode = 0x55
)

// Slots.
const (
	INITSSLOT Opcode = 0x56
	INITSLOT  Opcode = 0x57
	LDSFLD0   Opcode = 0x58
	LDSFLD1   Opcode = 0x59
	LDSFLD2   Opcode = 0x5A
	LDSFLD3   Opcode = 0x5B
	LDSFLD4   Opcode = 0x5C
	LDSFLD5   Opcode = 0x5D
	LDSFLD6   Opcode = 0x5E
	LDSFLD    Opcode = 0x5F
	STSFLD0   Opcode = 0x60
	STSFLD1   Opcode = 0x61
	STSFLD2   Opcode = 0x62
	STSFLD3   Opcode = 0x63
	STSFLD4   Opcode = 0x64
	STSFLD5   Opcode = 0x65
	STSFLD6   Opcode = 0x66
	STSFLD    Opcode = 0x67
	LDLOC0    Opcode = 0x68
	LDLOC1    Opcode = 0x69
	LDLOC2    Opcode = 0x6A
	LDLOC3    Opcode = 0x6B
	LDLOC4    Opcode = 0x6C
	LDLOC5    Opcode = 0x6D
	LDLOC6    Opcode = 0x6E
	LDLOC     Opcode = 0x6F
	STLOC0    Opcode = 0x70
	STLOC1    Opcode = 0x71
	STLOC2    Opcode = 0x72
	STLOC3    Opcode = 0x73
	STLOC4    Opcode = 0x74
	STLOC5    Opcode = 0x75
	STLOC6    Opcode = 0x76
	STLOC     Opcode = 0x77
	LDARG0    Opcode = 0x78
	LDARG1    Opcode = 0x79
	LDARG2    Opcode = 0x7A
	LDARG3    Opcode = 0x7B
	LDARG4    Opcode = 0x7C
	LDARG5    Opcode = 0x7D
	LDARG6    Opcode = 0x7E
	LDARG     Opcode = 0x7F
	STARG0    Opcode = 0x80
	STARG1    Opcode = 0x81
	STARG2    Opcode = 0x82
	STARG3    Opcode = 0x83
	STARG4    Opcode = 0x84
	STARG5    Opcode = 0x85
	STARG6    Opcode = 0x86
	STARG     Opcode = 0x87
)

// Splice, bitwise and arithmetic.
const (
	NEWBUFFER   Opcode = 0x88
	MEMCPY      Opcode = 0x89
	CAT         Opcode = 0x8B
	SUBSTR      Opcode = 0x8C
	LEFT        Opcode = 0x8D
	RIGHT       Opcode = 0x8E
	INVERT      Opcode = 0x90
	AND         Opcode = 0x91
	OR          Opcode = 0x92
	XOR         Opcode = 0x93
	EQUAL       Opcode = 0x97
	NOTEQUAL    Opcode = 0x98
	SIGN        Opcode = 0x99
	ABS         Opcode = 0x9A
	NEGATE      Opcode = 0x9B
	INC         Opcode = 0x9C
	DEC         Opcode = 0x9D
	ADD         Opcode = 0x9E
	SUB         Opcode = 0x9F
	MUL         Opcode = 0xA0
	DIV         Opcode = 0xA1
	MOD         Opcode = 0xA2
	POW         Opcode = 0xA3
	SQRT        Opcode = 0xA4
	MODMUL      Opcode = 0xA5
	MODPOW      Opcode = 0xA6
	SHL         Opcode = 0xA8
	SHR         Opcode = 0xA9
	NOT         Opcode = 0xAA
	BOOLAND     Opcode = 0xAB
	BOOLOR      Opcode = 0xAC
	NZ          Opcode = 0xB1
	NUMEQUAL    Opcode = 0xB3
	NUMNOTEQUAL Opcode = 0xB4
	LT          Opcode = 0xB5
	LE          Opcode = 0xB6
	GT          Opcode = 0xB7
	GE          Opcode = 0xB8
	MIN         Opcode = 0xB9
	MAX         Opcode = 0xBA
	WITHIN      Opcode = 0xBB
)

// Compound types and type checks.
const (
	PACKMAP      Opcode = 0xBE
	PACKSTRUCT   Opcode = 0xBF
	PACK         Opcode = 0xC0
	UNPACK       Opcode = 0xC1
	NEWARRAY0    Opcode = 0xC2
	NEWARRAY     Opcode = 0xC3
	NEWARRAY_T   Opcode = 0xC4
	NEWSTRUCT0   Opcode = 0xC5
	NEWSTRUCT    Opcode = 0xC6
	NEWMAP       Opcode = 0xC8
	SIZE         Opcode = 0xCA
	HASKEY       Opcode = 0xCB
	KEYS         Opcode = 0xCC
	VALUES       Opcode = 0xCD
	PICKITEM     Opcode = 0xCE
	APPEND       Opcode = 0xCF
	SETITEM      Opcode = 0xD0
	REVERSEITEMS Opcode = 0xD1
	REMOVE       Opcode = 0xD2
	CLEARITEMS   Opcode = 0xD3
	POPITEM      Opcode = 0xD4
	ISNULL       Opcode = 0xD8
	ISTYPE       Opcode = 0xD9
	CONVERT      Opcode = 0xDB
	ABORTMSG     Opcode = 0xE0
	ASSERTMSG    Opcode = 0xE1
)

// operandInfo describes how an opcode's operand is laid out. Either size is
// a fixed operand length or prefix is the width of a little-endian length
// prefix that precedes a variable-length operand.
type operandInfo struct {
	name   string
	size   int
	prefix int
}

var opcodeTable = map[Opcode]operandInfo{
	PUSHINT8: {"PUSHINT8", 1, 0}, PUSHINT16: {"PUSHINT16", 2, 0},
	PUSHINT32: {"PUSHINT32", 4, 0}, PUSHINT64: {"PUSHINT64", 8, 0},
	PUSHINT128: {"PUSHINT128", 16, 0}, PUSHINT256: {"PUSHINT256", 32, 0},
	PUSHT: {"PUSHT", 0, 0}, PUSHF: {"PUSHF", 0, 0},
	PUSHA: {"PUSHA", 4, 0}, PUSHNULL: {"PUSHNULL", 0, 0},
	PUSHDATA1: {"PUSHDATA1", 0, 1}, PUSHDATA2: {"PUSHDATA2", 0, 2}, PUSHDATA4: {"PUSHDATA4", 0, 4},
	PUSHM1: {"PUSHM1", 0, 0},

	NOP: {"NOP", 0, 0},
	JMP: {"JMP", 1, 0}, JMP_L: {"JMP_L", 4, 0},
	JMPIF: {"JMPIF", 1, 0}, JMPIF_L: {"JMPIF_L", 4, 0},
	JMPIFNOT: {"JMPIFNOT", 1, 0}, JMPIFNOT_L: {"JMPIFNOT_L", 4, 0},
	JMPEQ: {"JMPEQ", 1, 0}, JMPEQ_L: {"JMPEQ_L", 4, 0},
	JMPNE: {"JMPNE", 1, 0}, JMPNE_L: {"JMPNE_L", 4, 0},
	JMPGT: {"JMPGT", 1, 0}, JMPGT_L: {"JMPGT_L", 4, 0},
	JMPGE: {"JMPGE", 1, 0}, JMPGE_L: {"JMPGE_L", 4, 0},
	JMPLT: {"JMPLT", 1, 0}, JMPLT_L: {"JMPLT_L", 4, 0},
	JMPLE: {"JMPLE", 1, 0}, JMPLE_L: {"JMPLE_L", 4, 0},
	CALL: {"CALL", 1, 0}, CALL_L: {"CALL_L", 4, 0},
	CALLA: {"CALLA", 0, 0}, CALLT: {"CALLT", 2, 0},
	ABORT: {"ABORT", 0, 0}, ASSERT: {"ASSERT", 0, 0}, THROW: {"THROW", 0, 0},
	TRY: {"TRY", 2, 0}, TRY_L: {"TRY_L", 8, 0},
	ENDTRY: {"ENDTRY", 1, 0}, ENDTRY_L: {"ENDTRY_L", 4, 0},
	ENDFINALLY: {"ENDFINALLY", 0, 0}, RET: {"RET", 0, 0},
	SYSCALL: {"SYSCALL", 4, 0},

	DEPTH: {"DEPTH", 0, 0}, DROP: {"DROP", 0, 0}, NIP: {"NIP", 0, 0},
	XDROP: {"XDROP", 0, 0}, CLEAR: {"CLEAR", 0, 0}, DUP: {"DUP", 0, 0},
	OVER: {"OVER", 0, 0}, PICK: {"PICK", 0, 0}, TUCK: {"TUCK", 0, 0},
	SWAP: {"SWAP", 0, 0}, ROT: {"ROT", 0, 0}, ROLL: {"ROLL", 0, 0},
	REVERSE3: {"REVERSE3", 0, 0}, REVERSE4: {"REVERSE4", 0, 0}, REVERSEN: {"REVERSEN", 0, 0},

	INITSSLOT: {"INITSSLOT", 1, 0}, INITSLOT: {"INITSLOT", 2, 0},
	LDSFLD: {"LDSFLD", 1, 0}, STSFLD: {"STSFLD", 1, 0},
	LDLOC: {"LDLOC", 1, 0}, STLOC: {"STLOC", 1, 0},
	LDARG: {"LDARG", 1, 0}, STARG: {"STARG", 1, 0},

	NEWBUFFER: {"NEWBUFFER", 0, 0}, MEMCPY: {"MEMCPY", 0, 0},
	CAT: {"CAT", 0, 0}, SUBSTR: {"SUBSTR", 0, 0}, LEFT: {"LEFT", 0, 0}, RIGHT: {"RIGHT", 0, 0},
	INVERT: {"INVERT", 0, 0}, AND: {"AND", 0, 0}, OR: {"OR", 0, 0}, XOR: {"XOR", 0, 0},
	EQUAL: {"EQUAL", 0, 0}, NOTEQUAL: {"NOTEQUAL", 0, 0},
	SIGN: {"SIGN", 0, 0}, ABS: {"ABS", 0, 0}, NEGATE: {"NEGATE", 0, 0},
	INC: {"INC", 0, 0}, DEC: {"DEC", 0, 0}, ADD: {"ADD", 0, 0}, SUB: {"SUB", 0, 0},
	MUL: {"MUL", 0, 0}, DIV: {"DIV", 0, 0}, MOD: {"MOD", 0, 0}, POW: {"POW", 0, 0},
	SQRT: {"SQRT", 0, 0}, MODMUL: {"MODMUL", 0, 0}, MODPOW: {"MODPOW", 0, 0},
	SHL: {"SHL", 0, 0}, SHR: {"SHR", 0, 0}, NOT: {"NOT", 0, 0},
	BOOLAND: {"BOOLAND", 0, 0}, BOOLOR: {"BOOLOR", 0, 0}, NZ: {"NZ", 0, 0},
	NUMEQUAL: {"NUMEQUAL", 0, 0}, NUMNOTEQUAL: {"NUMNOTEQUAL", 0, 0},
	LT: {"LT", 0, 0}, LE: {"LE", 0, 0}, GT: {"GT", 0, 0}, GE: {"GE", 0, 0},
	MIN: {"MIN", 0, 0}, MAX: {"MAX", 0, 0}, WITHIN: {"WITHIN", 0, 0},

	PACKMAP: {"PACKMAP", 0, 0}, PACKSTRUCT: {"PACKSTRUCT", 0, 0},
	PACK: {"PACK", 0, 0}, UNPACK: {"UNPACK", 0, 0},
	NEWARRAY0: {"NEWARRAY0", 0, 0}, NEWARRAY: {"NEWARRAY", 0, 0}, NEWARRAY_T: {"NEWARRAY_T", 1, 0},
	NEWSTRUCT0: {"NEWSTRUCT0", 0, 0}, NEWSTRUCT: {"NEWSTRUCT", 0, 0}, NEWMAP: {"NEWMAP", 0, 0},
	SIZE: {"SIZE", 0, 0}, HASKEY: {"HASKEY", 0, 0}, KEYS: {"KEYS", 0, 0}, VALUES: {"VALUES", 0, 0},
	PICKITEM: {"PICKITEM", 0, 0}, APPEND: {"APPEND", 0, 0}, SETITEM: {"SETITEM", 0, 0},
	REVERSEITEMS: {"REVERSEITEMS", 0, 0}, REMOVE: {"REMOVE", 0, 0},
	CLEARITEMS: {"CLEARITEMS", 0, 0}, POPITEM: {"POPITEM", 0, 0},
	ISNULL: {"ISNULL", 0, 0}, ISTYPE: {"ISTYPE", 1, 0}, CONVERT: {"CONVERT", 1, 0},
	ABORTMSG: {"ABORTMSG", 0, 0}, ASSERTMSG: {"ASSERTMSG", 0, 0},
}

func init() {
	// The numbered push and slot opcodes are generated rather than spelled out.
	for i := 0; i <= 16; i++ {
		opcodeTable[PUSH0+Opcode(i)] = operandInfo{name: fmt.Sprintf("PUSH%d", i)}
	}
	for i := 0; i <= 6; i++ {
		opcodeTable[LDSFLD0+Opcode(i)] = operandInfo{name: fmt.Sprintf("LDSFLD%d", i)}
		opcodeTable[STSFLD0+Opcode(i)] = operandInfo{name: fmt.Sprintf("STSFLD%d", i)}
		opcodeTable[LDLOC0+Opcode(i)] = operandInfo{name: fmt.Sprintf("LDLOC%d", i)}
		opcodeTable[STLOC0+Opcode(i)] = operandInfo{name: fmt.Sprintf("STLOC%d", i)}
		opcodeTable[LDARG0+Opcode(i)] = operandInfo{name: fmt.Sprintf("LDARG%d", i)}
		opcodeTable[STARG0+Opcode(i)] = operandInfo{name: fmt.Sprintf("STARG%d", i)}
	}
}

// IsValid reports whether op is a defined NeoVM opcode.
func (op Opcode) IsValid() bool {
	_, ok := opcodeTable[op]
	return ok
}

func (op Opcode) String() string {
	if info, ok := opcodeTable[op]; ok {
		return info.name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))
}

// IsJump reports whether op transfers control to a relative target encoded
// in its operand (jumps, calls, PUSHA and ENDTRY).
func (op Opcode) IsJump() bool {
	switch {
	case op >= JMP && op <= CALL_L:
		return true
	case op == PUSHA, op == ENDTRY, op == ENDTRY_L:
		return true
	}
	return false
}

// IsPushInt reports whether op pushes an immediate integer operand.
func (op Opcode) IsPushInt() bool {
	return op >= PUSHINT8 && op <= PUSHINT256
}

// IsPushData reports whether op pushes a length-prefixed byte operand.
func (op Opcode) IsPushData() bool {
	return op >= PUSHDATA1 && op <= PUSHDATA4
}
