// Copyright © 2018 The ELPS authors

package neovm

import (
	"errors"
	"fmt"
	"math/big"
)

const maxShift = 256

var errAbort = errors.New("ABORT is executed")

func checkInt(n *big.Int) (Integer, error) {
	if len(IntToBytes(n)) > MaxIntegerSize {
		return Integer{}, fmt.Errorf("integer overflow: %d bytes", len(IntToBytes(n)))
	}
	return Integer{Value: n}, nil
}

func (v *VM) popBig() (*big.Int, error) {
	it, err := v.pop()
	if err != nil {
		return nil, err
	}
	return ToInteger(it)
}

func (v *VM) pushBig(n *big.Int) error {
	it, err := checkInt(n)
	if err != nil {
		return err
	}
	return v.push(it)
}

func (v *VM) execute(ctx *Context, ins Instruction) error {
	op := ins.Opcode
	switch {
	case op.IsPushInt(), op == PUSHM1, op >= PUSH0 && op <= PUSH16:
		n, _ := ins.PushInt()
		return v.push(Integer{Value: n})
	case op.IsPushData():
		b := make([]byte, len(ins.Operand))
		copy(b, ins.Operand)
		return v.push(ByteString(b))
	case op >= LDSFLD0 && op <= STARG:
		return v.execSlot(ctx, ins)
	case op >= JMP && op <= JMPLE_L:
		return v.execJump(ctx, ins)
	case op >= INVERT && op <= WITHIN:
		return v.execNumeric(op)
	case op >= PACKMAP && op <= POPITEM:
		return v.execCompound(ins)
	case op >= DEPTH && op <= REVERSEN:
		return v.execStack(op)
	case op >= NEWBUFFER && op <= RIGHT:
		return v.execSplice(op)
	}

	switch op {
	case PUSHT:
		return v.push(Boolean(true))
	case PUSHF:
		return v.push(Boolean(false))
	case PUSHNULL:
		return v.push(Null{})
	case PUSHA:
		target := ins.JumpTarget()
		if target < 0 || target > ctx.script.Len() {
			return fmt.Errorf("pointer target %d out of range", target)
		}
		return v.push(Pointer{Script: ctx.script, Position: target})
	case NOP:
		return nil
	case CALL, CALL_L:
		return v.call(ctx, ins.JumpTarget())
	case CALLA:
		it, err := v.pop()
		if err != nil {
			return err
		}
		p, ok := it.(Pointer)
		if !ok {
			return fmt.Errorf("CALLA expects a Pointer, got %s", TypeOf(it))
		}
		if p.Script != ctx.script {
			return errors.New("pointer belongs to another script")
		}
		return v.call(ctx, p.Position)
	case CALLT:
		return fmt.Errorf("method token %d: CALLT is not supported", ins.TokenU16())
	case ABORT:
		return errAbort
	case ABORTMSG:
		b, err := v.popBytes()
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", errAbort, b)
	case ASSERT:
		ok, err := v.popBool()
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("ASSERT is executed with false result")
		}
		return nil
	case ASSERTMSG:
		msg, err := v.popBytes()
		if err != nil {
			return err
		}
		ok, err := v.popBool()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("ASSERT is executed with false result: %s", msg)
		}
		return nil
	case THROW:
		ex, err := v.pop()
		if err != nil {
			return err
		}
		return v.throw(ex)
	case TRY, TRY_L:
		catch, finally := ins.TryTargets()
		if catch < 0 && finally < 0 {
			return errors.New("TRY without catch or finally")
		}
		ctx.tries = append(ctx.tries, &tryContext{catchPtr: catch, finallyPtr: finally, endPtr: -1})
		return nil
	case ENDTRY, ENDTRY_L:
		if len(ctx.tries) == 0 {
			return errors.New("ENDTRY outside of a TRY block")
		}
		tc := ctx.tries[len(ctx.tries)-1]
		if tc.state == finallyBlock {
			return errors.New("ENDTRY inside a finally block")
		}
		end := ins.JumpTarget()
		if tc.hasFinally() {
			tc.state = finallyBlock
			tc.endPtr = end
			return v.jumpTo(ctx, tc.finallyPtr)
		}
		ctx.tries = ctx.tries[:len(ctx.tries)-1]
		return v.jumpTo(ctx, end)
	case ENDFINALLY:
		if len(ctx.tries) == 0 {
			return errors.New("ENDFINALLY outside of a TRY block")
		}
		tc := ctx.tries[len(ctx.tries)-1]
		ctx.tries = ctx.tries[:len(ctx.tries)-1]
		if v.uncaught == nil {
			return v.jumpTo(ctx, tc.endPtr)
		}
		return v.handleException()
	case RET:
		return v.ret()
	case SYSCALL:
		token := ins.TokenU32()
		fn, ok := v.interops[token]
		if !ok {
			return fmt.Errorf("syscall 0x%08x is not supported", token)
		}
		return fn(v)
	case INITSSLOT:
		n := ins.TokenU8()
		if n == 0 {
			return errors.New("INITSSLOT with zero fields")
		}
		if *ctx.statics != nil {
			return errors.New("static fields already initialized")
		}
		*ctx.statics = newSlot(n)
		return nil
	case INITSLOT:
		if ctx.locals != nil || ctx.args != nil {
			return errors.New("slots already initialized")
		}
		nloc, narg := ins.TokenU8At(0), ins.TokenU8At(1)
		if nloc == 0 && narg == 0 {
			return errors.New("INITSLOT with zero slots")
		}
		if nloc > 0 {
			ctx.locals = newSlot(nloc)
		}
		if narg > 0 {
			ctx.args = newSlot(narg)
			for i := 0; i < narg; i++ {
				it, err := v.pop()
				if err != nil {
					return err
				}
				ctx.args[i] = it
			}
		}
		return nil
	case ISNULL:
		it, err := v.pop()
		if err != nil {
			return err
		}
		return v.push(Boolean(IsNull(it)))
	case ISTYPE:
		t := ItemType(ins.TokenU8())
		if t == AnyT || !t.IsValid() {
			return fmt.Errorf("invalid type 0x%02x", byte(t))
		}
		it, err := v.pop()
		if err != nil {
			return err
		}
		return v.push(Boolean(TypeOf(it) == t))
	case CONVERT:
		it, err := v.pop()
		if err != nil {
			return err
		}
		out, err := Convert(it, ItemType(ins.TokenU8()))
		if err != nil {
			return err
		}
		return v.push(out)
	}
	return fmt.Errorf("opcode %s is not supported", op)
}

// Convert converts it to type t following CONVERT semantics.
func Convert(it StackItem, t ItemType) (StackItem, error) {
	if t == AnyT || !t.IsValid() {
		return nil, fmt.Errorf("%w: invalid type 0x%02x", ErrInvalidConversion, byte(t))
	}
	if IsNull(it) || it.Type() == t {
		return it, nil
	}
	switch t {
	case BooleanT:
		b, err := ToBoolean(it)
		if err != nil {
			return nil, err
		}
		if _, ok := it.(*Array); ok {
			return nil, fmt.Errorf("%w: %s to Boolean", ErrInvalidConversion, it.Type())
		}
		return Boolean(b), nil
	case IntegerT:
		n, err := ToInteger(it)
		if err != nil {
			return nil, err
		}
		return Integer{Value: n}, nil
	case ByteStringT:
		b, err := ToBytes(it)
		if err != nil {
			return nil, err
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		return ByteString(cp), nil
	case BufferT:
		b, err := ToBytes(it)
		if err != nil {
			return nil, err
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		return &Buffer{Value: cp}, nil
	case ArrayT, StructT:
		a, ok := it.(*Array)
		if !ok {
			break
		}
		items := make([]StackItem, len(a.Items))
		copy(items, a.Items)
		return &Array{Items: items, IsStruct: t == StructT}, nil
	}
	return nil, fmt.Errorf("%w: %s to %s", ErrInvalidConversion, it.Type(), t)
}

func (v *VM) execSlot(ctx *Context, ins Instruction) error {
	op := ins.Opcode
	var (
		slot  Slot
		index int
		load  bool
	)
	pick := func(base, long Opcode) bool {
		if op >= base && op <= base+6 {
			index = int(op - base)
			return true
		}
		if op == long {
			index = ins.TokenU8()
			return true
		}
		return false
	}
	switch {
	case pick(LDSFLD0, LDSFLD):
		slot, load = *ctx.statics, true
	case pick(STSFLD0, STSFLD):
		slot = *ctx.statics
	case pick(LDLOC0, LDLOC):
		slot, load = ctx.locals, true
	case pick(STLOC0, STLOC):
		slot = ctx.locals
	case pick(LDARG0, LDARG):
		slot, load = ctx.args, true
	case pick(STARG0, STARG):
		slot = ctx.args
	}
	if index >= len(slot) {
		return fmt.Errorf("slot index %d out of range (size %d)", index, len(slot))
	}
	if load {
		return v.push(slot[index])
	}
	it, err := v.pop()
	if err != nil {
		return err
	}
	slot[index] = it
	return nil
}

func (v *VM) execJump(ctx *Context, ins Instruction) error {
	op := ins.Opcode
	target := ins.JumpTarget()
	switch op {
	case JMP, JMP_L:
		return v.jumpTo(ctx, target)
	case JMPIF, JMPIF_L, JMPIFNOT, JMPIFNOT_L:
		b, err := v.popBool()
		if err != nil {
			return err
		}
		if b == (op == JMPIF || op == JMPIF_L) {
			return v.jumpTo(ctx, target)
		}
		return nil
	}
	x2, err := v.popBig()
	if err != nil {
		return err
	}
	x1, err := v.popBig()
	if err != nil {
		return err
	}
	c := x1.Cmp(x2)
	var taken bool
	switch op {
	case JMPEQ, JMPEQ_L:
		taken = c == 0
	case JMPNE, JMPNE_L:
		taken = c != 0
	case JMPGT, JMPGT_L:
		taken = c > 0
	case JMPGE, JMPGE_L:
		taken = c >= 0
	case JMPLT, JMPLT_L:
		taken = c < 0
	case JMPLE, JMPLE_L:
		taken = c <= 0
	}
	if taken {
		return v.jumpTo(ctx, target)
	}
	return nil
}

func (v *VM) execStack(op Opcode) error {
	s := v.estack()
	switch op {
	case DEPTH:
		return v.push(NewInt(int64(s.Len())))
	case DROP:
		_, err := s.Pop()
		return err
	case NIP:
		_, err := s.Remove(1)
		return err
	case XDROP:
		n, err := v.popInt()
		if err != nil {
			return err
		}
		_, err = s.Remove(n)
		return err
	case CLEAR:
		s.Clear()
		return nil
	case DUP, OVER:
		n := 0
		if op == OVER {
			n = 1
		}
		it, err := s.Peek(n)
		if err != nil {
			return err
		}
		return v.push(it)
	case PICK:
		n, err := v.popInt()
		if err != nil {
			return err
		}
		it, err := s.Peek(n)
		if err != nil {
			return err
		}
		return v.push(it)
	case TUCK:
		it, err := s.Peek(0)
		if err != nil {
			return err
		}
		return s.Insert(2, it)
	case SWAP:
		return s.Reverse(2)
	case ROT, ROLL:
		n := 2
		if op == ROLL {
			var err error
			if n, err = v.popInt(); err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
		}
		it, err := s.Remove(n)
		if err != nil {
			return err
		}
		return v.push(it)
	case REVERSE3:
		return s.Reverse(3)
	case REVERSE4:
		return s.Reverse(4)
	case REVERSEN:
		n, err := v.popInt()
		if err != nil {
			return err
		}
		return s.Reverse(n)
	}
	return fmt.Errorf("opcode %s is not supported", op)
}

func (v *VM) execSplice(op Opcode) error {
	switch op {
	case NEWBUFFER:
		n, err := v.popInt()
		if err != nil {
			return err
		}
		if n < 0 || n > 1024*1024 {
			return fmt.Errorf("invalid buffer size %d", n)
		}
		return v.push(&Buffer{Value: make([]byte, n)})
	case MEMCPY:
		count, err := v.popInt()
		if err != nil {
			return err
		}
		si, err := v.popInt()
		if err != nil {
			return err
		}
		src, err := v.popBytes()
		if err != nil {
			return err
		}
		di, err := v.popInt()
		if err != nil {
			return err
		}
		it, err := v.pop()
		if err != nil {
			return err
		}
		dst, ok := it.(*Buffer)
		if !ok {
			return fmt.Errorf("MEMCPY destination must be a Buffer, got %s", TypeOf(it))
		}
		if count < 0 || si < 0 || di < 0 || si+count > len(src) || di+count > len(dst.Value) {
			return errors.New("MEMCPY range out of bounds")
		}
		copy(dst.Value[di:di+count], src[si:si+count])
		return nil
	case CAT:
		x2, err := v.popBytes()
		if err != nil {
			return err
		}
		x1, err := v.popBytes()
		if err != nil {
			return err
		}
		out := make([]byte, 0, len(x1)+len(x2))
		out = append(append(out, x1...), x2...)
		return v.push(&Buffer{Value: out})
	case SUBSTR, LEFT, RIGHT:
		count, err := v.popInt()
		if err != nil {
			return err
		}
		index := 0
		if op == SUBSTR {
			if index, err = v.popInt(); err != nil {
				return err
			}
		}
		x, err := v.popBytes()
		if err != nil {
			return err
		}
		if op == RIGHT {
			index = len(x) - count
		}
		if count < 0 || index < 0 || index+count > len(x) {
			return fmt.Errorf("%s range out of bounds", op)
		}
		out := make([]byte, count)
		copy(out, x[index:index+count])
		return v.push(&Buffer{Value: out})
	}
	return fmt.Errorf("opcode %s is not supported", op)
}

func (v *VM) execNumeric(op Opcode) error {
	switch op {
	case EQUAL, NOTEQUAL:
		x2, err := v.pop()
		if err != nil {
			return err
		}
		x1, err := v.pop()
		if err != nil {
			return err
		}
		return v.push(Boolean(Equals(x1, x2) == (op == EQUAL)))
	case NOT, NZ:
		x, err := v.pop()
		if err != nil {
			return err
		}
		if op == NZ {
			n, err := ToInteger(x)
			if err != nil {
				return err
			}
			return v.push(Boolean(n.Sign() != 0))
		}
		b, err := ToBoolean(x)
		if err != nil {
			return err
		}
		return v.push(Boolean(!b))
	case BOOLAND, BOOLOR:
		x2, err := v.popBool()
		if err != nil {
			return err
		}
		x1, err := v.popBool()
		if err != nil {
			return err
		}
		if op == BOOLAND {
			return v.push(Boolean(x1 && x2))
		}
		return v.push(Boolean(x1 || x2))
	case INVERT, SIGN, ABS, NEGATE, INC, DEC, SQRT:
		x, err := v.popBig()
		if err != nil {
			return err
		}
		r := new(big.Int)
		switch op {
		case INVERT:
			r.Not(x)
		case SIGN:
			r.SetInt64(int64(x.Sign()))
		case ABS:
			r.Abs(x)
		case NEGATE:
			r.Neg(x)
		case INC:
			r.Add(x, big.NewInt(1))
		case DEC:
			r.Sub(x, big.NewInt(1))
		case SQRT:
			if x.Sign() < 0 {
				return errors.New("value cannot be negative")
			}
			r.Sqrt(x)
		}
		return v.pushBig(r)
	case WITHIN:
		b, err := v.popBig()
		if err != nil {
			return err
		}
		a, err := v.popBig()
		if err != nil {
			return err
		}
		x, err := v.popBig()
		if err != nil {
			return err
		}
		return v.push(Boolean(a.Cmp(x) <= 0 && x.Cmp(b) < 0))
	case MODMUL, MODPOW:
		m, err := v.popBig()
		if err != nil {
			return err
		}
		x2, err := v.popBig()
		if err != nil {
			return err
		}
		x1, err := v.popBig()
		if err != nil {
			return err
		}
		if m.Sign() == 0 {
			return errors.New("division by zero")
		}
		r := new(big.Int)
		if op == MODMUL {
			r.Rem(r.Mul(x1, x2), m)
			return v.pushBig(r)
		}
		if x2.Cmp(big.NewInt(-1)) == 0 {
			if r.ModInverse(x1, new(big.Int).Abs(m)) == nil {
				return errors.New("no modular inverse")
			}
			return v.pushBig(r)
		}
		if x2.Sign() < 0 {
			return errors.New("negative exponent")
		}
		r.Exp(x1, x2, new(big.Int).Abs(m))
		return v.pushBig(r)
	}

	// Binary integer operators and comparisons.
	x2, err := v.pop()
	if err != nil {
		return err
	}
	x1, err := v.pop()
	if err != nil {
		return err
	}
	switch op {
	case LT, LE, GT, GE:
		if IsNull(x1) || IsNull(x2) {
			return v.push(Boolean(false))
		}
	}
	b, err := ToInteger(x2)
	if err != nil {
		return err
	}
	a, err := ToInteger(x1)
	if err != nil {
		return err
	}
	r := new(big.Int)
	switch op {
	case AND:
		r.And(a, b)
	case OR:
		r.Or(a, b)
	case XOR:
		r.Xor(a, b)
	case ADD:
		r.Add(a, b)
	case SUB:
		r.Sub(a, b)
	case MUL:
		r.Mul(a, b)
	case DIV, MOD:
		if b.Sign() == 0 {
			return errors.New("division by zero")
		}
		if op == DIV {
			r.Quo(a, b)
		} else {
			r.Rem(a, b)
		}
	case POW:
		if b.Sign() < 0 || b.Cmp(big.NewInt(maxShift)) > 0 {
			return fmt.Errorf("invalid exponent %s", b)
		}
		r.Exp(a, b, nil)
	case SHL, SHR:
		if b.Sign() < 0 || b.Cmp(big.NewInt(maxShift)) > 0 {
			return fmt.Errorf("invalid shift %s", b)
		}
		if op == SHL {
			r.Lsh(a, uint(b.Int64()))
		} else {
			r.Rsh(a, uint(b.Int64()))
		}
	case NUMEQUAL:
		return v.push(Boolean(a.Cmp(b) == 0))
	case NUMNOTEQUAL:
		return v.push(Boolean(a.Cmp(b) != 0))
	case LT:
		return v.push(Boolean(a.Cmp(b) < 0))
	case LE:
		return v.push(Boolean(a.Cmp(b) <= 0))
	case GT:
		return v.push(Boolean(a.Cmp(b) > 0))
	case GE:
		return v.push(Boolean(a.Cmp(b) >= 0))
	case MIN:
		if a.Cmp(b) <= 0 {
			r.Set(a)
		} else {
			r.Set(b)
		}
	case MAX:
		if a.Cmp(b) >= 0 {
			r.Set(a)
		} else {
			r.Set(b)
		}
	default:
		return fmt.Errorf("opcode %s is not supported", op)
	}
	return v.pushBig(r)
}

func storeValue(it StackItem) StackItem {
	if s, ok := it.(*Array); ok && s.IsStruct {
		return cloneStruct(s)
	}
	return it
}

func (v *VM) execCompound(ins Instruction) error {
	op := ins.Opcode
	switch op {
	case PACKMAP:
		n, err := v.popInt()
		if err != nil {
			return err
		}
		m := &Map{}
		for i := 0; i < n; i++ {
			k, err := v.pop()
			if err != nil {
				return err
			}
			if !IsPrimitive(k) {
				return fmt.Errorf("invalid map key type %s", TypeOf(k))
			}
			val, err := v.pop()
			if err != nil {
				return err
			}
			m.Set(k, val)
		}
		return v.push(m)
	case PACK, PACKSTRUCT:
		n, err := v.popInt()
		if err != nil {
			return err
		}
		if n < 0 || n > v.estack().Len() {
			return fmt.Errorf("invalid pack size %d", n)
		}
		a := &Array{Items: make([]StackItem, n), IsStruct: op == PACKSTRUCT}
		for i := 0; i < n; i++ {
			if a.Items[i], err = v.pop(); err != nil {
				return err
			}
		}
		return v.push(a)
	case UNPACK:
		it, err := v.pop()
		if err != nil {
			return err
		}
		switch x := it.(type) {
		case *Map:
			for i := len(x.Entries) - 1; i >= 0; i-- {
				if err := v.push(x.Entries[i].Value); err != nil {
					return err
				}
				if err := v.push(x.Entries[i].Key); err != nil {
					return err
				}
			}
			return v.push(NewInt(int64(len(x.Entries))))
		case *Array:
			for i := len(x.Items) - 1; i >= 0; i-- {
				if err := v.push(x.Items[i]); err != nil {
					return err
				}
			}
			return v.push(NewInt(int64(len(x.Items))))
		}
		return fmt.Errorf("cannot unpack %s", TypeOf(it))
	case NEWARRAY0:
		return v.push(NewArray())
	case NEWSTRUCT0:
		return v.push(NewStruct())
	case NEWMAP:
		return v.push(&Map{})
	case NEWARRAY, NEWARRAY_T, NEWSTRUCT:
		n, err := v.popInt()
		if err != nil {
			return err
		}
		if n < 0 || n > MaxStackSize {
			return fmt.Errorf("invalid array size %d", n)
		}
		var zero func() StackItem
		switch {
		case op == NEWARRAY_T && ItemType(ins.TokenU8()) == BooleanT:
			zero = func() StackItem { return Boolean(false) }
		case op == NEWARRAY_T && ItemType(ins.TokenU8()) == IntegerT:
			zero = func() StackItem { return NewInt(0) }
		case op == NEWARRAY_T && ItemType(ins.TokenU8()) == ByteStringT:
			zero = func() StackItem { return ByteString{} }
		default:
			zero = func() StackItem { return Null{} }
		}
		a := &Array{Items: make([]StackItem, n), IsStruct: op == NEWSTRUCT}
		for i := range a.Items {
			a.Items[i] = zero()
		}
		return v.push(a)
	case SIZE:
		it, err := v.pop()
		if err != nil {
			return err
		}
		switch x := it.(type) {
		case *Array:
			return v.push(NewInt(int64(len(x.Items))))
		case *Map:
			return v.push(NewInt(int64(len(x.Entries))))
		}
		b, err := ToBytes(it)
		if err != nil {
			return err
		}
		return v.push(NewInt(int64(len(b))))
	case HASKEY:
		key, err := v.pop()
		if err != nil {
			return err
		}
		x, err := v.pop()
		if err != nil {
			return err
		}
		if m, ok := x.(*Map); ok {
			_, found := m.Get(key)
			return v.push(Boolean(found))
		}
		idx, err := ToInteger(key)
		if err != nil {
			return err
		}
		if idx.Sign() < 0 {
			return fmt.Errorf("negative index %s", idx)
		}
		n, err := itemLen(x)
		if err != nil {
			return err
		}
		return v.push(Boolean(idx.Cmp(big.NewInt(int64(n))) < 0))
	case KEYS:
		it, err := v.pop()
		if err != nil {
			return err
		}
		m, ok := it.(*Map)
		if !ok {
			return fmt.Errorf("KEYS expects a Map, got %s", TypeOf(it))
		}
		keys := NewArray()
		for _, e := range m.Entries {
			keys.Items = append(keys.Items, e.Key)
		}
		return v.push(keys)
	case VALUES:
		it, err := v.pop()
		if err != nil {
			return err
		}
		vals := NewArray()
		switch x := it.(type) {
		case *Map:
			for _, e := range x.Entries {
				vals.Items = append(vals.Items, storeValue(e.Value))
			}
		case *Array:
			for _, e := range x.Items {
				vals.Items = append(vals.Items, storeValue(e))
			}
		default:
			return fmt.Errorf("VALUES expects a compound value, got %s", TypeOf(it))
		}
		return v.push(vals)
	case PICKITEM:
		key, err := v.pop()
		if err != nil {
			return err
		}
		x, err := v.pop()
		if err != nil {
			return err
		}
		it, err := PickItem(x, key)
		if err != nil {
			return err
		}
		return v.push(it)
	case APPEND:
		item, err := v.pop()
		if err != nil {
			return err
		}
		it, err := v.pop()
		if err != nil {
			return err
		}
		a, ok := it.(*Array)
		if !ok {
			return fmt.Errorf("APPEND expects an Array, got %s", TypeOf(it))
		}
		a.Items = append(a.Items, storeValue(item))
		return nil
	case SETITEM:
		val, err := v.pop()
		if err != nil {
			return err
		}
		key, err := v.pop()
		if err != nil {
			return err
		}
		x, err := v.pop()
		if err != nil {
			return err
		}
		switch c := x.(type) {
		case *Map:
			if !IsPrimitive(key) {
				return fmt.Errorf("invalid map key type %s", TypeOf(key))
			}
			c.Set(key, storeValue(val))
			return nil
		case *Array:
			i, err := index(key, len(c.Items))
			if err != nil {
				return err
			}
			c.Items[i] = storeValue(val)
			return nil
		case *Buffer:
			i, err := index(key, len(c.Value))
			if err != nil {
				return err
			}
			b, err := ToInteger(val)
			if err != nil {
				return err
			}
			if b.Cmp(big.NewInt(-128)) < 0 || b.Cmp(big.NewInt(255)) > 0 {
				return fmt.Errorf("byte value %s out of range", b)
			}
			c.Value[i] = byte(b.Int64())
			return nil
		}
		return fmt.Errorf("SETITEM on %s", TypeOf(x))
	case REVERSEITEMS:
		it, err := v.pop()
		if err != nil {
			return err
		}
		switch x := it.(type) {
		case *Array:
			for i, j := 0, len(x.Items)-1; i < j; i, j = i+1, j-1 {
				x.Items[i], x.Items[j] = x.Items[j], x.Items[i]
			}
			return nil
		case *Buffer:
			for i, j := 0, len(x.Value)-1; i < j; i, j = i+1, j-1 {
				x.Value[i], x.Value[j] = x.Value[j], x.Value[i]
			}
			return nil
		}
		return fmt.Errorf("REVERSEITEMS on %s", TypeOf(it))
	case REMOVE:
		key, err := v.pop()
		if err != nil {
			return err
		}
		x, err := v.pop()
		if err != nil {
			return err
		}
		switch c := x.(type) {
		case *Map:
			c.Remove(key)
			return nil
		case *Array:
			i, err := index(key, len(c.Items))
			if err != nil {
				return err
			}
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
		return fmt.Errorf("REMOVE on %s", TypeOf(x))
	case CLEARITEMS:
		it, err := v.pop()
		if err != nil {
			return err
		}
		switch x := it.(type) {
		case *Map:
			x.Entries = nil
			return nil
		case *Array:
			x.Items = nil
			return nil
		}
		return fmt.Errorf("CLEARITEMS on %s", TypeOf(it))
	case POPITEM:
		it, err := v.pop()
		if err != nil {
			return err
		}
		a, ok := it.(*Array)
		if !ok || len(a.Items) == 0 {
			return errors.New("POPITEM expects a non-empty Array")
		}
		last := a.Items[len(a.Items)-1]
		a.Items = a.Items[:len(a.Items)-1]
		return v.push(last)
	}
	return fmt.Errorf("opcode %s is not supported", op)
}

func itemLen(x StackItem) (int, error) {
	switch c := x.(type) {
	case *Array:
		return len(c.Items), nil
	case *Map:
		return len(c.Entries), nil
	}
	b, err := ToBytes(x)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

func index(key StackItem, n int) (int, error) {
	k, err := ToInteger(key)
	if err != nil {
		return 0, err
	}
	if k.Sign() < 0 || k.Cmp(big.NewInt(int64(n))) >= 0 {
		return 0, fmt.Errorf("index %s out of range (length %d)", k, n)
	}
	return int(k.Int64()), nil
}

// PickItem returns the element of x selected by key, following PICKITEM
// semantics: array items, map values, or single bytes as integers.
func PickItem(x, key StackItem) (StackItem, error) {
	switch c := x.(type) {
	case *Array:
		i, err := index(key, len(c.Items))
		if err != nil {
			return nil, err
		}
		return c.Items[i], nil
	case *Map:
		val, ok := c.Get(key)
		if !ok {
			return nil, errors.New("key not found in map")
		}
		return val, nil
	case ByteString, *Buffer, Integer, Boolean:
		b, err := ToBytes(x)
		if err != nil {
			return nil, err
		}
		i, err := index(key, len(b))
		if err != nil {
			return nil, err
		}
		return NewInt(int64(b[i])), nil
	}
	return nil, fmt.Errorf("cannot index %s", TypeOf(x))
}
