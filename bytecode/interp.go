// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package bytecode

import (
	"corvus/runtime"
	"corvus/utils"
)

// Interp runs bytecode functions in a direct switch-dispatched loop
// (spec.md §4.4). It owns no state beyond the function table: each
// call gets a fresh register file sized FrameSize().
type Interp struct {
	Table *FuncTable

	// Dispatch resolves a call site's FuncId to a result, given its
	// argument registers. It defaults to always interpreting, but the
	// driver overrides it with its own two-tier (JIT-or-interpret)
	// policy (spec.md §4.7) — the interpreter otherwise has no notion
	// of a compiled entry point and doesn't need one.
	Dispatch func(id FuncId, args []runtime.Value) (runtime.Value, error)

	// OnMethodDef fires after a method (re)definition rebinds id,
	// giving the driver a chance to evict any compiled entry that was
	// cached under id before its body changed (spec.md §9). Nil is a
	// valid no-op default for callers that never JIT at all.
	OnMethodDef func(id FuncId)
}

// NewInterp builds an interpreter over table.
func NewInterp(table *FuncTable) *Interp {
	ip := &Interp{Table: table}
	ip.Dispatch = ip.call
	return ip
}

type handler struct {
	pc   int
	slot uint16
}

// Run interprets fn starting with args already bound to frame slots
// 0..len(args)-1 (slot 0 is self, per spec.md §3).
func (ip *Interp) Run(fn *Function, args []runtime.Value) (runtime.Value, error) {
	frame := make([]runtime.Value, fn.FrameSize())
	for i := range frame {
		frame[i] = runtime.Nil
	}
	copy(frame, args)

	var handlers []handler
	pc := 0
	for pc < len(fn.Code) {
		in := fn.Code[pc]
		result, jump, err := ip.step(fn, frame, in)
		if err != nil {
			if len(handlers) == 0 {
				return runtime.Nil, err
			}
			h := handlers[len(handlers)-1]
			handlers = handlers[:len(handlers)-1]
			frame[h.slot] = errorValue(err)
			pc = h.pc
			continue
		}
		switch result {
		case stepReturn:
			return jump.val, nil
		case stepJump:
			pc = jump.pc
		case stepPushHandler:
			handlers = append(handlers, handler{pc: jump.pc, slot: jump.slot})
			pc++
		case stepPopHandler:
			handlers = handlers[:len(handlers)-1]
			pc++
		default:
			pc++
		}
	}
	return runtime.Nil, nil
}

// errorValue boxes a Go error raised by a generic operator as a string
// Value so `rescue name` can inspect it (a minimal stand-in for a real
// exception object, consistent with runtime.TypeError etc. being plain
// Go errors rather than language-level objects).
func errorValue(err error) runtime.Value {
	return runtime.NewString(err.Error())
}

type stepKind int

const (
	stepNormal stepKind = iota
	stepReturn
	stepJump
	stepPushHandler
	stepPopHandler
)

type stepResult struct {
	val  runtime.Value
	pc   int
	slot uint16
}

func (ip *Interp) step(fn *Function, frame []runtime.Value, in Instr) (stepKind, stepResult, error) {
	switch in.Op {
	case OpLoadNil:
		frame[in.Dst] = runtime.Nil
	case OpLoadBool:
		frame[in.Dst] = runtime.Bool(in.Imm != 0)
	case OpLoadInt:
		frame[in.Dst] = runtime.Int(in.Imm)
	case OpLoadConst:
		frame[in.Dst] = fn.Consts[in.Imm]
	case OpMove:
		frame[in.Dst] = frame[in.A]

	case OpNeg:
		v, err := runtime.Neg(frame[in.A])
		if err != nil {
			return stepNormal, stepResult{}, err
		}
		frame[in.Dst] = v
	case OpNot:
		frame[in.Dst] = runtime.Not(frame[in.A])

	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpBitAnd, OpBitOr, OpBitXor, OpShl, OpShr:
		v, err := binop(in.Op, frame[in.A], frame[in.B])
		if err != nil {
			return stepNormal, stepResult{}, err
		}
		frame[in.Dst] = v
	case OpAddRI:
		v, err := runtime.Add(frame[in.A], runtime.Int(in.Imm))
		if err != nil {
			return stepNormal, stepResult{}, err
		}
		frame[in.Dst] = v
	case OpSubRI:
		v, err := runtime.Sub(frame[in.A], runtime.Int(in.Imm))
		if err != nil {
			return stepNormal, stepResult{}, err
		}
		frame[in.Dst] = v

	case OpCmpEq, OpCmpNe, OpCmpGt, OpCmpGe, OpCmpLt, OpCmpLe:
		v, err := cmpop(in.Op, frame[in.A], frame[in.B])
		if err != nil {
			return stepNormal, stepResult{}, err
		}
		frame[in.Dst] = v
	case OpCmpEqRI:
		frame[in.Dst] = runtime.Bool(frame[in.A].Kind() == runtime.KindInt && frame[in.A].AsInt() == in.Imm)
	case OpCmpLtRI:
		r, err := runtime.Compare(frame[in.A], runtime.Int(in.Imm))
		if err != nil {
			return stepNormal, stepResult{}, err
		}
		frame[in.Dst] = runtime.Bool(r == runtime.CmpLess)
	case OpCmpGtRI:
		r, err := runtime.Compare(frame[in.A], runtime.Int(in.Imm))
		if err != nil {
			return stepNormal, stepResult{}, err
		}
		frame[in.Dst] = runtime.Bool(r == runtime.CmpGreater)

	case OpJmp:
		return stepJump, stepResult{pc: int(in.Imm)}, nil
	case OpJmpIfFalse:
		if !frame[in.A].Truthy() {
			return stepJump, stepResult{pc: int(in.Imm)}, nil
		}

	case OpCall:
		v, err := ip.Dispatch(FuncId(in.Imm), frame[in.A:int(in.A)+int(in.B)])
		if err != nil {
			return stepNormal, stepResult{}, err
		}
		if in.Dst != NoSlot {
			frame[in.Dst] = v
		}
	case OpReturn:
		if in.Imm == 0 {
			return stepReturn, stepResult{val: runtime.Nil}, nil
		}
		return stepReturn, stepResult{val: frame[in.A]}, nil

	case OpMethodDef:
		ip.Table.Rebind(in.Name, FuncId(in.Imm))
		if ip.OnMethodDef != nil {
			ip.OnMethodDef(FuncId(in.Imm))
		}

	case OpPushHandler:
		return stepPushHandler, stepResult{pc: int(in.Imm), slot: in.A}, nil
	case OpPopHandler:
		return stepPopHandler, stepResult{}, nil

	default:
		utils.ShouldNotReachHere()
	}
	return stepNormal, stepResult{}, nil
}

func (ip *Interp) call(id FuncId, args []runtime.Value) (runtime.Value, error) {
	entry := ip.Table.Entry(id)
	if entry.Kind == KindBuiltin {
		return entry.Native.Fn(args)
	}
	utils.Assert(entry.Bytecode != nil, "call to function %d with no bytecode body", id)
	return ip.Run(entry.Bytecode, args)
}

func binop(op Op, a, b runtime.Value) (runtime.Value, error) {
	switch op {
	case OpAdd:
		return runtime.Add(a, b)
	case OpSub:
		return runtime.Sub(a, b)
	case OpMul:
		return runtime.Mul(a, b)
	case OpDiv:
		return runtime.Div(a, b)
	case OpMod:
		return runtime.Mod(a, b)
	case OpBitAnd:
		return runtime.BitAnd(a, b)
	case OpBitOr:
		return runtime.BitOr(a, b)
	case OpBitXor:
		return runtime.BitXor(a, b)
	case OpShl:
		return runtime.ShiftLeft(a, b)
	case OpShr:
		return runtime.ShiftRight(a, b)
	default:
		utils.ShouldNotReachHere()
		return runtime.Nil, nil
	}
}

func cmpop(op Op, a, b runtime.Value) (runtime.Value, error) {
	r, err := runtime.Compare(a, b)
	if err != nil && op != OpCmpEq && op != OpCmpNe {
		return runtime.Nil, err
	}
	switch op {
	case OpCmpEq:
		return runtime.Bool(a.Eq(b)), nil
	case OpCmpNe:
		return runtime.Bool(!a.Eq(b)), nil
	case OpCmpGt:
		return runtime.Bool(r == runtime.CmpGreater), nil
	case OpCmpGe:
		return runtime.Bool(r == runtime.CmpGreater || r == runtime.CmpEqual), nil
	case OpCmpLt:
		return runtime.Bool(r == runtime.CmpLess), nil
	case OpCmpLe:
		return runtime.Bool(r == runtime.CmpLess || r == runtime.CmpEqual), nil
	default:
		utils.ShouldNotReachHere()
		return runtime.Nil, nil
	}
}
