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

package hir

import (
	"corvus/ast"
	"corvus/runtime"
)

// Build lowers one function body to HIR specialized for paramTypes
// (spec.md §4.2). The driver does not observe argument types: it
// passes Integer for every parameter. selfId/
// selfReturnType let a directly self-recursive call (the flagship
// scenario, fib) resolve its own return type before the function's
// Return statements have been seen; any other call target whose
// return type isn't already known bails with Unimplemented, which the
// driver turns into an interpreter fallback (spec.md §9 "two-tier
// execution": a failed JIT compile must never break correctness).
//
// HIR construction only attempts the arithmetic/control-flow subset
// spec.md's testable properties exercise: if/else and while are
// supported as statements; only if/else may additionally appear in
// value position, and then only when both arms yield Integer, Float,
// or Bool (HIR has no Nil/Symbol/String type tag, so a value the
// bytecode interpreter would happily hand back as nil bails out here).
func Build(name string, params []string, paramTypes []Type, body []ast.Stmt, selfId uint32, selfReturnType Type) (*Func, error) {
	f := NewFunc(name, len(params))
	b := &builder{
		f:          f,
		cur:        f.Entry,
		locals:     map[string]int{},
		localTypes: map[int]Type{},
		selfId:     selfId,
		selfRet:    selfReturnType,
	}
	// Parameters are pre-seated in their local slots by the calling
	// convention (codegen's prologue copies ABI argument registers
	// straight into slot storage, spec.md §4.6) before HIR/MIR ever
	// runs, so no defining instruction is needed here — only the slot
	// number and known type.
	for i, p := range params {
		b.declareLocal(p, paramTypes[i])
	}

	op, retType, err := b.genStmtsExpr(body)
	if err != nil {
		return nil, err
	}
	if !b.cur.terminated {
		if retType == TypeInvalid {
			return nil, &runtime.UnimplementedError{Detail: "function falls off the end with no typed value"}
		}
		reg := b.materialize(op, retType)
		b.emit(&Instr{Op: OpReturn, Type: retType, Args: []Operand{RegOperand(reg)}})
		b.cur.terminated = true
	}
	f.ReturnType = retType
	return f, nil
}

type builder struct {
	f          *Func
	cur        *Block
	locals     map[string]int
	localTypes map[int]Type
	nextSlot   int

	selfId  uint32
	selfRet Type
}

func (b *builder) emit(i *Instr) *Instr {
	return b.cur.addInstr(i)
}

func (b *builder) declareLocal(name string, t Type) int {
	slot, ok := b.locals[name]
	if !ok {
		slot = b.nextSlot
		b.nextSlot++
		b.locals[name] = slot
	}
	b.localTypes[slot] = t
	return slot
}

// genStmts lowers a statement list; it returns the Type of the value
// the final statement leaves (TypeInvalid if none), for use when the
// enclosing construct (if/else arm, function body) is in value
// position.
func (b *builder) genStmts(stmts []ast.Stmt) (Type, error) {
	var last Type
	for i, s := range stmts {
		if b.cur.terminated {
			break // dead code after an early return
		}
		t, err := b.genStmt(s)
		if err != nil {
			return TypeInvalid, err
		}
		if i == len(stmts)-1 {
			last = t
		}
	}
	return last, nil
}

func (b *builder) genStmt(s ast.Stmt) (Type, error) {
	switch st := s.(type) {
	case *ast.ExprStmt:
		if w, ok := st.X.(*ast.WhileExpr); ok {
			_, t, err := b.genWhileStmt(w)
			return t, err
		}
		_, t, err := b.genExpr(st.X)
		return t, err
	case *ast.ReturnStmt:
		if st.Value == nil {
			return TypeInvalid, &runtime.UnimplementedError{Detail: "bare return has no HIR type"}
		}
		op, t, err := b.genExpr(st.Value)
		if err != nil {
			return TypeInvalid, err
		}
		reg := b.materialize(op, t)
		b.emit(&Instr{Op: OpReturn, Type: t, Args: []Operand{RegOperand(reg)}})
		b.cur.terminated = true
		return t, nil
	default:
		return TypeInvalid, &runtime.UnimplementedError{Detail: "HIR statement kind"}
	}
}

// materialize ensures op is a register reference, emitting a constant
// load if it was an inlined immediate.
func (b *builder) materialize(op Operand, t Type) Reg {
	if !op.IsConst {
		return op.Reg
	}
	r := b.f.newReg(t)
	if t == Float {
		b.emit(&Instr{Op: OpFloatConst, Dst: r, Type: Float, Args: []Operand{op}})
	} else {
		b.emit(&Instr{Op: OpIntConst, Dst: r, Type: Integer, Args: []Operand{op}})
	}
	return r
}

// genExpr returns an operand (possibly an inlined constant) and its
// type.
func (b *builder) genExpr(e ast.Expr) (Operand, Type, error) {
	switch ex := e.(type) {
	case *ast.IntLit:
		return IntOperand(ex.Value), Integer, nil
	case *ast.FloatLit:
		return FloatOperand(ex.Value), Float, nil
	case *ast.BoolLit:
		v := int64(0)
		if ex.Value {
			v = 1
		}
		return IntOperand(v), Bool, nil
	case *ast.Ident:
		slot, ok := b.locals[ex.Name]
		if !ok {
			return Operand{}, TypeInvalid, &runtime.UndefinedLocalError{Name: ex.Name}
		}
		t, ok := b.localTypes[slot]
		if !ok {
			return Operand{}, TypeInvalid, &runtime.UnimplementedError{Detail: "local read before any typed store: " + ex.Name}
		}
		r := b.f.newReg(t)
		b.emit(&Instr{Op: OpLocalLoad, Dst: r, Type: t, Slot: slot})
		return RegOperand(r), t, nil
	case *ast.UnaryExpr:
		return b.genUnary(ex)
	case *ast.BinaryExpr:
		return b.genBinary(ex)
	case *ast.AssignExpr:
		return b.genAssign(ex)
	case *ast.IfExpr:
		return b.genIf(ex)
	case *ast.WhileExpr:
		return Operand{}, TypeInvalid, &runtime.UnimplementedError{Detail: "HIR while in value position"}
	case *ast.CallExpr:
		return b.genCall(ex)
	default:
		return Operand{}, TypeInvalid, &runtime.UnimplementedError{Detail: "HIR expression kind"}
	}
}

func (b *builder) genUnary(u *ast.UnaryExpr) (Operand, Type, error) {
	op, t, err := b.genExpr(u.Operand)
	if err != nil {
		return Operand{}, TypeInvalid, err
	}
	if u.Not {
		return Operand{}, TypeInvalid, &runtime.UnimplementedError{Detail: "HIR logical not"}
	}
	if op.IsConst {
		if t == Float {
			return FloatOperand(-op.FltVal), Float, nil
		}
		return IntOperand(-op.IntVal), Integer, nil
	}
	r := b.f.newReg(t)
	b.emit(&Instr{Op: OpNeg, Dst: r, Type: t, Args: []Operand{op}})
	return RegOperand(r), t, nil
}

// promote applies spec.md §4.2's promotion table, inserting an
// IntAsFloat cast on whichever side is Integer when the other is
// Float.
func (b *builder) promote(lop Operand, lt Type, rop Operand, rt Type) (Operand, Operand, Type) {
	if lt == rt {
		return lop, rop, lt
	}
	if lt == Integer && rt == Float {
		return b.castToFloat(lop), rop, Float
	}
	if lt == Float && rt == Integer {
		return lop, b.castToFloat(rop), Float
	}
	return lop, rop, lt
}

func (b *builder) castToFloat(op Operand) Operand {
	src := b.materialize(op, Integer)
	r := b.f.newReg(Float)
	b.emit(&Instr{Op: OpIntAsFloat, Dst: r, Type: Float, Args: []Operand{RegOperand(src)}})
	return RegOperand(r)
}

var intArith = map[ast.BinOp]Op{ast.OpAdd: OpIAdd, ast.OpSub: OpISub, ast.OpMul: OpIMul, ast.OpDiv: OpIDiv, ast.OpMod: OpIMod}
var fltArith = map[ast.BinOp]Op{ast.OpAdd: OpFAdd, ast.OpSub: OpFSub, ast.OpMul: OpFMul, ast.OpDiv: OpFDiv}
var cmpCond = map[ast.BinOp]Cond{ast.OpEq: CondEq, ast.OpNe: CondNe, ast.OpGt: CondGt, ast.OpGe: CondGe, ast.OpLt: CondLt, ast.OpLe: CondLe}

func (b *builder) genBinary(bin *ast.BinaryExpr) (Operand, Type, error) {
	lop, lt, err := b.genExpr(bin.Left)
	if err != nil {
		return Operand{}, TypeInvalid, err
	}
	rop, rt, err := b.genExpr(bin.Right)
	if err != nil {
		return Operand{}, TypeInvalid, err
	}
	if lt == Bool || rt == Bool {
		return Operand{}, TypeInvalid, &runtime.UnimplementedError{Detail: "HIR arithmetic on Bool"}
	}
	lop, rop, ct := b.promote(lop, lt, rop, rt)

	if cond, ok := cmpCond[bin.Op]; ok {
		l := b.materialize(lop, ct)
		r := b.materialize(rop, ct)
		reg := b.f.newReg(Bool)
		op := OpICmp
		if ct == Float {
			op = OpFCmp
		}
		b.emit(&Instr{Op: op, Dst: reg, Type: Bool, Cond: cond, Args: []Operand{RegOperand(l), RegOperand(r)}})
		return RegOperand(reg), Bool, nil
	}

	table := intArith
	if ct == Float {
		table = fltArith
	}
	op, ok := table[bin.Op]
	if !ok {
		return Operand{}, TypeInvalid, &runtime.UnimplementedError{Detail: "HIR binary operator " + bin.Op.String()}
	}
	// Constant-fold when both sides are still inlined immediates.
	if lop.IsConst && rop.IsConst {
		if v, ok := foldConst(bin.Op, lop, rop, ct); ok {
			return v, ct, nil
		}
	}
	l := b.materialize(lop, ct)
	r := b.materialize(rop, ct)
	reg := b.f.newReg(ct)
	b.emit(&Instr{Op: op, Dst: reg, Type: ct, Args: []Operand{RegOperand(l), RegOperand(r)}})
	return RegOperand(reg), ct, nil
}

func foldConst(op ast.BinOp, l, r Operand, t Type) (Operand, bool) {
	if t == Float {
		a, c := l.FltVal, r.FltVal
		switch op {
		case ast.OpAdd:
			return FloatOperand(a + c), true
		case ast.OpSub:
			return FloatOperand(a - c), true
		case ast.OpMul:
			return FloatOperand(a * c), true
		case ast.OpDiv:
			return FloatOperand(a / c), true
		}
		return Operand{}, false
	}
	a, c := l.IntVal, r.IntVal
	switch op {
	case ast.OpAdd:
		return IntOperand(a + c), true
	case ast.OpSub:
		return IntOperand(a - c), true
	case ast.OpMul:
		return IntOperand(a * c), true
	case ast.OpDiv:
		if c != 0 {
			return IntOperand(a / c), true
		}
	}
	return Operand{}, false
}

func (b *builder) genAssign(a *ast.AssignExpr) (Operand, Type, error) {
	ident, ok := a.Left.(*ast.Ident)
	if !ok {
		return Operand{}, TypeInvalid, &runtime.UnimplementedError{Detail: "HIR non-identifier assignment"}
	}
	right := a.Right
	if a.Compound != ast.CompoundNone {
		right = &ast.BinaryExpr{Op: a.Compound.BinOp(), Left: ident, Right: a.Right}
	}
	op, t, err := b.genExpr(right)
	if err != nil {
		return Operand{}, TypeInvalid, err
	}
	slot := b.declareLocal(ident.Name, t)
	reg := b.materialize(op, t)
	b.emit(&Instr{Op: OpLocalStore, Type: t, Slot: slot, Args: []Operand{RegOperand(reg)}})
	return RegOperand(reg), t, nil
}

func (b *builder) genIf(ifx *ast.IfExpr) (Operand, Type, error) {
	condOp, condT, err := b.genExpr(ifx.Cond)
	if err != nil {
		return Operand{}, TypeInvalid, err
	}
	if condT != Bool {
		return Operand{}, TypeInvalid, &runtime.UnimplementedError{Detail: "HIR if-condition must be a comparison"}
	}
	condReg := b.materialize(condOp, Bool)

	thenBlock, elseBlock, joinBlock := b.f.NewBlock(), b.f.NewBlock(), b.f.NewBlock()
	b.emit(&Instr{Op: OpCondJmp, Type: Bool, Args: []Operand{RegOperand(condReg)}, Target: thenBlock, Else: elseBlock})
	thenBlock.Preds = append(thenBlock.Preds, b.cur)
	elseBlock.Preds = append(elseBlock.Preds, b.cur)

	b.cur = thenBlock
	thenOp, thenT, err := b.genStmtsExpr(ifx.Then)
	if err != nil {
		return Operand{}, TypeInvalid, err
	}
	thenEnd := b.cur
	var thenR Reg
	if !thenEnd.terminated {
		if thenT == TypeInvalid {
			return Operand{}, TypeInvalid, &runtime.UnimplementedError{Detail: "HIR if-arm has no value"}
		}
		thenR = b.materialize(thenOp, thenT) // must precede the block's terminator
		b.emit(&Instr{Op: OpJmp, Target: joinBlock})
		joinBlock.Preds = append(joinBlock.Preds, thenEnd)
	}

	b.cur = elseBlock
	if ifx.Else == nil {
		return Operand{}, TypeInvalid, &runtime.UnimplementedError{Detail: "HIR if without else in value position"}
	}
	elseOp, elseT, err := b.genStmtsExpr(ifx.Else)
	if err != nil {
		return Operand{}, TypeInvalid, err
	}
	elseEnd := b.cur
	var elseR Reg
	if !elseEnd.terminated {
		if elseT == TypeInvalid {
			return Operand{}, TypeInvalid, &runtime.UnimplementedError{Detail: "HIR if-arm has no value"}
		}
		elseR = b.materialize(elseOp, elseT)
		b.emit(&Instr{Op: OpJmp, Target: joinBlock})
		joinBlock.Preds = append(joinBlock.Preds, elseEnd)
	}

	if thenEnd.terminated && elseEnd.terminated {
		// Both arms returned/broke out; the join block is unreachable,
		// but the caller (e.g. Build) still expects a type to report.
		return Operand{}, thenT, nil
	}

	joinT := thenT
	if !thenEnd.terminated && !elseEnd.terminated && thenT != elseT {
		if thenT == Integer && elseT == Float {
			thenR = b.castToFloatIn(thenEnd, RegOperand(thenR))
			joinT = Float
		} else if thenT == Float && elseT == Integer {
			elseR = b.castToFloatIn(elseEnd, RegOperand(elseR))
			joinT = Float
		} else {
			return Operand{}, TypeInvalid, &runtime.UnimplementedError{Detail: "HIR if-arms disagree in type"}
		}
	} else if thenEnd.terminated {
		joinT = elseT
	}

	b.cur = joinBlock
	var args []Operand
	var preds []*Block
	if !thenEnd.terminated {
		args = append(args, RegOperand(thenR))
		preds = append(preds, thenEnd)
	}
	if !elseEnd.terminated {
		args = append(args, RegOperand(elseR))
		preds = append(preds, elseEnd)
	}
	if len(args) == 1 {
		// Only one arm reaches the join; no merge is needed.
		return args[0], joinT, nil
	}
	reg := b.f.newReg(joinT)
	b.emit(&Instr{Op: OpPhi, Dst: reg, Type: joinT, Args: args, PhiBlocks: preds})
	return RegOperand(reg), joinT, nil
}

// genStmtsExpr is genStmts but also returns the trailing operand
// (materialized lazily by the caller), needed for if-arm value merges.
func (b *builder) genStmtsExpr(stmts []ast.Stmt) (Operand, Type, error) {
	if len(stmts) == 0 {
		return Operand{}, TypeInvalid, nil
	}
	for _, s := range stmts[:len(stmts)-1] {
		if b.cur.terminated {
			return Operand{}, TypeInvalid, nil // dead code after an early return
		}
		if _, err := b.genStmt(s); err != nil {
			return Operand{}, TypeInvalid, err
		}
	}
	if b.cur.terminated {
		return Operand{}, TypeInvalid, nil
	}
	last := stmts[len(stmts)-1]
	if es, ok := last.(*ast.ExprStmt); ok {
		return b.genExpr(es.X)
	}
	t, err := b.genStmt(last)
	return Operand{}, t, err
}

func (b *builder) materializeIn(block *Block, op Operand, t Type) Reg {
	save := b.cur
	b.cur = block
	r := b.materialize(op, t)
	b.cur = save
	return r
}

func (b *builder) castToFloatIn(block *Block, op Operand) Reg {
	save := b.cur
	b.cur = block
	r := b.castToFloat(op)
	b.cur = save
	return r.Reg
}

func (b *builder) genWhileStmt(w *ast.WhileExpr) (Operand, Type, error) {
	condBlock, bodyBlock, endBlock := b.f.NewBlock(), b.f.NewBlock(), b.f.NewBlock()
	b.emit(&Instr{Op: OpJmp, Target: condBlock})
	condBlock.Preds = append(condBlock.Preds, b.cur)

	b.cur = condBlock
	condOp, condT, err := b.genExpr(w.Cond)
	if err != nil {
		return Operand{}, TypeInvalid, err
	}
	if condT != Bool {
		return Operand{}, TypeInvalid, &runtime.UnimplementedError{Detail: "HIR while-condition must be a comparison"}
	}
	condReg := b.materialize(condOp, Bool)
	b.emit(&Instr{Op: OpCondJmp, Args: []Operand{RegOperand(condReg)}, Target: bodyBlock, Else: endBlock})
	bodyBlock.Preds = append(bodyBlock.Preds, condBlock)
	endBlock.Preds = append(endBlock.Preds, condBlock)

	b.cur = bodyBlock
	if _, err := b.genStmts(w.Body); err != nil {
		return Operand{}, TypeInvalid, err
	}
	if !b.cur.terminated {
		b.emit(&Instr{Op: OpJmp, Target: condBlock})
		condBlock.Preds = append(condBlock.Preds, b.cur)
	}

	b.cur = endBlock
	// SPEC_FULL.md's break-with-value supplement is not representable
	// in HIR's Integer/Float/Bool-only type system when the loop has
	// no statically known result type; while is therefore only
	// supported in discarded-value (statement) position here. Callers
	// needing the value always have the interpreter fallback.
	return Operand{}, TypeInvalid, nil
}

func (b *builder) genCall(c *ast.CallExpr) (Operand, Type, error) {
	if c.Receiver != nil {
		return Operand{}, TypeInvalid, &runtime.UnimplementedError{Detail: "HIR call with receiver"}
	}
	// Only a direct self-recursive call has a return type we can know
	// without having already JIT-compiled the callee.
	funcId, ok := b.selfCallId(c.Name)
	if !ok {
		return Operand{}, TypeInvalid, &runtime.UnimplementedError{Detail: "HIR call to non-self function " + c.Name}
	}
	retType := b.selfRet
	if retType == TypeInvalid {
		return Operand{}, TypeInvalid, &runtime.UnimplementedError{Detail: "HIR self-call return type not yet known"}
	}
	args := make([]Operand, 0, len(c.Args)+1)
	for _, a := range c.Args {
		op, t, err := b.genExpr(a)
		if err != nil {
			return Operand{}, TypeInvalid, err
		}
		args = append(args, RegOperand(b.materialize(op, t)))
	}
	reg := b.f.newReg(retType)
	b.emit(&Instr{Op: OpCall, Dst: reg, Type: retType, Args: args, FuncId: funcId})
	return RegOperand(reg), retType, nil
}

func (b *builder) selfCallId(name string) (uint32, bool) {
	if name == b.f.Name {
		return b.selfId, true
	}
	return 0, false
}
