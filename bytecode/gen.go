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
	"corvus/ast"
	"corvus/runtime"
	"corvus/utils"
)

// loopCtx tracks the innermost enclosing WhileExpr so BreakStmt can
// find its break target and result slot (SPEC_FULL.md §4 "break <expr>
// from while").
type loopCtx struct {
	breakLabel int
	resultSlot uint16
	wantValue  bool
}

// Generator lowers one function body's AST into a Function, following
// the stack-disciplined temp allocation and single-pass label fixup
// described in spec.md §4.1.
type Generator struct {
	table *FuncTable

	fn   *Function
	temp int // current high-water-relative cursor; slot = NumLocals+temp-1 for the top

	nextLabel int
	labelPos  map[int]int

	loops []loopCtx

	worklist []FuncId
	symbols  map[string]uint32
	nextSym  uint32
}

// Generate lowers a whole program (spec.md §4.1's worklist: _MAIN plus
// every method definition reached from it, direct or nested).
func Generate(prog *ast.Program) (*FuncTable, error) {
	g := &Generator{
		table:    NewFuncTable(),
		labelPos: map[int]int{},
		symbols:  map[string]uint32{},
	}
	mainFn, err := g.genFunction(prog.Stmts, nil)
	if err != nil {
		return nil, err
	}
	g.table.Entry(MainFuncId).Bytecode = mainFn

	for len(g.worklist) > 0 {
		id := g.worklist[0]
		g.worklist = g.worklist[1:]
		entry := g.table.Entry(id)
		fn, err := g.genFunction(entry.Body, entry.Params)
		if err != nil {
			return nil, err
		}
		entry.Bytecode = fn
	}
	return g.table, nil
}

func (g *Generator) genFunction(stmts []ast.Stmt, params []string) (*Function, error) {
	prevFn, prevTemp, prevLabels, prevNextLabel, prevLoops := g.fn, g.temp, g.labelPos, g.nextLabel, g.loops
	g.fn = &Function{LocalNames: map[string]uint16{}, NumParams: len(params)}
	g.temp = 0
	g.labelPos = map[int]int{}
	g.nextLabel = 0
	g.loops = nil

	// slot 0 is self; params occupy the next len(params) slots.
	g.fn.NumLocals = 1 + len(params)
	for i, p := range params {
		g.fn.LocalNames[p] = uint16(1 + i)
	}

	for i, stmt := range stmts {
		last := i == len(stmts)-1
		left, err := g.genStmt(stmt, last)
		if err != nil {
			return nil, err
		}
		if !last && left {
			g.popTemp()
		}
	}
	if g.temp == 1 {
		g.emit(Instr{Op: OpReturn, A: g.topSlot(), Imm: 1})
		g.popTemp()
	}
	g.resolveLabels()

	fn := g.fn
	g.fn, g.temp, g.labelPos, g.nextLabel, g.loops = prevFn, prevTemp, prevLabels, prevNextLabel, prevLoops
	return fn, nil
}

// --- temp stack ---

func (g *Generator) pushTemp() uint16 {
	slot := uint16(g.fn.NumLocals + g.temp)
	g.temp++
	if g.temp > g.fn.NumTemps {
		g.fn.NumTemps = g.temp
	}
	return slot
}

func (g *Generator) popTemp() {
	g.temp--
}

func (g *Generator) topSlot() uint16 {
	return uint16(g.fn.NumLocals + g.temp - 1)
}

// --- labels ---

func (g *Generator) newLabel() int {
	id := g.nextLabel
	g.nextLabel++
	return id
}

func (g *Generator) bindLabel(id int) {
	g.labelPos[id] = len(g.fn.Code)
}

func (g *Generator) emit(i Instr) int {
	g.fn.Code = append(g.fn.Code, i)
	return len(g.fn.Code) - 1
}

func labelImm(id int) int64 { return -(int64(id) + 1) }

func (g *Generator) resolveLabels() {
	for i := range g.fn.Code {
		ins := &g.fn.Code[i]
		switch ins.Op {
		case OpJmp, OpJmpIfFalse, OpPushHandler:
			if ins.Imm < 0 {
				id := int(-(ins.Imm + 1))
				ins.Imm = int64(g.labelPos[id])
			}
		}
	}
}

// --- statements ---

// genStmt generates one statement and reports whether it left a value
// on the temp stack. isLast is not consulted: an ExprStmt always leaves
// its value, and the caller pops it when it is not needed.
func (g *Generator) genStmt(s ast.Stmt, isLast bool) (leftTemp bool, err error) {
	switch st := s.(type) {
	case *ast.ExprStmt:
		if _, err := g.genExpr(st.X, nil); err != nil {
			return false, err
		}
		return true, nil
	case *ast.ReturnStmt:
		if st.Value == nil {
			g.emit(Instr{Op: OpReturn, Imm: 0})
			return false, nil
		}
		if _, err := g.genExpr(st.Value, nil); err != nil {
			return false, err
		}
		g.emit(Instr{Op: OpReturn, A: g.topSlot(), Imm: 1})
		g.popTemp()
		return false, nil
	case *ast.BreakStmt:
		return false, g.genBreak(st)
	case *ast.MethodDefStmt:
		return false, g.genMethodDef(st)
	default:
		return false, &runtime.UnimplementedError{Detail: "statement kind"}
	}
}

func (g *Generator) genMethodDef(m *ast.MethodDefStmt) error {
	// Redefining an existing name keeps its FuncId (spec.md §9):
	// Replace resets the entry's bytecode/JIT state in place so a
	// stale compiled entry can never be reached under the new body.
	// A never-before-seen name mints a fresh id as usual.
	var id FuncId
	if existing, ok := g.table.Lookup(m.Name); ok && g.table.Entry(existing).Kind == KindNormal {
		id = existing
		g.table.Replace(id, m.Params, m.Body)
	} else {
		id = g.table.DeclareNormal(m.Name, m.Params, m.Body)
	}
	g.worklist = append(g.worklist, id)
	g.emit(Instr{Op: OpMethodDef, Name: m.Name, Imm: int64(id)})
	return nil
}

func (g *Generator) genBreak(b *ast.BreakStmt) error {
	if len(g.loops) == 0 {
		return &runtime.UnimplementedError{Detail: "break outside while"}
	}
	lp := g.loops[len(g.loops)-1]
	if b.Value != nil {
		if _, err := g.genExpr(b.Value, nil); err != nil {
			return err
		}
		g.emit(Instr{Op: OpMove, Dst: lp.resultSlot, A: g.topSlot()})
		g.popTemp()
	} else if lp.wantValue {
		g.emit(Instr{Op: OpLoadNil, Dst: lp.resultSlot})
	}
	g.emit(Instr{Op: OpJmp, Imm: labelImm(lp.breakLabel)})
	return nil
}

// genBlock generates a statement list in "discard all" style (used for
// while bodies, where the whole block is evaluated purely for effect).
func (g *Generator) genBlock(stmts []ast.Stmt) error {
	for _, s := range stmts {
		left, err := g.genStmt(s, false)
		if err != nil {
			return err
		}
		if left {
			g.popTemp()
		}
	}
	return nil
}

// genValueBlock generates a statement list where the last statement's
// expression value, if any, is left on the temp stack. Returns whether
// a value was left.
func (g *Generator) genValueBlock(stmts []ast.Stmt) (bool, error) {
	for i, s := range stmts {
		last := i == len(stmts)-1
		left, err := g.genStmt(s, last)
		if err != nil {
			return false, err
		}
		if !last && left {
			g.popTemp()
		}
		if last {
			return left, nil
		}
	}
	return false, nil
}

// --- expressions ---

// genExpr generates e. If dst is non-nil the result is written there
// in place (no temp is pushed); otherwise a fresh temp is pushed and
// its slot returned.
func (g *Generator) genExpr(e ast.Expr, dst *uint16) (uint16, error) {
	switch ex := e.(type) {
	case *ast.NilLit:
		return g.writeResult(dst, Instr{Op: OpLoadNil})
	case *ast.BoolLit:
		imm := int64(0)
		if ex.Value {
			imm = 1
		}
		return g.writeResult(dst, Instr{Op: OpLoadBool, Imm: imm})
	case *ast.IntLit:
		if ex.Value >= -(1<<31) && ex.Value < (1<<31) {
			return g.writeResult(dst, Instr{Op: OpLoadInt, Imm: ex.Value})
		}
		idx := g.addConst(runtime.Int(ex.Value))
		return g.writeResult(dst, Instr{Op: OpLoadConst, Imm: int64(idx)})
	case *ast.FloatLit:
		idx := g.addConst(runtime.Float(ex.Value))
		return g.writeResult(dst, Instr{Op: OpLoadConst, Imm: int64(idx)})
	case *ast.StrLit:
		idx := g.addConst(runtime.NewString(ex.Value))
		return g.writeResult(dst, Instr{Op: OpLoadConst, Imm: int64(idx)})
	case *ast.SymbolLit:
		idx := g.addConst(runtime.Symbol(g.internSymbol(ex.Name)))
		return g.writeResult(dst, Instr{Op: OpLoadConst, Imm: int64(idx)})
	case *ast.Ident:
		slot, ok := g.fn.LocalNames[ex.Name]
		if !ok {
			return 0, &runtime.UndefinedLocalError{Name: ex.Name}
		}
		// Always materialize into a destination so every genExpr(e, nil)
		// call pushes exactly one temp, keeping the stack-discipline
		// invariant uniform for callers that pop after use.
		return g.writeResult(dst, Instr{Op: OpMove, A: slot})
	case *ast.UnaryExpr:
		return g.genUnary(ex, dst)
	case *ast.BinaryExpr:
		return g.genBinary(ex, dst)
	case *ast.AssignExpr:
		return g.genAssign(ex, dst)
	case *ast.MultiAssignExpr:
		return g.genMultiAssign(ex, dst)
	case *ast.CallExpr:
		return g.genCall(ex, dst)
	case *ast.IfExpr:
		return g.genIf(ex, dst)
	case *ast.WhileExpr:
		return g.genWhile(ex, dst)
	case *ast.BeginRescueExpr:
		return g.genBeginRescue(ex, dst)
	default:
		return 0, &runtime.UnimplementedError{Detail: "expression kind"}
	}
}

func (g *Generator) writeResult(dst *uint16, i Instr) (uint16, error) {
	if dst != nil {
		i.Dst = *dst
		g.emit(i)
		return *dst, nil
	}
	slot := g.pushTemp()
	i.Dst = slot
	g.emit(i)
	return slot, nil
}

func (g *Generator) addConst(v runtime.Value) int {
	g.fn.Consts = append(g.fn.Consts, v)
	return len(g.fn.Consts) - 1
}

func (g *Generator) internSymbol(name string) uint32 {
	if id, ok := g.symbols[name]; ok {
		return id
	}
	id := g.nextSym
	g.nextSym++
	g.symbols[name] = id
	return id
}

func (g *Generator) genUnary(u *ast.UnaryExpr, dst *uint16) (uint16, error) {
	if lit, ok := u.Operand.(*ast.IntLit); ok && !u.Not {
		return g.genExpr(&ast.IntLit{Value: -lit.Value}, dst)
	}
	if lit, ok := u.Operand.(*ast.FloatLit); ok && !u.Not {
		return g.genExpr(&ast.FloatLit{Value: -lit.Value}, dst)
	}
	a, err := g.genExpr(u.Operand, nil)
	if err != nil {
		return 0, err
	}
	op := OpNeg
	if u.Not {
		op = OpNot
	}
	g.popTemp()
	return g.writeResult(dst, Instr{Op: op, A: a})
}

var cmpOp = map[ast.BinOp]Op{
	ast.OpEq: OpCmpEq, ast.OpNe: OpCmpNe,
	ast.OpGt: OpCmpGt, ast.OpGe: OpCmpGe,
	ast.OpLt: OpCmpLt, ast.OpLe: OpCmpLe,
}

var arithOp = map[ast.BinOp]Op{
	ast.OpAdd: OpAdd, ast.OpSub: OpSub, ast.OpMul: OpMul,
	ast.OpDiv: OpDiv, ast.OpMod: OpMod,
	ast.OpBitAnd: OpBitAnd, ast.OpBitOr: OpBitOr, ast.OpBitXor: OpBitXor,
	ast.OpLShift: OpShl, ast.OpRShift: OpShr,
}

const shortImmMax = 1<<15 - 1
const shortImmMin = -(1 << 15)

func (g *Generator) genBinary(b *ast.BinaryExpr, dst *uint16) (uint16, error) {
	if utils.Any(b.Op, ast.OpAnd, ast.OpOr) {
		return g.genLogical(b, dst)
	}

	if lit, ok := b.Right.(*ast.IntLit); ok && lit.Value >= shortImmMin && lit.Value <= shortImmMax {
		if op, ok := map[ast.BinOp]Op{ast.OpAdd: OpAddRI, ast.OpSub: OpSubRI, ast.OpEq: OpCmpEqRI, ast.OpLt: OpCmpLtRI, ast.OpGt: OpCmpGtRI}[b.Op]; ok {
			a, err := g.genExpr(b.Left, nil)
			if err != nil {
				return 0, err
			}
			g.popTemp()
			return g.writeResult(dst, Instr{Op: op, A: a, Imm: lit.Value})
		}
	}

	a, err := g.genExpr(b.Left, nil)
	if err != nil {
		return 0, err
	}
	bSlot, err := g.genExpr(b.Right, nil)
	if err != nil {
		return 0, err
	}
	g.popTemp()
	g.popTemp()

	if op, ok := cmpOp[b.Op]; ok {
		return g.writeResult(dst, Instr{Op: op, A: a, B: bSlot})
	}
	op, ok := arithOp[b.Op]
	if !ok {
		return 0, &runtime.UnimplementedError{Detail: "binary operator " + b.Op.String()}
	}
	return g.writeResult(dst, Instr{Op: op, A: a, B: bSlot})
}

// genLogical implements short-circuit && / ||.
func (g *Generator) genLogical(b *ast.BinaryExpr, dst *uint16) (uint16, error) {
	result, err := g.genExpr(b.Left, dst)
	if err != nil {
		return 0, err
	}
	doneLabel := g.newLabel()
	if b.Op == ast.OpAnd {
		g.emit(Instr{Op: OpJmpIfFalse, A: result, Imm: labelImm(doneLabel)})
	} else {
		notResult := g.pushTemp()
		g.emit(Instr{Op: OpNot, Dst: notResult, A: result})
		g.emit(Instr{Op: OpJmpIfFalse, A: notResult, Imm: labelImm(doneLabel)})
		g.popTemp()
	}
	rp := result
	if _, err := g.genExpr(b.Right, &rp); err != nil {
		return 0, err
	}
	g.bindLabel(doneLabel)
	return result, nil
}

func (g *Generator) genAssign(a *ast.AssignExpr, dst *uint16) (uint16, error) {
	ident, ok := a.Left.(*ast.Ident)
	if !ok {
		return 0, &runtime.UnimplementedError{Detail: "non-identifier assignment target"}
	}
	slot, ok := g.fn.LocalNames[ident.Name]
	if !ok {
		slot = uint16(g.fn.NumLocals)
		g.fn.LocalNames[ident.Name] = slot
		g.fn.NumLocals++
	}
	right := a.Right
	if a.Compound != ast.CompoundNone {
		right = &ast.BinaryExpr{Op: a.Compound.BinOp(), Left: ident, Right: a.Right}
	}
	if _, err := g.genExpr(right, &slot); err != nil {
		return 0, err
	}
	if dst != nil && *dst != slot {
		g.emit(Instr{Op: OpMove, Dst: *dst, A: slot})
		return *dst, nil
	}
	if dst == nil {
		return g.writeResult(nil, Instr{Op: OpMove, A: slot})
	}
	return slot, nil
}

func (g *Generator) genMultiAssign(m *ast.MultiAssignExpr, dst *uint16) (uint16, error) {
	if len(m.Lefts) != len(m.Rights) {
		return 0, &runtime.UnimplementedError{Detail: "multi-assign arity mismatch"}
	}
	slots := make([]uint16, len(m.Rights))
	for i, r := range m.Rights {
		s, err := g.genExpr(r, nil)
		if err != nil {
			return 0, err
		}
		slots[i] = s
	}
	for i := len(m.Lefts) - 1; i >= 0; i-- {
		ident, ok := m.Lefts[i].(*ast.Ident)
		if !ok {
			return 0, &runtime.UnimplementedError{Detail: "non-identifier multi-assign target"}
		}
		lslot, ok := g.fn.LocalNames[ident.Name]
		if !ok {
			lslot = uint16(g.fn.NumLocals)
			g.fn.LocalNames[ident.Name] = lslot
			g.fn.NumLocals++
		}
		g.emit(Instr{Op: OpMove, Dst: lslot, A: slots[i]})
		g.popTemp()
	}
	if dst != nil {
		g.emit(Instr{Op: OpLoadNil, Dst: *dst})
		return *dst, nil
	}
	return g.pushTemp(), nil
}

func (g *Generator) genCall(c *ast.CallExpr, dst *uint16) (uint16, error) {
	id, ok := g.table.Lookup(c.Name)
	if !ok {
		return 0, &runtime.NoMethodError{Name: c.Name}
	}
	selfSlot := g.pushTemp()
	if c.Receiver != nil {
		if _, err := g.genExpr(c.Receiver, &selfSlot); err != nil {
			return 0, err
		}
	} else {
		g.emit(Instr{Op: OpLoadNil, Dst: selfSlot})
	}
	for _, arg := range c.Args {
		if _, err := g.genExpr(arg, nil); err != nil {
			return 0, err
		}
	}
	argCount := len(c.Args) + 1
	for i := 0; i < argCount; i++ {
		g.popTemp()
	}
	d := dst
	if d == nil {
		slot := g.pushTemp()
		d = &slot
	}
	g.emit(Instr{Op: OpCall, Dst: *d, Imm: int64(id), A: selfSlot, B: uint16(argCount)})
	return *d, nil
}

func (g *Generator) genIf(ifx *ast.IfExpr, dst *uint16) (uint16, error) {
	cond, err := g.genExpr(ifx.Cond, nil)
	if err != nil {
		return 0, err
	}
	elseLabel := g.newLabel()
	joinLabel := g.newLabel()
	g.emit(Instr{Op: OpJmpIfFalse, A: cond, Imm: labelImm(elseLabel)})
	g.popTemp()

	result := dst
	var resultSlot uint16
	if result == nil {
		resultSlot = g.pushTemp()
		result = &resultSlot
	}

	left, err := g.genValueBlock(ifx.Then)
	if err != nil {
		return 0, err
	}
	if left {
		g.emit(Instr{Op: OpMove, Dst: *result, A: g.topSlot()})
		g.popTemp()
	} else {
		g.emit(Instr{Op: OpLoadNil, Dst: *result})
	}
	g.emit(Instr{Op: OpJmp, Imm: labelImm(joinLabel)})
	g.bindLabel(elseLabel)
	if ifx.Else != nil {
		left, err = g.genValueBlock(ifx.Else)
		if err != nil {
			return 0, err
		}
		if left {
			g.emit(Instr{Op: OpMove, Dst: *result, A: g.topSlot()})
			g.popTemp()
		} else {
			g.emit(Instr{Op: OpLoadNil, Dst: *result})
		}
	} else {
		g.emit(Instr{Op: OpLoadNil, Dst: *result})
	}
	g.bindLabel(joinLabel)
	return *result, nil
}

func (g *Generator) genWhile(w *ast.WhileExpr, dst *uint16) (uint16, error) {
	result := dst
	var resultSlot uint16
	if result == nil {
		resultSlot = g.pushTemp()
		result = &resultSlot
	}
	g.emit(Instr{Op: OpLoadNil, Dst: *result})

	condLabel := g.newLabel()
	endLabel := g.newLabel()
	g.loops = append(g.loops, loopCtx{breakLabel: endLabel, resultSlot: *result, wantValue: true})

	g.bindLabel(condLabel)
	cond, err := g.genExpr(w.Cond, nil)
	if err != nil {
		return 0, err
	}
	g.emit(Instr{Op: OpJmpIfFalse, A: cond, Imm: labelImm(endLabel)})
	g.popTemp()

	if err := g.genBlock(w.Body); err != nil {
		return 0, err
	}
	g.emit(Instr{Op: OpJmp, Imm: labelImm(condLabel)})
	g.bindLabel(endLabel)

	g.loops = g.loops[:len(g.loops)-1]
	return *result, nil
}

func (g *Generator) genBeginRescue(b *ast.BeginRescueExpr, dst *uint16) (uint16, error) {
	result := dst
	var resultSlot uint16
	if result == nil {
		resultSlot = g.pushTemp()
		result = &resultSlot
	}
	errSlot := g.pushTemp()
	handlerLabel := g.newLabel()
	joinLabel := g.newLabel()

	g.emit(Instr{Op: OpPushHandler, A: errSlot, Imm: labelImm(handlerLabel)})
	left, err := g.genValueBlock(b.Body)
	if err != nil {
		return 0, err
	}
	if left {
		g.emit(Instr{Op: OpMove, Dst: *result, A: g.topSlot()})
		g.popTemp()
	} else {
		g.emit(Instr{Op: OpLoadNil, Dst: *result})
	}
	g.emit(Instr{Op: OpPopHandler})
	g.emit(Instr{Op: OpJmp, Imm: labelImm(joinLabel)})

	g.bindLabel(handlerLabel)
	if b.RescueName != "" {
		slot, ok := g.fn.LocalNames[b.RescueName]
		if !ok {
			slot = uint16(g.fn.NumLocals)
			g.fn.LocalNames[b.RescueName] = slot
			g.fn.NumLocals++
		}
		g.emit(Instr{Op: OpMove, Dst: slot, A: errSlot})
	}
	left, err = g.genValueBlock(b.Rescue)
	if err != nil {
		return 0, err
	}
	if left {
		g.emit(Instr{Op: OpMove, Dst: *result, A: g.topSlot()})
		g.popTemp()
	} else {
		g.emit(Instr{Op: OpLoadNil, Dst: *result})
	}
	g.bindLabel(joinLabel)
	g.popTemp() // errSlot
	return *result, nil
}
