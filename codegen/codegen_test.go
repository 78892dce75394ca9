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

package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"corvus/ast"
	"corvus/hir"
	"corvus/mir"
)

func ident(n string) *ast.Ident { return &ast.Ident{Name: n} }

func compileBody(t *testing.T, name string, params []string, paramTypes []hir.Type, body []ast.Stmt, selfId uint32, retType hir.Type) *Compiled {
	t.Helper()
	hf, err := hir.Build(name, params, paramTypes, body, selfId, retType)
	require.NoError(t, err)
	mf, err := mir.Lower(hf, len(params))
	require.NoError(t, err)
	c, err := Compile(mf, selfId)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Release() })
	return c
}

func TestCompileIdentityReturnsItsArgument(t *testing.T) {
	body := []ast.Stmt{&ast.ReturnStmt{Value: ident("x")}}
	c := compileBody(t, "ident", []string{"x"}, []hir.Type{hir.Integer}, body, 1, hir.Integer)
	require.Equal(t, hir.Integer, c.ReturnType)
	require.EqualValues(t, 41, c.CallInt1(41))
}

func TestCompileAddsConstantToArgument(t *testing.T) {
	body := []ast.Stmt{&ast.ReturnStmt{Value: &ast.BinaryExpr{
		Op: ast.OpAdd, Left: ident("x"), Right: &ast.IntLit{Value: 1},
	}}}
	c := compileBody(t, "inc", []string{"x"}, []hir.Type{hir.Integer}, body, 2, hir.Integer)
	require.EqualValues(t, 5, c.CallInt1(4))
	require.EqualValues(t, 0, c.CallInt1(-1))
}

func TestCompileFibonacciSelfRecursion(t *testing.T) {
	body := []ast.Stmt{
		&ast.ExprStmt{X: &ast.IfExpr{
			Cond: &ast.BinaryExpr{Op: ast.OpLt, Left: ident("x"), Right: &ast.IntLit{Value: 2}},
			Then: []ast.Stmt{&ast.ExprStmt{X: ident("x")}},
			Else: []ast.Stmt{&ast.ExprStmt{X: &ast.BinaryExpr{
				Op: ast.OpAdd,
				Left: &ast.CallExpr{Name: "fib", Args: []ast.Expr{
					&ast.BinaryExpr{Op: ast.OpSub, Left: ident("x"), Right: &ast.IntLit{Value: 1}}}},
				Right: &ast.CallExpr{Name: "fib", Args: []ast.Expr{
					&ast.BinaryExpr{Op: ast.OpSub, Left: ident("x"), Right: &ast.IntLit{Value: 2}}}},
			}}},
		}},
	}
	c := compileBody(t, "fib", []string{"x"}, []hir.Type{hir.Integer}, body, 3, hir.Integer)
	require.EqualValues(t, 55, c.CallInt1(10))
}

// floatCompareBody builds `if lhs OP rhs { 1 } else { 0 }` over two
// float literals, so the comparison itself runs through OpFCmpJmp
// (ucomisd + Jcc) without needing a float-typed function argument.
func floatCompareBody(op ast.BinOp, lhs, rhs float64) []ast.Stmt {
	return []ast.Stmt{&ast.ExprStmt{X: &ast.IfExpr{
		Cond: &ast.BinaryExpr{Op: op, Left: &ast.FloatLit{Value: lhs}, Right: &ast.FloatLit{Value: rhs}},
		Then: []ast.Stmt{&ast.ExprStmt{X: &ast.IntLit{Value: 1}}},
		Else: []ast.Stmt{&ast.ExprStmt{X: &ast.IntLit{Value: 0}}},
	}}}
}

func TestCompileFloatLessThanUsesUnsignedConditionCodes(t *testing.T) {
	// ucomisd clears SF/OF unconditionally, so Gt/Ge/Lt/Le must be
	// lowered with the unsigned SETA/SETAE/SETB/SETBE (and JA/JAE/JB/
	// JBE) family rather than reusing the signed codes integer cmp
	// relies on. A regression back to the signed table makes every one
	// of these comparisons return the wrong boolean.
	lt := compileBody(t, "lt_true", nil, nil, floatCompareBody(ast.OpLt, 1.5, 2.5), 4, hir.Integer)
	require.EqualValues(t, 1, lt.CallInt0())

	ge := compileBody(t, "lt_false", nil, nil, floatCompareBody(ast.OpLt, 3.5, 2.5), 5, hir.Integer)
	require.EqualValues(t, 0, ge.CallInt0())
}

func TestCompileFloatGreaterThanUsesUnsignedConditionCodes(t *testing.T) {
	gt := compileBody(t, "gt_false", nil, nil, floatCompareBody(ast.OpGt, 1.5, 2.5), 6, hir.Integer)
	require.EqualValues(t, 0, gt.CallInt0())

	gtTrue := compileBody(t, "gt_true", nil, nil, floatCompareBody(ast.OpGt, 3.5, 2.5), 7, hir.Integer)
	require.EqualValues(t, 1, gtTrue.CallInt0())
}

func TestCompileRejectsNonSelfCall(t *testing.T) {
	body := []ast.Stmt{&ast.ReturnStmt{Value: &ast.CallExpr{Name: "other", Args: nil}}}
	hf, err := hir.Build("caller", nil, nil, body, 9, hir.Integer)
	// HIR itself already refuses to compile a call to anything but its
	// own FuncId, which is the scope cut that keeps codegen's Compile
	// from ever having to resolve an external call target.
	require.Error(t, err)
	require.Nil(t, hf)
}
