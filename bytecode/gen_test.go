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
	"testing"

	"github.com/stretchr/testify/require"

	"corvus/ast"
	"corvus/runtime"
)

func ident(n string) *ast.Ident { return &ast.Ident{Name: n} }

func runProgram(t *testing.T, prog *ast.Program) runtime.Value {
	t.Helper()
	table, err := Generate(prog)
	require.NoError(t, err)
	interp := NewInterp(table)
	v, err := interp.Run(table.Entry(MainFuncId).Bytecode, []runtime.Value{runtime.Nil})
	require.NoError(t, err)
	return v
}

// a=55; a=a/5; a
func TestScenarioDivThenReturnInteger(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Stmt{
		&ast.ExprStmt{X: &ast.AssignExpr{Left: ident("a"), Right: &ast.IntLit{Value: 55}}},
		&ast.ExprStmt{X: &ast.AssignExpr{Left: ident("a"), Right: &ast.BinaryExpr{Op: ast.OpDiv, Left: ident("a"), Right: &ast.IntLit{Value: 5}}}},
		&ast.ExprStmt{X: ident("a")},
	}}
	v := runProgram(t, prog)
	require.Equal(t, runtime.KindInt, v.Kind())
	require.Equal(t, int64(11), v.AsInt())
}

// def fib(x); if x<3 then 1 else fib(x-1)+fib(x-2) end; end; fib(24)
func TestScenarioFibonacci(t *testing.T) {
	fibBody := []ast.Stmt{
		&ast.ExprStmt{X: &ast.IfExpr{
			Cond: &ast.BinaryExpr{Op: ast.OpLt, Left: ident("x"), Right: &ast.IntLit{Value: 3}},
			Then: []ast.Stmt{&ast.ExprStmt{X: &ast.IntLit{Value: 1}}},
			Else: []ast.Stmt{&ast.ExprStmt{X: &ast.BinaryExpr{
				Op: ast.OpAdd,
				Left: &ast.CallExpr{Name: "fib", Args: []ast.Expr{
					&ast.BinaryExpr{Op: ast.OpSub, Left: ident("x"), Right: &ast.IntLit{Value: 1}}}},
				Right: &ast.CallExpr{Name: "fib", Args: []ast.Expr{
					&ast.BinaryExpr{Op: ast.OpSub, Left: ident("x"), Right: &ast.IntLit{Value: 2}}}},
			}}},
		}},
	}
	prog := &ast.Program{Stmts: []ast.Stmt{
		&ast.MethodDefStmt{Name: "fib", Params: []string{"x"}, Body: fibBody},
		&ast.ExprStmt{X: &ast.CallExpr{Name: "fib", Args: []ast.Expr{&ast.IntLit{Value: 24}}}},
	}}
	v := runProgram(t, prog)
	require.Equal(t, runtime.KindInt, v.Kind())
	require.Equal(t, int64(46368), v.AsInt())
}

// a=1; while a<2500 do a=a+1 end; a
func TestScenarioWhileLoop(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Stmt{
		&ast.ExprStmt{X: &ast.AssignExpr{Left: ident("a"), Right: &ast.IntLit{Value: 1}}},
		&ast.ExprStmt{X: &ast.WhileExpr{
			Cond: &ast.BinaryExpr{Op: ast.OpLt, Left: ident("a"), Right: &ast.IntLit{Value: 2500}},
			Body: []ast.Stmt{&ast.ExprStmt{X: &ast.AssignExpr{Left: ident("a"), Right: &ast.BinaryExpr{Op: ast.OpAdd, Left: ident("a"), Right: &ast.IntLit{Value: 1}}}}},
		}},
		&ast.ExprStmt{X: ident("a")},
	}}
	v := runProgram(t, prog)
	require.Equal(t, int64(2500), v.AsInt())
}

// a=1; b=while a<2500 do a=a+1; if a==100 then break a end end; b
func TestScenarioBreakWithValue(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Stmt{
		&ast.ExprStmt{X: &ast.AssignExpr{Left: ident("a"), Right: &ast.IntLit{Value: 1}}},
		&ast.ExprStmt{X: &ast.AssignExpr{Left: ident("b"), Right: &ast.WhileExpr{
			Cond: &ast.BinaryExpr{Op: ast.OpLt, Left: ident("a"), Right: &ast.IntLit{Value: 2500}},
			Body: []ast.Stmt{
				&ast.ExprStmt{X: &ast.AssignExpr{Left: ident("a"), Right: &ast.BinaryExpr{Op: ast.OpAdd, Left: ident("a"), Right: &ast.IntLit{Value: 1}}}},
				&ast.ExprStmt{X: &ast.IfExpr{
					Cond: &ast.BinaryExpr{Op: ast.OpEq, Left: ident("a"), Right: &ast.IntLit{Value: 100}},
					Then: []ast.Stmt{&ast.BreakStmt{Value: ident("a")}},
				}},
			},
		}}},
		&ast.ExprStmt{X: ident("b")},
	}}
	v := runProgram(t, prog)
	require.Equal(t, int64(100), v.AsInt())
}

// Const=4; Const+=100; Const
func TestScenarioCompoundAssign(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Stmt{
		&ast.ExprStmt{X: &ast.AssignExpr{Left: ident("Const"), Right: &ast.IntLit{Value: 4}}},
		&ast.ExprStmt{X: &ast.AssignExpr{Left: ident("Const"), Right: &ast.IntLit{Value: 100}, Compound: ast.CompoundAdd}},
		&ast.ExprStmt{X: ident("Const")},
	}}
	v := runProgram(t, prog)
	require.Equal(t, int64(104), v.AsInt())
}

func TestUndefinedLocalIsError(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Stmt{&ast.ExprStmt{X: ident("nope")}}}
	_, err := Generate(prog)
	require.Error(t, err)
	var undef *runtime.UndefinedLocalError
	require.ErrorAs(t, err, &undef)
}
