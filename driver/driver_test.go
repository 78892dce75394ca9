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

package driver

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"corvus/ast"
	"corvus/bytecode"
	"corvus/runtime"
)

func ident(n string) *ast.Ident { return &ast.Ident{Name: n} }

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func fibBody() []ast.Stmt {
	return []ast.Stmt{
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
}

func fibProgram() *ast.Program {
	return &ast.Program{Stmts: []ast.Stmt{
		&ast.MethodDefStmt{Name: "fib", Params: []string{"x"}, Body: fibBody()},
		&ast.ExprStmt{X: &ast.CallExpr{Name: "fib", Args: []ast.Expr{&ast.IntLit{Value: 12}}}},
	}}
}

func TestDriverCompilesFibAndCachesTheJITEntry(t *testing.T) {
	table, err := bytecode.Generate(fibProgram())
	require.NoError(t, err)
	d := New(table, testLogger())
	t.Cleanup(d.Close)

	v, err := d.Interp.Run(table.Entry(bytecode.MainFuncId).Bytecode, []runtime.Value{runtime.Nil})
	require.NoError(t, err)
	require.Equal(t, runtime.KindInt, v.Kind())
	require.EqualValues(t, 144, v.AsInt())

	id, ok := table.Lookup("fib")
	require.True(t, ok)
	require.Equal(t, bytecode.Success, table.Entry(id).State)
}

func TestDriverDumpFlagsDoNotAffectResult(t *testing.T) {
	table, err := bytecode.Generate(fibProgram())
	require.NoError(t, err)
	d := New(table, testLogger())
	d.DumpHIR = true
	d.DumpMIR = true
	t.Cleanup(d.Close)

	v, err := d.Interp.Run(table.Entry(bytecode.MainFuncId).Bytecode, []runtime.Value{runtime.Nil})
	require.NoError(t, err)
	require.EqualValues(t, 144, v.AsInt())
}

func TestDriverFallsBackToInterpreterWhenJITDisabled(t *testing.T) {
	table, err := bytecode.Generate(fibProgram())
	require.NoError(t, err)
	d := New(table, testLogger())
	d.JITEnabled = false
	t.Cleanup(d.Close)

	v, err := d.Interp.Run(table.Entry(bytecode.MainFuncId).Bytecode, []runtime.Value{runtime.Nil})
	require.NoError(t, err)
	require.EqualValues(t, 144, v.AsInt())

	id, ok := table.Lookup("fib")
	require.True(t, ok)
	require.Equal(t, bytecode.Uncompiled, table.Entry(id).State)
}

func TestDriverFallsBackToInterpreterForMultiArgFunctions(t *testing.T) {
	// codegen's entry trampoline only has 0- and 1-argument forms
	// (CallInt0/CallInt1/CallFloat0/CallFloat1); a two-parameter
	// function must never reach Success, or its second argument
	// register is left uninitialized by the trampoline and the call
	// silently returns garbage instead of either a correct answer or a
	// documented fallback.
	prog := &ast.Program{Stmts: []ast.Stmt{
		&ast.MethodDefStmt{Name: "add", Params: []string{"a", "b"}, Body: []ast.Stmt{
			&ast.ReturnStmt{Value: &ast.BinaryExpr{Op: ast.OpAdd, Left: ident("a"), Right: ident("b")}},
		}},
		&ast.ExprStmt{X: &ast.CallExpr{Name: "add", Args: []ast.Expr{&ast.IntLit{Value: 3}, &ast.IntLit{Value: 4}}}},
	}}
	table, err := bytecode.Generate(prog)
	require.NoError(t, err)
	d := New(table, testLogger())
	t.Cleanup(d.Close)

	v, err := d.Interp.Run(table.Entry(bytecode.MainFuncId).Bytecode, []runtime.Value{runtime.Nil})
	require.NoError(t, err)
	require.EqualValues(t, 7, v.AsInt())

	id, ok := table.Lookup("add")
	require.True(t, ok)
	require.Equal(t, bytecode.Fail, table.Entry(id).State)
}

func TestDriverInvalidatesCompiledEntryOnRedefinition(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Stmt{
		&ast.MethodDefStmt{Name: "fib", Params: []string{"x"}, Body: fibBody()},
		&ast.ExprStmt{X: &ast.CallExpr{Name: "fib", Args: []ast.Expr{&ast.IntLit{Value: 10}}}},
		// Redefine fib to always return 0; same name, fresh body,
		// same FuncId per spec.md §9.
		&ast.MethodDefStmt{Name: "fib", Params: []string{"x"}, Body: []ast.Stmt{
			&ast.ReturnStmt{Value: &ast.IntLit{Value: 0}},
		}},
		&ast.ExprStmt{X: &ast.CallExpr{Name: "fib", Args: []ast.Expr{&ast.IntLit{Value: 10}}}},
	}}
	table, err := bytecode.Generate(prog)
	require.NoError(t, err)
	d := New(table, testLogger())
	t.Cleanup(d.Close)

	v, err := d.Interp.Run(table.Entry(bytecode.MainFuncId).Bytecode, []runtime.Value{runtime.Nil})
	require.NoError(t, err)
	require.EqualValues(t, 0, v.AsInt())
}
