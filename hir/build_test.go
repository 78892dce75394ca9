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
	"testing"

	"github.com/stretchr/testify/require"

	"corvus/ast"
	"corvus/runtime"
)

func ident(n string) *ast.Ident { return &ast.Ident{Name: n} }

// def fib(x); if x<3 then 1 else fib(x-1)+fib(x-2) end; end
func TestBuildFibonacciIsAllInteger(t *testing.T) {
	body := []ast.Stmt{
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
	f, err := Build("fib", []string{"x"}, []Type{Integer}, body, 7, Integer)
	require.NoError(t, err)
	require.Equal(t, Integer, f.ReturnType)
	require.True(t, f.NumRegs() > 0)
}

// 2 + 1.5 — mixed Integer/Float promotes through IntAsFloat.
func TestBuildMixedIntFloatPromotes(t *testing.T) {
	body := []ast.Stmt{
		&ast.ReturnStmt{Value: &ast.BinaryExpr{
			Op:    ast.OpAdd,
			Left:  &ast.IntLit{Value: 2},
			Right: &ast.FloatLit{Value: 1.5},
		}},
	}
	f, err := Build("mix", nil, nil, body, 0, TypeInvalid)
	require.NoError(t, err)
	require.Equal(t, Float, f.ReturnType)

	var sawCast bool
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			if i.Op == OpIntAsFloat {
				sawCast = true
			}
		}
	}
	require.True(t, sawCast, "expected an IntAsFloat cast inserted by the promotion table")
}

// a=1; while a<10 do a=a+1 end — supported only in discarded-value form.
func TestBuildWhileDiscardedIsFine(t *testing.T) {
	body := []ast.Stmt{
		&ast.ExprStmt{X: &ast.AssignExpr{Left: ident("a"), Right: &ast.IntLit{Value: 1}}},
		&ast.ExprStmt{X: &ast.WhileExpr{
			Cond: &ast.BinaryExpr{Op: ast.OpLt, Left: ident("a"), Right: &ast.IntLit{Value: 10}},
			Body: []ast.Stmt{&ast.ExprStmt{X: &ast.AssignExpr{Left: ident("a"), Right: &ast.BinaryExpr{Op: ast.OpAdd, Left: ident("a"), Right: &ast.IntLit{Value: 1}}}}},
		}},
		&ast.ReturnStmt{Value: ident("a")},
	}
	f, err := Build("loop", nil, nil, body, 0, TypeInvalid)
	require.NoError(t, err)
	require.Equal(t, Integer, f.ReturnType)
}

func TestBuildUndefinedLocalBailsWithUndefinedLocalError(t *testing.T) {
	body := []ast.Stmt{&ast.ReturnStmt{Value: ident("nope")}}
	_, err := Build("f", nil, nil, body, 0, TypeInvalid)
	require.Error(t, err)
	var undef *runtime.UndefinedLocalError
	require.ErrorAs(t, err, &undef)
}

func TestBuildIfArmTypeMismatchBails(t *testing.T) {
	body := []ast.Stmt{
		&ast.ReturnStmt{Value: &ast.IfExpr{
			Cond: &ast.BinaryExpr{Op: ast.OpEq, Left: &ast.IntLit{Value: 1}, Right: &ast.IntLit{Value: 1}},
			Then: []ast.Stmt{&ast.ExprStmt{X: &ast.IntLit{Value: 1}}},
			Else: []ast.Stmt{&ast.ExprStmt{X: &ast.BoolLit{Value: true}}},
		}},
	}
	_, err := Build("f", nil, nil, body, 0, TypeInvalid)
	require.Error(t, err)
	var un *runtime.UnimplementedError
	require.ErrorAs(t, err, &un)
}
