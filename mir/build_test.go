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

package mir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"corvus/ast"
	"corvus/hir"
)

func ident(n string) *ast.Ident { return &ast.Ident{Name: n} }

func everyBlockTerminated(t *testing.T, f *Func) {
	t.Helper()
	for _, b := range f.Blocks {
		require.NotEmpty(t, b.Instrs, "block %v has no instructions", b)
		last := b.Instrs[len(b.Instrs)-1].Op
		require.Contains(t, []Op{OpJmp, OpCondJmp, OpICmpJmp, OpFCmpJmp, OpReturn}, last,
			"block %v does not end with exactly one terminator", b)
	}
}

func TestLowerFibonacciFusesCompareAndBranch(t *testing.T) {
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
	hf, err := hir.Build("fib", []string{"x"}, []hir.Type{hir.Integer}, body, 7, hir.Integer)
	require.NoError(t, err)

	mf, err := Lower(hf, 1)
	require.NoError(t, err)
	require.Equal(t, hir.Integer, mf.ReturnType)
	everyBlockTerminated(t, mf)

	var sawFusedBranch, sawIn bool
	for _, b := range mf.Blocks {
		for _, i := range b.Instrs {
			if i.Op == OpICmpJmp {
				sawFusedBranch = true
			}
			if i.Op == OpIn {
				sawIn = true
			}
		}
	}
	require.True(t, sawFusedBranch, "expected the if-condition's compare to fuse into ICmpJmp")
	require.True(t, sawIn, "expected an In pseudo-op marking the parameter ABI boundary")
}

func TestLowerWhileLoopRecyclesVirtualRegisters(t *testing.T) {
	body := []ast.Stmt{
		&ast.ExprStmt{X: &ast.AssignExpr{Left: ident("a"), Right: &ast.IntLit{Value: 1}}},
		&ast.ExprStmt{X: &ast.WhileExpr{
			Cond: &ast.BinaryExpr{Op: ast.OpLt, Left: ident("a"), Right: &ast.IntLit{Value: 10}},
			Body: []ast.Stmt{&ast.ExprStmt{X: &ast.AssignExpr{Left: ident("a"), Right: &ast.BinaryExpr{Op: ast.OpAdd, Left: ident("a"), Right: &ast.IntLit{Value: 1}}}}},
		}},
		&ast.ReturnStmt{Value: ident("a")},
	}
	hf, err := hir.Build("loop", nil, nil, body, 0, hir.TypeInvalid)
	require.NoError(t, err)

	mf, err := Lower(hf, 1)
	require.NoError(t, err)
	everyBlockTerminated(t, mf)
	// A tight loop over one local should not need an unbounded number
	// of general-purpose virtual registers even though many HIR regs
	// are defined across its iterations' static (not dynamic) body.
	require.Less(t, mf.NumG, 10)
}
