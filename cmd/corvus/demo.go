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

package main

import "corvus/ast"

// demoPrograms builds the hand-constructed ASTs the CLI can run by
// name. The source lexer/parser is an external collaborator this
// module never implements (spec.md line 13), so the CLI has no way to
// turn arbitrary source text into an ast.Program; these are the
// fixture programs that stand in for "a file on disk" until a parser
// exists, exercising the same AST -> bytecode -> two-tier-driver path
// a real front end would feed.
var demoPrograms = map[string]func() *ast.Program{
	"fib":  fibDemo,
	"fact": factDemo,
	"sum":  sumDemo,
}

func ident(n string) *ast.Ident { return &ast.Ident{Name: n} }

// fib(x) = x < 2 ? x : fib(x-1) + fib(x-2), called on 28.
func fibDemo() *ast.Program {
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
	return &ast.Program{Stmts: []ast.Stmt{
		&ast.MethodDefStmt{Name: "fib", Params: []string{"x"}, Body: body},
		&ast.ExprStmt{X: &ast.CallExpr{Name: "fib", Args: []ast.Expr{&ast.IntLit{Value: 28}}}},
	}}
}

// fact(x) = x < 2 ? 1 : x * fact(x-1), called on 15.
func factDemo() *ast.Program {
	body := []ast.Stmt{
		&ast.ExprStmt{X: &ast.IfExpr{
			Cond: &ast.BinaryExpr{Op: ast.OpLt, Left: ident("x"), Right: &ast.IntLit{Value: 2}},
			Then: []ast.Stmt{&ast.ExprStmt{X: &ast.IntLit{Value: 1}}},
			Else: []ast.Stmt{&ast.ExprStmt{X: &ast.BinaryExpr{
				Op:   ast.OpMul,
				Left: ident("x"),
				Right: &ast.CallExpr{Name: "fact", Args: []ast.Expr{
					&ast.BinaryExpr{Op: ast.OpSub, Left: ident("x"), Right: &ast.IntLit{Value: 1}}}},
			}}},
		}},
	}
	return &ast.Program{Stmts: []ast.Stmt{
		&ast.MethodDefStmt{Name: "fact", Params: []string{"x"}, Body: body},
		&ast.ExprStmt{X: &ast.CallExpr{Name: "fact", Args: []ast.Expr{&ast.IntLit{Value: 15}}}},
	}}
}

// sum(x) = x < 1 ? 0 : x + sum(x-1), called on 100000 — deep enough
// recursion to make the JIT-vs-interpreter speed difference visible.
func sumDemo() *ast.Program {
	body := []ast.Stmt{
		&ast.ExprStmt{X: &ast.IfExpr{
			Cond: &ast.BinaryExpr{Op: ast.OpLt, Left: ident("x"), Right: &ast.IntLit{Value: 1}},
			Then: []ast.Stmt{&ast.ExprStmt{X: &ast.IntLit{Value: 0}}},
			Else: []ast.Stmt{&ast.ExprStmt{X: &ast.BinaryExpr{
				Op:   ast.OpAdd,
				Left: ident("x"),
				Right: &ast.CallExpr{Name: "sum", Args: []ast.Expr{
					&ast.BinaryExpr{Op: ast.OpSub, Left: ident("x"), Right: &ast.IntLit{Value: 1}}}},
			}}},
		}},
	}
	return &ast.Program{Stmts: []ast.Stmt{
		&ast.MethodDefStmt{Name: "sum", Params: []string{"x"}, Body: body},
		&ast.ExprStmt{X: &ast.CallExpr{Name: "sum", Args: []ast.Expr{&ast.IntLit{Value: 100000}}}},
	}}
}
