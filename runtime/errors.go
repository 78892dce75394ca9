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

package runtime

import "fmt"

// Error kinds named in spec.md §7. These are ordinary Go errors, not
// panics: bytecode generation and HIR construction must be able to
// recover from Unimplemented/UndefinedLocal by falling back to the
// interpreter (SPEC_FULL.md's Assert/Unimplement split).

// UnimplementedError reports an AST shape not yet supported by
// bytecode generation or HIR construction.
type UnimplementedError struct {
	Detail string
}

func (e *UnimplementedError) Error() string {
	return fmt.Sprintf("unimplemented: %s", e.Detail)
}

// UndefinedLocalError reports a reference to a local that was never
// bound in the current function.
type UndefinedLocalError struct {
	Name string
}

func (e *UndefinedLocalError) Error() string {
	return fmt.Sprintf("undefined local: %s", e.Name)
}

// SyntaxErrorKind reports a parse failure. The parser itself is out of
// scope (spec.md §1); this type exists so the driver can propagate one
// uniformly if the external parser returns it.
type SyntaxErrorKind struct {
	Msg string
}

func (e *SyntaxErrorKind) Error() string { return "syntax error: " + e.Msg }

// TypeError is raised when a generic operator is applied to operand
// kinds that have no defined result (spec.md §7: "future work should
// surface it as a TypeError" — SPEC_FULL.md implements this now rather
// than leaving it future work).
type TypeError struct {
	Op          string
	Left, Right Kind
}

func (e *TypeError) Error() string {
	if e.Right == Kind(-1) {
		return fmt.Sprintf("TypeError: %s not defined for %s", e.Op, e.Left)
	}
	return fmt.Sprintf("TypeError: %s not defined between %s and %s", e.Op, e.Left, e.Right)
}

// NoMethodError is raised at call resolution when the callee
// identifier has no bound FuncId.
type NoMethodError struct {
	Name string
}

func (e *NoMethodError) Error() string {
	return fmt.Sprintf("NoMethodError: undefined method %q", e.Name)
}
