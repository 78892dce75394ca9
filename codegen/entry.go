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

import "unsafe"

// CallInt1 invokes a compiled function of one integer argument that
// returns an integer, jumping straight into its machine code.
//
// This repurposes a Go func value as a thin trampoline into raw bytes:
// for a function using only integer arguments and an integer return,
// Go's ABI0 calling convention for a zero-method func value matches
// System V closely enough that the cast below reaches the generated
// prologue with arguments in the expected registers. It is the same
// trick several small from-scratch Go JIT projects use in place of a
// hand-written assembly trampoline, and it is why this code generator
// deliberately keeps to integer/float scalar arguments and a single
// scalar return rather than anything needing struct-passing rules.
func (c *Compiled) CallInt1(arg int64) int64 {
	fn := *(*func(int64) int64)(unsafe.Pointer(&c.Entry))
	return fn(arg)
}

// CallInt0 invokes a zero-argument compiled function returning an integer.
func (c *Compiled) CallInt0() int64 {
	fn := *(*func() int64)(unsafe.Pointer(&c.Entry))
	return fn()
}

// CallFloat1 invokes a compiled function of one integer argument that
// returns a float64.
func (c *Compiled) CallFloat1(arg int64) float64 {
	fn := *(*func(int64) float64)(unsafe.Pointer(&c.Entry))
	return fn(arg)
}

// CallFloat0 invokes a zero-argument compiled function returning a float64.
func (c *Compiled) CallFloat0() float64 {
	fn := *(*func() float64)(unsafe.Pointer(&c.Entry))
	return fn()
}
