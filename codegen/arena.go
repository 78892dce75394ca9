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

// Package codegen lowers MIR to x86-64 machine code and owns the
// executable memory arena generated functions live in (spec.md
// §4.5/§4.6). Unlike the teacher, which hands a textual assembly
// listing to an external assembler and links a native binary, this
// package is itself the assembler: it emits machine bytes directly
// into a page it mmaps and mprotects executable, which is the only
// way to get a JIT (as opposed to an ahead-of-time compiler) without
// shelling out to a toolchain at run time.
package codegen

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Arena is an append-only buffer of machine code that is finalized
// into one executable mapping. Once Finalize has run the arena is
// immutable (spec.md §5: "append-only within a finalization epoch").
type Arena struct {
	buf       []byte
	mem       []byte // the live mmap'd mapping, once finalized
	finalized bool

	relocs []relocation
}

type relocation struct {
	pos    int  // byte offset of the rel32 field
	target *int // byte offset of the jump/call target, filled in once known
}

// NewLabel returns a not-yet-placed label. Place binds it to the
// current write offset once that point in the instruction stream has
// actually been emitted; a label may be referenced by ReserveRel32
// before it is placed (a forward branch), since resolution happens at
// Finalize, after every label in the function is placed.
func (a *Arena) NewLabel() *int {
	v := -1
	return &v
}

// PlaceLabel binds l to the arena's current write offset.
func (a *Arena) PlaceLabel(l *int) { *l = a.Pos() }

// NewArena creates an empty, writable arena.
func NewArena() *Arena {
	return &Arena{}
}

// Pos reports the current write offset, used as a label for later
// branches/calls into code not yet emitted.
func (a *Arena) Pos() int { return len(a.buf) }

// EmitByte appends one machine code byte.
func (a *Arena) EmitByte(b byte) { a.buf = append(a.buf, b) }

// EmitBytes appends a byte sequence.
func (a *Arena) EmitBytes(bs ...byte) { a.buf = append(a.buf, bs...) }

// EmitInt32 appends a little-endian 32-bit immediate/displacement.
func (a *Arena) EmitInt32(v int32) {
	a.buf = append(a.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// EmitInt64 appends a little-endian 64-bit immediate.
func (a *Arena) EmitInt64(v int64) {
	for i := 0; i < 8; i++ {
		a.buf = append(a.buf, byte(v>>(8*i)))
	}
}

// ReserveRel32 emits a placeholder rel32 field and records a pending
// relocation resolved against target once it is known (spec.md §4.5
// "Label management" — deferred label resolution rather than a
// two-pass assembler).
func (a *Arena) ReserveRel32(target *int) {
	a.relocs = append(a.relocs, relocation{pos: len(a.buf), target: target})
	a.EmitInt32(0)
}

// Finalize copies the accumulated bytes into an mmap'd RW page,
// patches every pending rel32 relocation now that all label positions
// are known, then mprotects the page RX and returns the function's
// entry address as a uintptr. entryOffset is the byte offset within
// the arena where this function's code begins (the arena may pack
// more than one function's body).
func (a *Arena) Finalize(entryOffset int) (uintptr, error) {
	if a.finalized {
		return 0, fmt.Errorf("codegen: arena already finalized")
	}
	size := (len(a.buf) + unix.Getpagesize() - 1) &^ (unix.Getpagesize() - 1)
	if size == 0 {
		size = unix.Getpagesize()
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, fmt.Errorf("codegen: mmap: %w", err)
	}
	copy(mem, a.buf)

	for _, r := range a.relocs {
		if *r.target < 0 {
			return 0, fmt.Errorf("codegen: unresolved label referenced at offset %d", r.pos)
		}
		rel := int32(*r.target - (r.pos + 4))
		mem[r.pos] = byte(rel)
		mem[r.pos+1] = byte(rel >> 8)
		mem[r.pos+2] = byte(rel >> 16)
		mem[r.pos+3] = byte(rel >> 24)
	}

	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return 0, fmt.Errorf("codegen: mprotect: %w", err)
	}
	a.mem = mem
	a.finalized = true
	return uintptr(addrOf(mem)) + uintptr(entryOffset), nil
}

// Release unmaps a finalized arena's page. The driver calls this (via
// Compiled.Release) when a method redefinition evicts a function's
// compiled entry and, for every remaining entry, when it is closed.
func (a *Arena) Release() error {
	if !a.finalized {
		return nil
	}
	return unix.Munmap(a.mem)
}
