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

// Package mir implements the machine IR (spec.md §3, §4.3): two
// virtual register classes (general G, float F), two-address fused
// arithmetic, explicit compare/branch, and typed return — the layer
// between HIR and the x86-64 code generator.
package mir

import (
	"fmt"

	"corvus/hir"
)

// Class is a virtual register's register class.
type Class int

const (
	GClass Class = iota
	FClass
)

func (c Class) String() string {
	if c == FClass {
		return "F"
	}
	return "G"
}

// VReg is an index within its Class's pool. The code generator maps
// it to a physical register or a stack spill slot (spec.md §4.5/§4.6).
type VReg struct {
	Class Class
	Index int
}

func (v VReg) String() string { return fmt.Sprintf("%v%d", v.Class, v.Index) }

// Op is an MIR instruction opcode.
type Op int

const (
	OpInvalid Op = iota
	OpIntImm
	OpFloatImm
	OpIAdd
	OpISub
	OpIMul
	OpIDiv
	OpIMod
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpICmp
	OpFCmp
	OpICmpJmp
	OpFCmpJmp
	OpCastIntFloat
	OpLocalLoad
	OpLocalStore
	OpJmp
	OpCondJmp
	OpIn   // ABI-boundary parameter pseudo-op
	OpOut  // ABI-boundary argument pseudo-op
	OpCall
	OpReturn
	OpMove // register-to-register copy inserted to resolve an HIR phi
)

func (o Op) String() string {
	names := [...]string{
		"Invalid", "IntImm", "FloatImm",
		"IAdd", "ISub", "IMul", "IDiv", "IMod",
		"FAdd", "FSub", "FMul", "FDiv",
		"ICmp", "FCmp", "ICmpJmp", "FCmpJmp", "CastIntFloat",
		"LocalLoad", "LocalStore", "Jmp", "CondJmp", "In", "Out", "Call", "Return", "Move",
	}
	if int(o) < len(names) {
		return names[o]
	}
	return "<invalid-op>"
}

// Operand is either a virtual register or an immediate.
type Operand struct {
	IsImm  bool
	Reg    VReg
	IntVal int64
	FltVal float64
}

func RegOperand(v VReg) Operand       { return Operand{Reg: v} }
func IntImmOperand(v int64) Operand   { return Operand{IsImm: true, IntVal: v} }
func FloatImmOperand(v float64) Operand { return Operand{IsImm: true, FltVal: v} }

func (o Operand) String() string {
	if o.IsImm {
		return fmt.Sprintf("#%v/%v", o.IntVal, o.FltVal)
	}
	return o.Reg.String()
}

// Instr is one MIR instruction.
type Instr struct {
	Op     Op
	Dst    VReg
	Lhs    Operand
	Rhs    Operand
	Cond   hir.Cond
	Slot   int
	FuncId uint32
	Target *Block
	Else   *Block

	// Call
	Args []Operand
}

func (i *Instr) String() string {
	return fmt.Sprintf("%v = %v %v %v", i.Dst, i.Op, i.Lhs, i.Rhs)
}

// Block is an MIR basic block.
type Block struct {
	Id         int
	Instrs     []*Instr
	terminated bool
}

func (b *Block) addInstr(i *Instr) *Instr {
	b.Instrs = append(b.Instrs, i)
	return i
}

func (b *Block) String() string { return fmt.Sprintf("mbb%d", b.Id) }

// Func is one MIR function.
type Func struct {
	Name       string
	NumLocals  int
	NumG       int // count of distinct G virtual registers used
	NumF       int // count of distinct F virtual registers used
	ReturnType hir.Type
	Entry      *Block
	Blocks     []*Block

	// LocalClass records, per local slot, whether the code generator
	// should treat it as a G or F home. It is filled in as Lower
	// observes each slot's LocalLoad/LocalStore, since MIR otherwise
	// carries no standalone per-local type table.
	LocalClass []Class

	nextBlock int
}

func NewFunc(name string, numLocals int) *Func {
	f := &Func{Name: name, NumLocals: numLocals, LocalClass: make([]Class, numLocals)}
	f.Entry = f.NewBlock()
	return f
}

func (f *Func) NewBlock() *Block {
	b := &Block{Id: f.nextBlock}
	f.nextBlock++
	f.Blocks = append(f.Blocks, b)
	return b
}

func (f *Func) String() string {
	s := fmt.Sprintf("mir func %s {\n", f.Name)
	for _, b := range f.Blocks {
		s += fmt.Sprintf(" %v:\n", b)
		for _, i := range b.Instrs {
			s += fmt.Sprintf("  %v\n", i)
		}
	}
	return s + "}"
}
