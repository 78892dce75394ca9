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

// Package hir implements the typed SSA high-level IR (spec.md §3, §4.2):
// narrower and dynamically type-specialized, unlike the teacher's
// generic, statically-typed ssa.Value graph
// (_examples/y1yang0-falcon/src/compile/ssa/hir.go), but keeping its
// shape — dense per-function Reg ids, one defining instruction per
// register, explicit Block/Func containers, and a String()-based
// debug dump.
package hir

import "fmt"

// Type is the JIT specialization tag attached to every SSA register
// (spec.md §3 "Type tag").
type Type int

const (
	TypeInvalid Type = iota
	Integer
	Float
	Bool
)

func (t Type) String() string {
	switch t {
	case Integer:
		return "Integer"
	case Float:
		return "Float"
	case Bool:
		return "Bool"
	default:
		return "<invalid-type>"
	}
}

// Reg is an opaque, dense SSA register index, unique within a Func.
type Reg int

// Op is an HIR instruction opcode.
type Op int

const (
	OpInvalid Op = iota
	OpIntConst
	OpFloatConst
	OpIntAsFloat // the only type-changing op; result is always Float
	OpNeg
	OpIAdd
	OpISub
	OpIMul
	OpIDiv
	OpIMod
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpICmp // typed compare, result Bool; Cond holds the comparison kind
	OpFCmp
	OpLocalLoad
	OpLocalStore
	OpCall
	OpJmp
	OpCondJmp
	OpCmpJmp // compare-and-branch fused form
	OpPhi
	OpReturn
)

func (o Op) String() string {
	names := [...]string{
		"Invalid", "IntConst", "FloatConst", "IntAsFloat", "Neg",
		"IAdd", "ISub", "IMul", "IDiv", "IMod",
		"FAdd", "FSub", "FMul", "FDiv",
		"ICmp", "FCmp", "LocalLoad", "LocalStore", "Call",
		"Jmp", "CondJmp", "CmpJmp", "Phi", "Return",
	}
	if int(o) < len(names) {
		return names[o]
	}
	return "<invalid-op>"
}

// Cond is a comparison kind, shared by ICmp/FCmp/CmpJmp.
type Cond int

const (
	CondEq Cond = iota
	CondNe
	CondGt
	CondGe
	CondLt
	CondLe
)

func (c Cond) String() string {
	return [...]string{"Eq", "Ne", "Gt", "Ge", "Lt", "Le"}[c]
}

// Operand is either a register reference or an operand-inlined
// immediate constant (spec.md §4.2: "Constants on either side are kept
// as operand-inlined immediates").
type Operand struct {
	IsConst bool
	Reg     Reg
	IntVal  int64
	FltVal  float64
}

func RegOperand(r Reg) Operand            { return Operand{Reg: r} }
func IntOperand(v int64) Operand          { return Operand{IsConst: true, IntVal: v} }
func FloatOperand(v float64) Operand      { return Operand{IsConst: true, FltVal: v} }

func (o Operand) String() string {
	if o.IsConst {
		return fmt.Sprintf("#%v/%v", o.IntVal, o.FltVal)
	}
	return fmt.Sprintf("v%d", o.Reg)
}

// Instr is one HIR instruction. It defines Dst (valid unless Op is a
// pure terminator: Jmp/CondJmp/Return, or a void LocalStore).
type Instr struct {
	Op     Op
	Dst    Reg
	Type   Type
	Args   []Operand
	Cond   Cond
	Slot   int    // LocalLoad/LocalStore
	FuncId uint32 // Call
	Target *Block // Jmp/CondJmp/CmpJmp taken-branch
	Else   *Block // CondJmp/CmpJmp not-taken branch

	// Phi: parallel to Args, the predecessor block each argument flows
	// from.
	PhiBlocks []*Block
}

func (i *Instr) String() string {
	return fmt.Sprintf("v%d:%v = %v %v", i.Dst, i.Type, i.Op, i.Args)
}

// Block is a basic block: an ordered instruction list terminated by a
// branch or return (spec.md §3 "Basic block (HIR)").
type Block struct {
	Id       int
	Instrs   []*Instr
	Preds    []*Block
	terminated bool
}

func (b *Block) addInstr(i *Instr) *Instr {
	b.Instrs = append(b.Instrs, i)
	return i
}

func (b *Block) String() string { return fmt.Sprintf("bb%d", b.Id) }

// Func is one HIR function: registers are numbered densely within it.
type Func struct {
	Name       string
	NumParams  int
	ReturnType Type
	Entry      *Block
	Blocks     []*Block

	nextReg   Reg
	regType   map[Reg]Type
	nextBlock int
}

// NewFunc creates an empty function with a bound entry block.
func NewFunc(name string, numParams int) *Func {
	f := &Func{Name: name, NumParams: numParams, regType: map[Reg]Type{}}
	f.Entry = f.NewBlock()
	return f
}

func (f *Func) NewBlock() *Block {
	b := &Block{Id: f.nextBlock}
	f.nextBlock++
	f.Blocks = append(f.Blocks, b)
	return b
}

func (f *Func) newReg(t Type) Reg {
	r := f.nextReg
	f.nextReg++
	f.regType[r] = t
	return r
}

// RegType reports the type fixed at a register's definition.
func (f *Func) RegType(r Reg) Type { return f.regType[r] }

// NumRegs reports how many SSA registers this function has defined.
func (f *Func) NumRegs() int { return int(f.nextReg) }

func (f *Func) String() string {
	s := fmt.Sprintf("func %s {\n", f.Name)
	for _, b := range f.Blocks {
		s += fmt.Sprintf(" %v:\n", b)
		for _, i := range b.Instrs {
			s += fmt.Sprintf("  %v\n", i)
		}
	}
	return s + "}"
}
