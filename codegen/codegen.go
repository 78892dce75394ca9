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

import (
	"fmt"
	"math"

	"corvus/hir"
	"corvus/mir"
	"corvus/utils"
)

var argIntRegs = []int{rdi, rsi, rdx, rcx, r8, r9}
var argFloatRegs = []xmmReg{0, 1, 2, 3, 4, 5, 6, 7}

// Compiled is one finished JIT compilation: the address its caller
// jumps to, and enough metadata to build a typed Go trampoline around
// it (spec.md §4.6 "typed callable entry points").
type Compiled struct {
	Entry      uintptr
	ReturnType hir.Type
	arena      *Arena
}

// Release frees the underlying executable mapping.
func (c *Compiled) Release() error { return c.arena.Release() }

// Compile lowers one MIR function into machine code in a dedicated
// arena and finalizes it immediately, per spec.md §4.5/§4.6. selfFuncId
// is the FuncId a direct recursive OpCall must match — MIR only ever
// carries self-recursive calls (the front end bails to the
// interpreter otherwise), so there is exactly one legal call target:
// this function's own entry.
func Compile(mf *mir.Func, selfFuncId uint32) (*Compiled, error) {
	a := NewArena()
	c := &compiler{mf: mf, a: a, selfFuncId: selfFuncId, entry: a.NewLabel()}
	c.layout()
	if err := c.emitFunc(); err != nil {
		return nil, err
	}
	addr, err := a.Finalize(0)
	if err != nil {
		return nil, err
	}
	return &Compiled{Entry: addr, ReturnType: mf.ReturnType, arena: a}, nil
}

type compiler struct {
	mf         *mir.Func
	a          *Arena
	selfFuncId uint32
	entry      *int

	labels map[*mir.Block]*int
	gArgN  int
	fArgN  int

	localsBytes int
	gSpillBytes int
	fSpillBytes int
	frameSize   int
}

// layout assigns the frame's byte layout, following spec.md §4.5's
// spill-count formulas: only virtuals beyond the physical-register
// budget need a stack home.
func (c *compiler) layout() {
	gSpills := 0
	if n := c.mf.NumG - gPhysCount; n > 0 {
		gSpills = n
	}
	fSpills := 0
	if n := c.mf.NumF - fPhysCount; n > 0 {
		fSpills = n
	}
	c.localsBytes = c.mf.NumLocals * 8
	c.gSpillBytes = gSpills * 8
	c.fSpillBytes = fSpills * 8
	c.frameSize = utils.Align16(c.localsBytes + c.gSpillBytes + c.fSpillBytes)
}

func (c *compiler) localDisp(slot int) int32 { return int32(-8 * (slot + 1)) }

func (c *compiler) gLoc(v mir.VReg) loc {
	if v.Index < gPhysCount {
		return loc{phys: gPhys[v.Index]}
	}
	idx := v.Index - gPhysCount
	return loc{isMem: true, slot: idx}
}

func (c *compiler) gDisp(slot int) int32 {
	return int32(-(c.localsBytes + 8*(slot+1)))
}

func (c *compiler) fLoc(v mir.VReg) loc {
	if v.Index < fPhysCount {
		return loc{xmm: fPhys[v.Index]}
	}
	idx := v.Index - fPhysCount
	return loc{isMem: true, slot: idx}
}

func (c *compiler) fDisp(slot int) int32 {
	return int32(-(c.localsBytes + c.gSpillBytes + 8*(slot+1)))
}

func (c *compiler) loadG(l loc, scratch int) int {
	if !l.isMem {
		return l.phys
	}
	c.a.MovRegMem(scratch, c.gDisp(l.slot))
	return scratch
}

func (c *compiler) loadGInto(l loc, want int) {
	if l.isMem {
		c.a.MovRegMem(want, c.gDisp(l.slot))
	} else if l.phys != want {
		c.a.MovRegReg(want, l.phys)
	}
}

func (c *compiler) storeG(l loc, reg int) {
	if l.isMem {
		c.a.MovMemReg(c.gDisp(l.slot), reg)
	} else if l.phys != reg {
		c.a.MovRegReg(l.phys, reg)
	}
}

func (c *compiler) loadF(l loc, scratch xmmReg) xmmReg {
	if !l.isMem {
		return l.xmm
	}
	c.a.MovsdRegMem(scratch, c.fDisp(l.slot))
	return scratch
}

func (c *compiler) storeF(l loc, reg xmmReg) {
	if l.isMem {
		c.a.MovsdMemReg(c.fDisp(l.slot), reg)
	} else if l.xmm != reg {
		c.a.MovsdRegReg(l.xmm, reg)
	}
}

// emitFunc emits the prologue, every block in order, and the epilogue
// that frees callee-saved virtuals is folded into each OpReturn site
// rather than a single shared epilogue, since a function may have
// several return sites (spec.md §4.6's frame discipline invariant:
// every return path restores the identical set of saved registers).
func (c *compiler) emitFunc() error {
	c.a.PlaceLabel(c.entry)
	c.a.PushReg(rbp)
	c.a.MovRegReg(rbp, rsp)
	if c.frameSize > 0 {
		c.subRsp(c.frameSize)
	}
	for _, r := range gPhys {
		c.a.PushReg(r)
	}

	c.labels = map[*mir.Block]*int{}
	for _, b := range c.mf.Blocks {
		c.labels[b] = c.a.NewLabel()
	}

	for _, b := range c.mf.Blocks {
		c.a.PlaceLabel(c.labels[b])
		for _, in := range b.Instrs {
			if err := c.emitInstr(in); err != nil {
				return fmt.Errorf("codegen: %s: %w", c.mf.Name, err)
			}
		}
	}
	return nil
}

// subRsp lowers RSP by n bytes via a SUB r/m64, imm32, which this
// package's otherwise register/register encoder doesn't need anywhere
// else, so it is inlined here rather than added as a general form.
func (c *compiler) subRsp(n int) {
	c.a.EmitByte(rex(true, false, false, false))
	c.a.EmitByte(0x81)
	c.a.EmitByte(modrm(modReg, 5, rsp))
	c.a.EmitInt32(int32(n))
}

func (c *compiler) emitEpilogue() {
	for i := len(gPhys) - 1; i >= 0; i-- {
		c.a.PopReg(gPhys[i])
	}
	c.a.MovRegReg(rsp, rbp)
	c.a.PopReg(rbp)
	c.a.Ret()
}

func (c *compiler) emitInstr(in *mir.Instr) error {
	switch in.Op {
	case mir.OpIn:
		cls := c.mf.LocalClass[in.Slot]
		if cls == mir.FClass {
			c.a.MovsdMemReg(c.localDisp(in.Slot), nextFloatArg(&c.fArgN))
		} else {
			c.a.MovMemReg(c.localDisp(in.Slot), nextIntArg(&c.gArgN))
		}

	case mir.OpIntImm:
		dst := c.gLoc(in.Dst)
		reg := rax
		if !dst.isMem {
			reg = dst.phys
		}
		c.a.MovRegImm64(reg, in.Lhs.IntVal)
		if dst.isMem {
			c.a.MovMemReg(c.gDisp(dst.slot), reg)
		}

	case mir.OpFloatImm:
		bits := int64(math.Float64bits(in.Lhs.FltVal))
		c.a.MovRegImm64(rax, bits)
		c.a.MovqXmmGpr(0, rax)
		c.storeF(c.fLoc(in.Dst), 0)

	case mir.OpCastIntFloat:
		src := c.loadG(c.gLoc(in.Lhs.Reg), rax)
		c.a.Cvtsi2sdRegReg(0, src)
		c.storeF(c.fLoc(in.Dst), 0)

	case mir.OpIAdd, mir.OpISub, mir.OpIMul:
		dst := c.gLoc(in.Dst)
		acc := c.loadG(dst, rax)
		rhs := c.resolveGOperand(in.Rhs, rdx)
		switch in.Op {
		case mir.OpIAdd:
			c.a.AddRegReg(acc, rhs)
		case mir.OpISub:
			c.a.SubRegReg(acc, rhs)
		case mir.OpIMul:
			c.a.ImulRegReg(acc, rhs)
		}
		c.storeG(dst, acc)

	case mir.OpIDiv, mir.OpIMod:
		dst := c.gLoc(in.Dst)
		c.loadGInto(dst, rax)
		c.a.Cqo()
		divisor := c.resolveGOperand(in.Rhs, r15)
		c.a.IdivReg(divisor)
		if in.Op == mir.OpIDiv {
			c.storeG(dst, rax)
		} else {
			c.storeG(dst, rdx)
		}

	case mir.OpFAdd, mir.OpFSub, mir.OpFMul, mir.OpFDiv:
		dst := c.fLoc(in.Dst)
		acc := c.loadF(dst, 0)
		rhs := c.resolveFOperand(in.Rhs, 15)
		switch in.Op {
		case mir.OpFAdd:
			c.a.AddsdRegReg(acc, rhs)
		case mir.OpFSub:
			c.a.SubsdRegReg(acc, rhs)
		case mir.OpFMul:
			c.a.MulsdRegReg(acc, rhs)
		case mir.OpFDiv:
			c.a.DivsdRegReg(acc, rhs)
		}
		c.storeF(dst, acc)

	case mir.OpICmp:
		lhs := c.resolveGOperand(in.Lhs, rax)
		rhs := c.resolveGOperand(in.Rhs, rdx)
		c.a.CmpRegReg(lhs, rhs)
		c.a.SetccReg8(rax, in.Cond)
		c.storeG(c.gLoc(in.Dst), rax)

	case mir.OpFCmp:
		lhs := c.resolveFOperand(in.Lhs, 0)
		rhs := c.resolveFOperand(in.Rhs, 15)
		c.a.UcomisdRegReg(lhs, rhs)
		c.a.SetccReg8Unordered(rax, in.Cond)
		c.storeG(c.gLoc(in.Dst), rax)

	case mir.OpICmpJmp:
		lhs := c.resolveGOperand(in.Lhs, rax)
		rhs := c.resolveGOperand(in.Rhs, rdx)
		c.a.CmpRegReg(lhs, rhs)
		c.a.Jcc(in.Cond, c.labels[in.Target])
		c.a.Jmp(c.labels[in.Else])

	case mir.OpFCmpJmp:
		lhs := c.resolveFOperand(in.Lhs, 0)
		rhs := c.resolveFOperand(in.Rhs, 15)
		c.a.UcomisdRegReg(lhs, rhs)
		c.a.JccUnordered(in.Cond, c.labels[in.Target])
		c.a.Jmp(c.labels[in.Else])

	case mir.OpLocalLoad:
		if in.Dst.Class == mir.FClass {
			dst := c.fLoc(in.Dst)
			if dst.isMem {
				c.a.MovsdRegMem(0, c.localDisp(in.Slot))
				c.storeF(dst, 0)
			} else {
				c.a.MovsdRegMem(dst.xmm, c.localDisp(in.Slot))
			}
		} else {
			dst := c.gLoc(in.Dst)
			if dst.isMem {
				c.a.MovRegMem(rax, c.localDisp(in.Slot))
				c.storeG(dst, rax)
			} else {
				c.a.MovRegMem(dst.phys, c.localDisp(in.Slot))
			}
		}

	case mir.OpLocalStore:
		storeIsFloat := (!in.Lhs.IsImm && in.Lhs.Reg.Class == mir.FClass) || (in.Lhs.IsImm && c.mf.LocalClass[in.Slot] == mir.FClass)
		if storeIsFloat {
			src := c.resolveFOperand(in.Lhs, 0)
			c.a.MovsdMemReg(c.localDisp(in.Slot), src)
		} else {
			src := c.resolveGOperand(in.Lhs, rax)
			c.a.MovMemReg(c.localDisp(in.Slot), src)
		}

	case mir.OpMove:
		if in.Dst.Class == mir.FClass {
			src := c.resolveFOperand(in.Lhs, 0)
			c.storeF(c.fLoc(in.Dst), src)
		} else {
			src := c.resolveGOperand(in.Lhs, rax)
			c.storeG(c.gLoc(in.Dst), src)
		}

	case mir.OpJmp:
		c.a.Jmp(c.labels[in.Target])

	case mir.OpCondJmp:
		cond := c.resolveGOperand(in.Lhs, rax)
		c.a.TestRegReg(cond)
		c.a.Jcc(hir.CondNe, c.labels[in.Target])
		c.a.Jmp(c.labels[in.Else])

	case mir.OpCall:
		if in.FuncId != c.selfFuncId {
			return fmt.Errorf("unsupported call target func#%d (only direct self-recursion is JIT-compiled)", in.FuncId)
		}
		gi, fi := 0, 0
		for _, arg := range in.Args {
			if !arg.IsImm && arg.Reg.Class == mir.FClass {
				src := c.resolveFOperand(arg, 0)
				c.a.MovsdRegReg(argFloatRegs[fi], src)
				fi++
			} else {
				src := c.resolveGOperand(arg, rax)
				c.a.MovRegReg(argIntRegs[gi], src)
				gi++
			}
		}
		c.a.CallRel32(c.entry)
		if in.Dst.Class == mir.FClass {
			c.storeF(c.fLoc(in.Dst), 0)
		} else {
			c.storeG(c.gLoc(in.Dst), rax)
		}

	case mir.OpReturn:
		if in.Lhs.Reg.Class == mir.FClass || (in.Lhs.IsImm && c.mf.ReturnType == hir.Float) {
			src := c.resolveFOperand(in.Lhs, 0)
			if src != 0 {
				c.a.MovsdRegReg(0, src)
			}
		} else {
			src := c.resolveGOperand(in.Lhs, rax)
			if src != rax {
				c.a.MovRegReg(rax, src)
			}
		}
		c.emitEpilogue()

	default:
		return fmt.Errorf("unhandled mir opcode %v", in.Op)
	}
	return nil
}

func (c *compiler) resolveGOperand(op mir.Operand, scratch int) int {
	if op.IsImm {
		c.a.MovRegImm64(scratch, op.IntVal)
		return scratch
	}
	return c.loadG(c.gLoc(op.Reg), scratch)
}

func (c *compiler) resolveFOperand(op mir.Operand, scratch xmmReg) xmmReg {
	if op.IsImm {
		bits := int64(math.Float64bits(op.FltVal))
		c.a.MovRegImm64(rax, bits)
		c.a.MovqXmmGpr(scratch, rax)
		return scratch
	}
	return c.loadF(c.fLoc(op.Reg), scratch)
}

func nextIntArg(n *int) int {
	r := argIntRegs[*n]
	*n++
	return r
}

func nextFloatArg(n *int) xmmReg {
	r := argFloatRegs[*n]
	*n++
	return r
}
