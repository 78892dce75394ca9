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
	"fmt"

	"corvus/hir"
	"corvus/utils"
)

// Lower runs the single forward pass of spec.md §4.3: HIR → MIR, with
// virtual-register class selection by SSA type and "invalidate on
// last use" recycling. numLocals is the local slot count (HIR's
// builder never exposes it directly since it doesn't pre-declare
// slots, so the driver passes the high-water mark it tracked while
// feeding HIR construction).
func Lower(f *hir.Func, numLocals int) (*Func, error) {
	mf := NewFunc(f.Name, numLocals)
	lo := &lowerer{
		hf:      f,
		mf:      mf,
		binding: map[hir.Reg]VReg{},
		blocks:  map[*hir.Block]*Block{},
	}
	for _, hb := range f.Blocks {
		lo.blocks[hb] = mf.NewBlock()
	}
	mf.Entry = lo.blocks[f.Entry]
	// mf.NewBlock() was called once already inside NewFunc for a
	// placeholder entry; drop it now that the real one-to-one mapping
	// is known, keeping block ids dense and matching HIR's.
	mf.Blocks = mf.Blocks[1:]
	for i, b := range mf.Blocks {
		b.Id = i
	}

	for i := 0; i < f.NumParams; i++ {
		mf.Entry.addInstr(&Instr{Op: OpIn, Slot: i})
	}

	for _, hb := range f.Blocks {
		lo.cur = lo.blocks[hb]
		for _, in := range hb.Instrs {
			if err := lo.lower(in); err != nil {
				return nil, err
			}
		}
	}
	mf.ReturnType = f.ReturnType
	mf.NumG = len(lo.liveG)
	mf.NumF = len(lo.liveF)
	fuseCompareBranch(mf)
	return mf, nil
}

// fuseCompareBranch implements spec.md §4.3/§4.5's compare-and-branch
// forms: when a block ends with `cmp; condjmp cmp-result` and the
// compare's result has no other consumer, collapse the pair into a
// single ICmpJmp/FCmpJmp, which is the only branch form the MIR
// instruction set names for a typed compare.
func fuseCompareBranch(mf *Func) {
	for _, b := range mf.Blocks {
		n := len(b.Instrs)
		if n < 2 {
			continue
		}
		branch := b.Instrs[n-1]
		cmp := b.Instrs[n-2]
		if branch.Op != OpCondJmp || branch.Lhs.IsImm {
			continue
		}
		if (cmp.Op != OpICmp && cmp.Op != OpFCmp) || cmp.Dst != branch.Lhs.Reg {
			continue
		}
		fused := OpICmpJmp
		if cmp.Op == OpFCmp {
			fused = OpFCmpJmp
		}
		b.Instrs[n-2] = &Instr{
			Op: fused, Lhs: cmp.Lhs, Rhs: cmp.Rhs, Cond: cmp.Cond,
			Target: branch.Target, Else: branch.Else,
		}
		b.Instrs = b.Instrs[:n-1]
	}
}

type lowerer struct {
	hf      *hir.Func
	mf      *Func
	cur     *Block
	binding map[hir.Reg]VReg
	blocks  map[*hir.Block]*Block

	liveG []bool
	liveF []bool
}

func classOf(t hir.Type) Class {
	if t == hir.Float {
		return FClass
	}
	return GClass
}

func (lo *lowerer) alloc(c Class) VReg {
	live := &lo.liveG
	if c == FClass {
		live = &lo.liveF
	}
	for i, v := range *live {
		if !v {
			(*live)[i] = true
			return VReg{Class: c, Index: i}
		}
	}
	idx := len(*live)
	*live = append(*live, true)
	return VReg{Class: c, Index: idx}
}

func (lo *lowerer) free(v VReg) {
	live := &lo.liveG
	if v.Class == FClass {
		live = &lo.liveF
	}
	if v.Index < len(*live) {
		(*live)[v.Index] = false
	}
}

// operand resolves an HIR operand to an MIR operand, freeing the
// source virtual register since every HIR register in the covered
// subset is consumed exactly once (spec.md §4.3's documented
// precondition for the "invalidate on use" policy).
func (lo *lowerer) operand(op hir.Operand, t hir.Type) Operand {
	if op.IsConst {
		if t == hir.Float {
			return FloatImmOperand(op.FltVal)
		}
		return IntImmOperand(op.IntVal)
	}
	v, ok := lo.binding[op.Reg]
	utils.Assert(ok, "mir: use of HIR register v%d before definition", op.Reg)
	lo.free(v)
	return RegOperand(v)
}

func (lo *lowerer) lower(in *hir.Instr) error {
	switch in.Op {
	case hir.OpIntConst:
		v := lo.alloc(GClass)
		lo.cur.addInstr(&Instr{Op: OpIntImm, Dst: v, Lhs: IntImmOperand(in.Args[0].IntVal)})
		lo.binding[in.Dst] = v

	case hir.OpFloatConst:
		v := lo.alloc(FClass)
		lo.cur.addInstr(&Instr{Op: OpFloatImm, Dst: v, Lhs: FloatImmOperand(in.Args[0].FltVal)})
		lo.binding[in.Dst] = v

	case hir.OpIntAsFloat:
		src := lo.operand(in.Args[0], hir.Integer)
		dst := lo.alloc(FClass)
		lo.cur.addInstr(&Instr{Op: OpCastIntFloat, Dst: dst, Lhs: src})
		lo.binding[in.Dst] = dst

	case hir.OpNeg:
		// Modeled as zero minus the operand: dst is loaded with an
		// immediate zero, then the operand is subtracted from it in place
		// (two-address form). dst is allocated before the operand's
		// register is freed, so the two never share a register.
		op := OpISub
		zero := IntImmOperand(0)
		if in.Type == hir.Float {
			op = OpFSub
			zero = FloatImmOperand(0)
		}
		dst := lo.alloc(classOf(in.Type))
		src := lo.operand(in.Args[0], in.Type)
		lo.cur.addInstr(&Instr{Op: immLoadOp(in.Type), Dst: dst, Lhs: zero})
		lo.cur.addInstr(&Instr{Op: op, Dst: dst, Lhs: RegOperand(dst), Rhs: src})
		lo.binding[in.Dst] = dst

	case hir.OpIAdd, hir.OpISub, hir.OpIMul, hir.OpIDiv, hir.OpIMod,
		hir.OpFAdd, hir.OpFSub, hir.OpFMul, hir.OpFDiv:
		lhs := lo.operand(in.Args[0], in.Type)
		rhs := lo.operand(in.Args[1], in.Type)
		op := arithOp[in.Op]
		// Two-address fusion (spec.md §4.3): the result aliases the
		// lhs operand's slot. If lhs was an immediate rather than a
		// register, a fresh register is materialized for it first.
		var dst VReg
		if lhs.IsImm {
			dst = lo.alloc(classOf(in.Type))
			lo.cur.addInstr(&Instr{Op: immLoadOp(in.Type), Dst: dst, Lhs: lhs})
			lhs = RegOperand(dst)
		} else {
			dst = lhs.Reg
		}
		lo.cur.addInstr(&Instr{Op: op, Dst: dst, Lhs: lhs, Rhs: rhs})
		lo.binding[in.Dst] = dst

	case hir.OpICmp, hir.OpFCmp:
		lhs := lo.operand(in.Args[0], argType(in, 0))
		rhs := lo.operand(in.Args[1], argType(in, 1))
		op := OpICmp
		if in.Op == hir.OpFCmp {
			op = OpFCmp
		}
		dst := lo.alloc(GClass)
		lo.cur.addInstr(&Instr{Op: op, Dst: dst, Lhs: lhs, Rhs: rhs, Cond: in.Cond})
		lo.binding[in.Dst] = dst

	case hir.OpLocalLoad:
		lo.mf.LocalClass[in.Slot] = classOf(in.Type)
		dst := lo.alloc(classOf(in.Type))
		lo.cur.addInstr(&Instr{Op: OpLocalLoad, Dst: dst, Slot: in.Slot})
		lo.binding[in.Dst] = dst

	case hir.OpLocalStore:
		lo.mf.LocalClass[in.Slot] = classOf(in.Type)
		src := lo.operand(in.Args[0], in.Type)
		lo.cur.addInstr(&Instr{Op: OpLocalStore, Lhs: src, Slot: in.Slot})

	case hir.OpCall:
		args := make([]Operand, len(in.Args))
		for i, a := range in.Args {
			args[i] = lo.operand(a, in.Type)
		}
		dst := lo.alloc(classOf(in.Type))
		lo.cur.addInstr(&Instr{Op: OpCall, Dst: dst, FuncId: in.FuncId, Args: args})
		lo.binding[in.Dst] = dst

	case hir.OpJmp:
		lo.cur.addInstr(&Instr{Op: OpJmp, Target: lo.blocks[in.Target]})
		lo.cur.terminated = true

	case hir.OpCondJmp:
		cond := lo.operand(in.Args[0], hir.Bool)
		lo.cur.addInstr(&Instr{Op: OpCondJmp, Lhs: cond, Target: lo.blocks[in.Target], Else: lo.blocks[in.Else]})
		lo.cur.terminated = true

	case hir.OpReturn:
		v := lo.operand(in.Args[0], in.Type)
		lo.cur.addInstr(&Instr{Op: OpReturn, Lhs: v})
		lo.cur.terminated = true

	case hir.OpPhi:
		dst := lo.alloc(classOf(in.Type))
		for i, a := range in.Args {
			src := lo.operand(a, in.Type)
			predHB := in.PhiBlocks[i]
			predMB := lo.blocks[predHB]
			insertMoveBeforeTerminator(predMB, &Instr{Op: OpMove, Dst: dst, Lhs: src})
		}
		lo.binding[in.Dst] = dst

	default:
		return fmt.Errorf("mir: unhandled HIR opcode %v", in.Op)
	}
	return nil
}

var arithOp = map[hir.Op]Op{
	hir.OpIAdd: OpIAdd, hir.OpISub: OpISub, hir.OpIMul: OpIMul, hir.OpIDiv: OpIDiv, hir.OpIMod: OpIMod,
	hir.OpFAdd: OpFAdd, hir.OpFSub: OpFSub, hir.OpFMul: OpFMul, hir.OpFDiv: OpFDiv,
}

func immLoadOp(t hir.Type) Op {
	if t == hir.Float {
		return OpFloatImm
	}
	return OpIntImm
}

// argType reports the operand type feeding an ICmp/FCmp, which has no
// Type-per-arg tracking of its own in HIR (only the Bool result does);
// both operands were promoted to the same type by the front end, which
// is exactly the type ICmp vs. FCmp already discriminates on.
func argType(in *hir.Instr, _ int) hir.Type {
	if in.Op == hir.OpFCmp {
		return hir.Float
	}
	return hir.Integer
}

// insertMoveBeforeTerminator splices a resolving copy just before a
// predecessor block's branch/return, the standard out-of-SSA
// technique for eliminating a phi that MIR (unlike HIR) has no node
// for (spec.md §3 lists no Phi form among MIR instructions).
func insertMoveBeforeTerminator(b *Block, mv *Instr) {
	n := len(b.Instrs)
	if n == 0 {
		b.Instrs = append(b.Instrs, mv)
		return
	}
	b.Instrs = append(b.Instrs, nil)
	copy(b.Instrs[n:], b.Instrs[n-1:n])
	b.Instrs[n-1] = mv
}
