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

import "corvus/hir"

// This file is the actual x86-64 assembler: every exported method on
// Arena below emits one real instruction's bytes. There is no textual
// assembly stage and nothing shells out to cc/as — spec.md's JIT
// requires machine code to exist the instant lowering finishes.

func modrm(mod, reg, rm int) byte {
	return byte(mod<<6 | (reg&7)<<3 | (rm & 7))
}

func rex(w, r, x, b bool) byte {
	bit := func(v bool, shift uint) byte {
		if v {
			return 1 << shift
		}
		return 0
	}
	return 0x40 | bit(w, 3) | bit(r, 2) | bit(x, 1) | bit(b, 0)
}

const modReg = 3  // ModRM.mod: register-direct addressing
const modDisp32 = 2 // ModRM.mod: [reg + disp32]

// --- general-purpose register moves ---

// MovRegImm64 loads a 64-bit immediate into a GP register.
func (a *Arena) MovRegImm64(dst int, v int64) {
	a.EmitByte(rex(true, false, false, dst >= 8))
	a.EmitByte(0xB8 + byte(dst&7))
	a.EmitInt64(v)
}

// MovRegMem loads the 8 bytes at [rbp + disp] into a GP register.
func (a *Arena) MovRegMem(dst int, disp int32) {
	a.EmitByte(rex(true, dst >= 8, false, false))
	a.EmitByte(0x8B)
	a.EmitByte(modrm(modDisp32, dst, rbp))
	a.EmitInt32(disp)
}

// MovMemReg stores a GP register to [rbp + disp].
func (a *Arena) MovMemReg(disp int32, src int) {
	a.EmitByte(rex(true, src >= 8, false, false))
	a.EmitByte(0x89)
	a.EmitByte(modrm(modDisp32, src, rbp))
	a.EmitInt32(disp)
}

// MovRegReg copies src into dst (both GP).
func (a *Arena) MovRegReg(dst, src int) {
	a.EmitByte(rex(true, src >= 8, false, dst >= 8))
	a.EmitByte(0x89)
	a.EmitByte(modrm(modReg, src, dst))
}

func (a *Arena) PushReg(r int) {
	if r >= 8 {
		a.EmitByte(rex(false, false, false, true))
	}
	a.EmitByte(0x50 + byte(r&7))
}

func (a *Arena) PopReg(r int) {
	if r >= 8 {
		a.EmitByte(rex(false, false, false, true))
	}
	a.EmitByte(0x58 + byte(r&7))
}

func (a *Arena) Ret() { a.EmitByte(0xC3) }

// --- integer arithmetic (two-address: dst op= src) ---

func (a *Arena) AddRegReg(dst, src int) { a.arith2(0x01, dst, src) }
func (a *Arena) SubRegReg(dst, src int) { a.arith2(0x29, dst, src) }

func (a *Arena) arith2(opcode byte, dst, src int) {
	a.EmitByte(rex(true, src >= 8, false, dst >= 8))
	a.EmitByte(opcode)
	a.EmitByte(modrm(modReg, src, dst))
}

// ImulRegReg computes dst *= src (IMUL r64, r/m64 form, reg is dst).
func (a *Arena) ImulRegReg(dst, src int) {
	a.EmitByte(rex(true, dst >= 8, false, src >= 8))
	a.EmitByte(0x0F)
	a.EmitByte(0xAF)
	a.EmitByte(modrm(modReg, dst, src))
}

// Cqo sign-extends RAX into RDX:RAX, the mandatory IDIV prelude.
func (a *Arena) Cqo() {
	a.EmitByte(rex(true, false, false, false))
	a.EmitByte(0x99)
}

// IdivReg divides RDX:RAX by the given register, quotient in RAX,
// remainder in RDX (F7 /7).
func (a *Arena) IdivReg(src int) {
	a.EmitByte(rex(true, false, false, src >= 8))
	a.EmitByte(0xF7)
	a.EmitByte(modrm(modReg, 7, src))
}

// CmpRegReg computes flags for lhs - rhs without storing a result.
func (a *Arena) CmpRegReg(lhs, rhs int) {
	a.EmitByte(rex(true, rhs >= 8, false, lhs >= 8))
	a.EmitByte(0x39)
	a.EmitByte(modrm(modReg, rhs, lhs))
}

// SetccReg8 writes 0/1 to the low byte of dst per cond (signed, SF/OF
// based — correct after a CmpRegReg), then zero extends into the full
// 64-bit register so it is safe to treat as a boxed/boolean value
// upstream.
func (a *Arena) SetccReg8(dst int, cond hir.Cond) {
	a.setccReg8(dst, setccTail[cond])
}

// SetccReg8Unordered is SetccReg8's counterpart for a comparison that
// came from UcomisdRegReg rather than CmpRegReg. ucomisd always clears
// SF and OF and reports order in CF/ZF/PF instead, so the signed
// SETG/SETGE/SETL/SETLE codes above are meaningless here: Gt/Ge/Lt/Le
// must use the unsigned SETA/SETAE/SETB/SETBE codes per spec.md §4.5.
func (a *Arena) SetccReg8Unordered(dst int, cond hir.Cond) {
	a.setccReg8(dst, setccUnorderedTail[cond])
}

func (a *Arena) setccReg8(dst int, tail byte) {
	a.EmitByte(0x0F)
	a.EmitByte(0x90 + tail)
	a.EmitByte(modrm(modReg, 0, dst))
	a.EmitByte(rex(true, false, false, dst >= 8))
	a.EmitByte(0x0F)
	a.EmitByte(0xB6)
	a.EmitByte(modrm(modReg, dst, dst))
}

// setccTail/jccTail hold the signed (SF/OF-based) condition codes,
// correct after an integer CmpRegReg.
var setccTail = map[hir.Cond]byte{
	hir.CondEq: 0x4, hir.CondNe: 0x5,
	hir.CondGt: 0xF, hir.CondGe: 0xD,
	hir.CondLt: 0xC, hir.CondLe: 0xE,
}

// jcc tail bytes for the 0F 80+cc rel32 family, same condition codes.
var jccTail = setccTail

// setccUnorderedTail/jccUnorderedTail hold the unsigned (CF/ZF-based)
// condition codes, correct after UcomisdRegReg: SETA/JA (0x7) for Gt,
// SETAE/JAE (0x3) for Ge, SETB/JB (0x2) for Lt, SETBE/JBE (0x6) for Le.
// Eq/Ne still key off ZF alone so the signed codes for those two cases
// happen to coincide and are reused as-is.
var setccUnorderedTail = map[hir.Cond]byte{
	hir.CondEq: 0x4, hir.CondNe: 0x5,
	hir.CondGt: 0x7, hir.CondGe: 0x3,
	hir.CondLt: 0x2, hir.CondLe: 0x6,
}

var jccUnorderedTail = setccUnorderedTail

func (a *Arena) Jmp(target *int) {
	a.EmitByte(0xE9)
	a.ReserveRel32(target)
}

func (a *Arena) Jcc(cond hir.Cond, target *int) {
	a.jcc(target, jccTail[cond])
}

// JccUnordered is Jcc's counterpart for a branch on a UcomisdRegReg
// result; see SetccReg8Unordered.
func (a *Arena) JccUnordered(cond hir.Cond, target *int) {
	a.jcc(target, jccUnorderedTail[cond])
}

func (a *Arena) jcc(target *int, tail byte) {
	a.EmitByte(0x0F)
	a.EmitByte(0x80 + tail)
	a.ReserveRel32(target)
}

func (a *Arena) CallRel32(target *int) {
	a.EmitByte(0xE8)
	a.ReserveRel32(target)
}

// --- SSE2 scalar double-precision ---

func (a *Arena) MovsdRegMem(dst xmmReg, disp int32) {
	a.EmitByte(0xF2)
	if dst >= 8 {
		a.EmitByte(rex(false, true, false, false))
	}
	a.EmitByte(0x0F)
	a.EmitByte(0x10)
	a.EmitByte(modrm(modDisp32, int(dst), rbp))
	a.EmitInt32(disp)
}

func (a *Arena) MovsdMemReg(disp int32, src xmmReg) {
	a.EmitByte(0xF2)
	if src >= 8 {
		a.EmitByte(rex(false, true, false, false))
	}
	a.EmitByte(0x0F)
	a.EmitByte(0x11)
	a.EmitByte(modrm(modDisp32, int(src), rbp))
	a.EmitInt32(disp)
}

func (a *Arena) MovsdRegReg(dst, src xmmReg) {
	a.EmitByte(0xF2)
	if dst >= 8 || src >= 8 {
		a.EmitByte(rex(false, dst >= 8, false, src >= 8))
	}
	a.EmitByte(0x0F)
	a.EmitByte(0x10)
	a.EmitByte(modrm(modReg, int(dst), int(src)))
}

func (a *Arena) sseArith(opcode byte, dst, src xmmReg) {
	a.EmitByte(0xF2)
	if dst >= 8 || src >= 8 {
		a.EmitByte(rex(false, dst >= 8, false, src >= 8))
	}
	a.EmitByte(0x0F)
	a.EmitByte(opcode)
	a.EmitByte(modrm(modReg, int(dst), int(src)))
}

func (a *Arena) AddsdRegReg(dst, src xmmReg) { a.sseArith(0x58, dst, src) }
func (a *Arena) SubsdRegReg(dst, src xmmReg) { a.sseArith(0x5C, dst, src) }
func (a *Arena) MulsdRegReg(dst, src xmmReg) { a.sseArith(0x59, dst, src) }
func (a *Arena) DivsdRegReg(dst, src xmmReg) { a.sseArith(0x5E, dst, src) }

// UcomisdRegReg compares lhs against rhs (ZF/PF/CF set from lhs-rhs).
func (a *Arena) UcomisdRegReg(lhs, rhs xmmReg) {
	a.EmitByte(0x66)
	if lhs >= 8 || rhs >= 8 {
		a.EmitByte(rex(false, lhs >= 8, false, rhs >= 8))
	}
	a.EmitByte(0x0F)
	a.EmitByte(0x2E)
	a.EmitByte(modrm(modReg, int(lhs), int(rhs)))
}

// Cvtsi2sdRegReg converts the 64-bit integer in a GP register to a
// double in an XMM register.
func (a *Arena) Cvtsi2sdRegReg(dst xmmReg, src int) {
	a.EmitByte(0xF2)
	a.EmitByte(rex(true, dst >= 8, false, src >= 8))
	a.EmitByte(0x0F)
	a.EmitByte(0x2A)
	a.EmitByte(modrm(modReg, int(dst), src))
}

// MovqXmmGpr reinterprets the 64 raw bits of a GP register as an XMM
// register's low quadword, used to materialize a float immediate
// (loaded as its bit pattern into a GPR first, since there is no
// "move 64-bit immediate into XMM" form).
func (a *Arena) MovqXmmGpr(dst xmmReg, src int) {
	a.EmitByte(0x66)
	a.EmitByte(rex(true, dst >= 8, false, src >= 8))
	a.EmitByte(0x0F)
	a.EmitByte(0x6E)
	a.EmitByte(modrm(modReg, int(dst), src))
}

// TestRegReg computes flags for reg & reg (used to test a 0/1 boolean
// register without a comparison operand).
func (a *Arena) TestRegReg(reg int) {
	a.EmitByte(rex(true, reg >= 8, false, reg >= 8))
	a.EmitByte(0x85)
	a.EmitByte(modrm(modReg, reg, reg))
}
