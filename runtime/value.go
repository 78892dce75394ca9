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

// Package runtime implements the tagged Value representation shared by
// the bytecode interpreter and JIT-compiled code (SPEC_FULL.md
// "Value Representation", "Generic Operators").
package runtime

import (
	"math"

	"corvus/utils"
)

// Value is a 64-bit tagged immediate. Every bit pattern is either a
// fixnum, a float, or a member of the reserved negative-NaN space that
// encodes nil/bool/symbol/boxed-heap-object.
type Value uint64

// Kind is the runtime variant of a Value, the "unpack" view named in
// the data model.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindBool
	KindNil
	KindSymbol
	KindString
	KindBigInt
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "Integer"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Bool"
	case KindNil:
		return "Nil"
	case KindSymbol:
		return "Symbol"
	case KindString:
		return "String"
	case KindBigInt:
		return "BigInt"
	default:
		return "<invalid-kind>"
	}
}

// Fixnum bounds: a 63-bit signed integer living in the low 63 bits of
// the tagged word (tag bit is the LSB). Arithmetic that would carry a
// result outside this range must box a BigInt instead of wrapping.
const (
	MaxFixnum int64 = 1<<62 - 1
	MinFixnum int64 = -(1 << 62)
)

// negNaNBase marks the reserved payload space: sign bit set, exponent
// all ones, quiet-NaN bit set. A real float64 division result that
// produces NaN is canonicalized to the *positive* quiet NaN pattern
// (math.NaN()'s bit pattern, sign bit clear) and is therefore never
// confused with this space. Fixnums are distinguished by the LSB and
// are checked only once the negNaNBase membership test has failed,
// since the two encodings would otherwise collide on payloads with an
// odd low bit.
const negNaNBase uint64 = 0xFFF8000000000000

const (
	tagShift   = 48
	tagMask    = 0x7
	payloadBit = 0xFFFFFFFFFFFF // low 48 bits
)

const (
	tagNil uint64 = iota
	tagBoolFalse
	tagBoolTrue
	tagSymbol
	tagString
	tagBigInt
)

func boxTagged(tag uint64, payload uint64) Value {
	return Value(negNaNBase | (tag << tagShift) | (payload & payloadBit))
}

func isTagged(bits uint64) bool {
	return bits&negNaNBase == negNaNBase
}

// Nil is the singleton nil value.
var Nil = boxTagged(tagNil, 0)

// True and False are the singleton boolean values.
var (
	True  = boxTagged(tagBoolTrue, 0)
	False = boxTagged(tagBoolFalse, 0)
)

// Int boxes a fixnum. The caller is responsible for range-checking
// against [MinFixnum, MaxFixnum]; use of a value outside that range is
// a programming error in this package (bigints must go through
// NewBigInt instead).
func Int(v int64) Value {
	utils.Assert(v >= MinFixnum && v <= MaxFixnum, "fixnum %d out of range", v)
	return Value(uint64(v<<1) | 1)
}

// Float boxes an f64. NaN payloads are canonicalized to math.NaN()'s
// bit pattern so they never alias the reserved tag space.
func Float(f float64) Value {
	if math.IsNaN(f) {
		return Value(math.Float64bits(math.NaN()))
	}
	bits := math.Float64bits(f)
	utils.Assert(!isTagged(bits), "float bit pattern collides with tag space")
	return Value(bits)
}

// Bool boxes a boolean.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Symbol boxes a symbol id (an external identifier-table index, per
// spec.md §6).
func Symbol(id uint32) Value {
	return boxTagged(tagSymbol, uint64(id))
}

func boxHeap(tag uint64, idx uint32) Value {
	return boxTagged(tag, uint64(idx))
}

// Kind reports the variant of v.
func (v Value) Kind() Kind {
	bits := uint64(v)
	if isTagged(bits) {
		switch (bits >> tagShift) & tagMask {
		case tagNil:
			return KindNil
		case tagBoolFalse, tagBoolTrue:
			return KindBool
		case tagSymbol:
			return KindSymbol
		case tagString:
			return KindString
		case tagBigInt:
			return KindBigInt
		default:
			utils.ShouldNotReachHere()
		}
	}
	if bits&1 == 1 {
		return KindInt
	}
	return KindFloat
}

// IsNil reports whether v is the nil value.
func (v Value) IsNil() bool { return v == Nil }

// AsInt unpacks a fixnum. The caller must have checked Kind() == KindInt.
func (v Value) AsInt() int64 {
	utils.Assert(v.Kind() == KindInt, "AsInt on non-integer Value")
	return int64(v) >> 1
}

// AsFloat unpacks a float. The caller must have checked Kind() == KindFloat.
func (v Value) AsFloat() float64 {
	utils.Assert(v.Kind() == KindFloat, "AsFloat on non-float Value")
	return math.Float64frombits(uint64(v))
}

// AsBool unpacks a boolean. The caller must have checked Kind() == KindBool.
func (v Value) AsBool() bool {
	utils.Assert(v.Kind() == KindBool, "AsBool on non-bool Value")
	return uint64(v)>>tagShift&tagMask == tagBoolTrue
}

// AsSymbol unpacks a symbol id. The caller must have checked Kind() == KindSymbol.
func (v Value) AsSymbol() uint32 {
	utils.Assert(v.Kind() == KindSymbol, "AsSymbol on non-symbol Value")
	return uint32(uint64(v) & payloadBit)
}

func (v Value) heapIndex() uint32 {
	return uint32(uint64(v) & payloadBit)
}

// Truthy implements the language's truthiness rule: everything is
// truthy except nil and false.
func (v Value) Truthy() bool {
	if v == Nil || v == False {
		return false
	}
	return true
}

// Eq implements Value::eq from spec.md §6: used by the test harness to
// compare interpreter and JIT results. NaN is not equal to itself,
// matching IEEE-754 float semantics; every other variant compares by
// value.
func (v Value) Eq(o Value) bool {
	if v.Kind() == KindFloat && o.Kind() == KindFloat {
		return v.AsFloat() == o.AsFloat()
	}
	if v.Kind() != o.Kind() {
		return false
	}
	switch v.Kind() {
	case KindString:
		return GetString(v) == GetString(o)
	case KindBigInt:
		return GetBigInt(v).Cmp(GetBigInt(o)) == 0
	default:
		return v == o
	}
}
