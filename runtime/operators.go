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

// Generic operators: externally-callable binary/unary/compare
// primitives over tagged Values, used by both the bytecode interpreter
// and as the semantic reference the code generator's typed HIR
// arithmetic must agree with (spec.md §2 item 2, §3, §8 boundary
// behaviors).
package runtime

import (
	"math/big"
)

func toBig(v Value) *big.Int {
	switch v.Kind() {
	case KindInt:
		return big.NewInt(v.AsInt())
	case KindBigInt:
		return GetBigInt(v)
	default:
		panic("toBig on non-integral Value")
	}
}

// fromBig re-narrows a big.Int result to a fixnum when it fits,
// otherwise boxes it as a BigInt (spec.md §8: "63-bit fixnum boundary"
// transitions).
func fromBig(b *big.Int) Value {
	if b.IsInt64() {
		i := b.Int64()
		if i >= MinFixnum && i <= MaxFixnum {
			return Int(i)
		}
	}
	return NewBigInt(b)
}

func isIntegral(k Kind) bool { return k == KindInt || k == KindBigInt }

// Add implements `+`.
func Add(l, r Value) (Value, error) {
	lk, rk := l.Kind(), r.Kind()
	switch {
	case lk == KindInt && rk == KindInt:
		sum := l.AsInt() + r.AsInt()
		if sum > MaxFixnum || sum < MinFixnum {
			return fromBig(new(big.Int).Add(toBig(l), toBig(r))), nil
		}
		return Int(sum), nil
	case isIntegral(lk) && isIntegral(rk):
		return fromBig(new(big.Int).Add(toBig(l), toBig(r))), nil
	case isIntegral(lk) && rk == KindFloat:
		return Float(asF64(l) + r.AsFloat()), nil
	case lk == KindFloat && isIntegral(rk):
		return Float(l.AsFloat() + asF64(r)), nil
	case lk == KindFloat && rk == KindFloat:
		return Float(l.AsFloat() + r.AsFloat()), nil
	case lk == KindString && rk == KindString:
		return NewString(GetString(l) + GetString(r)), nil
	default:
		return Nil, &TypeError{Op: "+", Left: lk, Right: rk}
	}
}

// Sub implements `-`.
func Sub(l, r Value) (Value, error) {
	lk, rk := l.Kind(), r.Kind()
	switch {
	case lk == KindInt && rk == KindInt:
		diff := l.AsInt() - r.AsInt()
		if diff > MaxFixnum || diff < MinFixnum {
			return fromBig(new(big.Int).Sub(toBig(l), toBig(r))), nil
		}
		return Int(diff), nil
	case isIntegral(lk) && isIntegral(rk):
		return fromBig(new(big.Int).Sub(toBig(l), toBig(r))), nil
	case isIntegral(lk) && rk == KindFloat:
		return Float(asF64(l) - r.AsFloat()), nil
	case lk == KindFloat && isIntegral(rk):
		return Float(l.AsFloat() - asF64(r)), nil
	case lk == KindFloat && rk == KindFloat:
		return Float(l.AsFloat() - r.AsFloat()), nil
	default:
		return Nil, &TypeError{Op: "-", Left: lk, Right: rk}
	}
}

// Mul implements `*`.
func Mul(l, r Value) (Value, error) {
	lk, rk := l.Kind(), r.Kind()
	switch {
	case isIntegral(lk) && isIntegral(rk):
		return fromBig(new(big.Int).Mul(toBig(l), toBig(r))), nil
	case isIntegral(lk) && rk == KindFloat:
		return Float(asF64(l) * r.AsFloat()), nil
	case lk == KindFloat && isIntegral(rk):
		return Float(l.AsFloat() * asF64(r)), nil
	case lk == KindFloat && rk == KindFloat:
		return Float(l.AsFloat() * r.AsFloat()), nil
	default:
		return Nil, &TypeError{Op: "*", Left: lk, Right: rk}
	}
}

// Div implements `/`. Integer/Integer division is float division in
// this language (spec.md §8 scenario 2: `a=55; a=a/5; a` → Integer 11
// only because 55/5 divides evenly; the general rule below yields a
// Float whenever the division is inexact).
func Div(l, r Value) (Value, error) {
	lk, rk := l.Kind(), r.Kind()
	switch {
	case lk == KindInt && rk == KindInt:
		a, b := l.AsInt(), r.AsInt()
		if b != 0 && a%b == 0 {
			return Int(a / b), nil
		}
		return Float(float64(a) / float64(b)), nil
	case isIntegral(lk) && rk == KindFloat:
		return Float(asF64(l) / r.AsFloat()), nil
	case lk == KindFloat && isIntegral(rk):
		return Float(l.AsFloat() / asF64(r)), nil
	case lk == KindFloat && rk == KindFloat:
		return Float(l.AsFloat() / r.AsFloat()), nil
	default:
		return Nil, &TypeError{Op: "/", Left: lk, Right: rk}
	}
}

// Mod implements `%`.
func Mod(l, r Value) (Value, error) {
	lk, rk := l.Kind(), r.Kind()
	switch {
	case lk == KindInt && rk == KindInt:
		return Int(l.AsInt() % r.AsInt()), nil
	default:
		return Nil, &TypeError{Op: "%", Left: lk, Right: rk}
	}
}

// Neg implements unary `-`.
func Neg(v Value) (Value, error) {
	switch v.Kind() {
	case KindInt:
		n := v.AsInt()
		if n == MinFixnum {
			return fromBig(new(big.Int).Neg(toBig(v))), nil
		}
		return Int(-n), nil
	case KindFloat:
		return Float(-v.AsFloat()), nil
	case KindBigInt:
		return fromBig(new(big.Int).Neg(GetBigInt(v))), nil
	default:
		return Nil, &TypeError{Op: "unary-", Left: v.Kind(), Right: Kind(-1)}
	}
}

// Not implements logical `!`, defined for every Value via Truthy.
func Not(v Value) Value {
	return Bool(!v.Truthy())
}

// CmpResult is the three-way result of Compare.
type CmpResult int

const (
	CmpLess CmpResult = iota - 1
	CmpEqual
	CmpGreater
	CmpUnordered // only possible when a float NaN participates
)

// Compare implements the ordering used by <, <=, >, >=, ==, !=.
func Compare(l, r Value) (CmpResult, error) {
	lk, rk := l.Kind(), r.Kind()
	switch {
	case isIntegral(lk) && isIntegral(rk) && lk == KindInt && rk == KindInt:
		a, b := l.AsInt(), r.AsInt()
		switch {
		case a < b:
			return CmpLess, nil
		case a > b:
			return CmpGreater, nil
		default:
			return CmpEqual, nil
		}
	case isIntegral(lk) && isIntegral(rk):
		return CmpResult(toBig(l).Cmp(toBig(r))), nil
	case (isIntegral(lk) || lk == KindFloat) && (isIntegral(rk) || rk == KindFloat):
		a, b := asF64(l), asF64(r)
		if a != a || b != b { // NaN
			return CmpUnordered, nil
		}
		switch {
		case a < b:
			return CmpLess, nil
		case a > b:
			return CmpGreater, nil
		default:
			return CmpEqual, nil
		}
	case lk == KindString && rk == KindString:
		a, b := GetString(l), GetString(r)
		switch {
		case a < b:
			return CmpLess, nil
		case a > b:
			return CmpGreater, nil
		default:
			return CmpEqual, nil
		}
	default:
		return CmpUnordered, &TypeError{Op: "compare", Left: lk, Right: rk}
	}
}

// asF64 widens an integral Value to float64 for mixed-type arithmetic
// (the runtime-level equivalent of HIR's IntAsFloat, spec.md §4.2).
func asF64(v Value) float64 {
	switch v.Kind() {
	case KindInt:
		return float64(v.AsInt())
	case KindBigInt:
		f, _ := new(big.Float).SetInt(GetBigInt(v)).Float64()
		return f
	default:
		panic("asF64 on non-integral Value")
	}
}

// ShiftLeft and ShiftRight implement `<<`/`>>`; a shift amount of 64 or
// more saturates to 0 (spec.md §8 boundary behaviors), matching the
// x86 SHL/SHR instructions' undefined behavior being avoided rather
// than relied upon.
func ShiftLeft(l, r Value) (Value, error) {
	if l.Kind() != KindInt || r.Kind() != KindInt {
		return Nil, &TypeError{Op: "<<", Left: l.Kind(), Right: r.Kind()}
	}
	n := r.AsInt()
	if n < 0 || n >= 64 {
		return Int(0), nil
	}
	return Int(l.AsInt() << uint(n)), nil
}

func ShiftRight(l, r Value) (Value, error) {
	if l.Kind() != KindInt || r.Kind() != KindInt {
		return Nil, &TypeError{Op: ">>", Left: l.Kind(), Right: r.Kind()}
	}
	n := r.AsInt()
	if n < 0 || n >= 64 {
		return Int(0), nil
	}
	return Int(l.AsInt() >> uint(n)), nil
}

// BitAnd, BitOr, BitXor implement `&`, `|`, `^` over fixnums.
func BitAnd(l, r Value) (Value, error) {
	if l.Kind() != KindInt || r.Kind() != KindInt {
		return Nil, &TypeError{Op: "&", Left: l.Kind(), Right: r.Kind()}
	}
	return Int(l.AsInt() & r.AsInt()), nil
}

func BitOr(l, r Value) (Value, error) {
	if l.Kind() != KindInt || r.Kind() != KindInt {
		return Nil, &TypeError{Op: "|", Left: l.Kind(), Right: r.Kind()}
	}
	return Int(l.AsInt() | r.AsInt()), nil
}

func BitXor(l, r Value) (Value, error) {
	if l.Kind() != KindInt || r.Kind() != KindInt {
		return Nil, &TypeError{Op: "^", Left: l.Kind(), Right: r.Kind()}
	}
	return Int(l.AsInt() ^ r.AsInt()), nil
}
