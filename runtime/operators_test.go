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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddFixnumOverflowBoxesBigInt(t *testing.T) {
	v, err := Add(Int(MaxFixnum), Int(1))
	require.NoError(t, err)
	require.Equal(t, KindBigInt, v.Kind())
	require.Equal(t, "4611686018427387904", GetBigInt(v).String())
}

func TestSubFixnumUnderflowBoxesBigInt(t *testing.T) {
	v, err := Sub(Int(MinFixnum), Int(1))
	require.NoError(t, err)
	require.Equal(t, KindBigInt, v.Kind())
	require.Equal(t, "-4611686018427387905", GetBigInt(v).String())
}

func TestAddMixedIntFloatPromotes(t *testing.T) {
	v, err := Add(Int(2), Float(3.5))
	require.NoError(t, err)
	require.Equal(t, KindFloat, v.Kind())
	require.Equal(t, 5.5, v.AsFloat())
}

func TestDivExactStaysInteger(t *testing.T) {
	v, err := Div(Int(55), Int(5))
	require.NoError(t, err)
	require.Equal(t, KindInt, v.Kind())
	require.Equal(t, int64(11), v.AsInt())
}

func TestDivInexactProducesFloat(t *testing.T) {
	v, err := Div(Int(7), Int(2))
	require.NoError(t, err)
	require.Equal(t, KindFloat, v.Kind())
	require.Equal(t, 3.5, v.AsFloat())
}

func TestAddTypeMismatchIsTypeError(t *testing.T) {
	_, err := Add(Int(1), Bool(true))
	require.Error(t, err)
	var typeErr *TypeError
	require.ErrorAs(t, err, &typeErr)
}

func TestShiftSaturatesAtSixtyFour(t *testing.T) {
	v, err := ShiftLeft(Int(1), Int(64))
	require.NoError(t, err)
	require.Equal(t, int64(0), v.AsInt())

	v, err = ShiftRight(Int(1024), Int(100))
	require.NoError(t, err)
	require.Equal(t, int64(0), v.AsInt())
}

func TestCompareOrdering(t *testing.T) {
	r, err := Compare(Int(1), Int(2))
	require.NoError(t, err)
	require.Equal(t, CmpLess, r)

	r, err = Compare(Float(2.9), Int(2))
	require.NoError(t, err)
	require.Equal(t, CmpGreater, r)
}

func TestScenario1(t *testing.T) {
	// 4 * (2.9 + 7 / (1.15 - 6))
	sub, err := Sub(Float(1.15), Int(6))
	require.NoError(t, err)
	div, err := Div(Int(7), sub)
	require.NoError(t, err)
	add, err := Add(Float(2.9), div)
	require.NoError(t, err)
	mul, err := Mul(Int(4), add)
	require.NoError(t, err)
	require.Equal(t, KindFloat, mul.Kind())
	require.InDelta(t, 5.826804, mul.AsFloat(), 0.0001)
}
