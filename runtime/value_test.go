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
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFixnumRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, MaxFixnum, MinFixnum, 12345, -98765} {
		val := Int(v)
		require.Equal(t, KindInt, val.Kind())
		require.Equal(t, v, val.AsInt())
	}
}

func TestFloatRoundTrip(t *testing.T) {
	for _, f := range []float64{0, 1.5, -1.5, 3.1415926535, -0.0} {
		val := Float(f)
		require.Equal(t, KindFloat, val.Kind())
		require.Equal(t, f, val.AsFloat())
	}
}

func TestFloatNaNDoesNotAliasTagSpace(t *testing.T) {
	val := Float(math.NaN())
	require.Equal(t, KindFloat, val.Kind())
	require.True(t, math.IsNaN(val.AsFloat()))
}

func TestNilBoolSingletons(t *testing.T) {
	require.Equal(t, KindNil, Nil.Kind())
	require.Equal(t, KindBool, True.Kind())
	require.Equal(t, KindBool, False.Kind())
	require.True(t, True.AsBool())
	require.False(t, False.AsBool())
}

func TestTruthy(t *testing.T) {
	require.False(t, Nil.Truthy())
	require.False(t, False.Truthy())
	require.True(t, True.Truthy())
	require.True(t, Int(0).Truthy())
	require.True(t, Float(0).Truthy())
}

func TestStringBoxing(t *testing.T) {
	v := NewString("hello")
	require.Equal(t, KindString, v.Kind())
	require.Equal(t, "hello", GetString(v))
}

func TestValueEq(t *testing.T) {
	require.True(t, Int(5).Eq(Int(5)))
	require.False(t, Int(5).Eq(Int(6)))
	require.True(t, Float(1.5).Eq(Float(1.5)))
	require.False(t, Float(math.NaN()).Eq(Float(math.NaN())))
	require.False(t, Int(5).Eq(Float(5)))
	require.True(t, NewString("a").Eq(NewString("a")))
}
