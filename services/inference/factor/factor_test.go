// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package factor

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-12

func mustTable(t *testing.T, vs []Variable, values ...float64) *Factor {
	t.Helper()
	f, err := NewTable(vs, values)
	require.NoError(t, err)
	return f
}

func randomFactor(t *testing.T, rng *rand.Rand, vs []Variable) *Factor {
	t.Helper()
	values := make([]float64, 1<<len(vs))
	for i := range values {
		values[i] = rng.Float64()
	}
	return mustTable(t, vs, values...)
}

// ---------------------------------------------------------------------------
// Construction and access
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		vars []Variable
		err  error
	}{
		{"no variables", nil, ErrNoVariables},
		{"duplicate", vars("A", "B", "A"), ErrDuplicateVariable},
		{"too many", make([]Variable, MaxVariables+1), ErrTooManyVariables},
		{"ok", vars("A", "B"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.name == "too many" {
				for i := range tt.vars {
					tt.vars[i] = NewVariable(string(rune('a' + i)))
				}
			}
			f, err := New(tt.vars...)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 4, f.Size())
			assert.False(t, f.Complete())
		})
	}
}

func TestNewTable(t *testing.T) {
	_, err := NewTable(vars("A"), []float64{1})
	assert.ErrorIs(t, err, ErrCardinality)

	_, err = NewTable(vars("A"), []float64{1, math.NaN()})
	assert.ErrorIs(t, err, ErrInvalidValue)

	values := []float64{0.1, 0.9}
	f, err := NewTable(vars("A"), values)
	require.NoError(t, err)
	values[0] = 7
	got, _ := f.Value(false)
	assert.Equal(t, 0.1, got, "values must be copied")
}

func TestSetAndGet(t *testing.T) {
	a, b := NewVariable("A"), NewVariable("B")
	f, err := New(a, b)
	require.NoError(t, err)

	require.NoError(t, f.SetValue(0.3, true, false))
	assert.ErrorIs(t, f.SetValue(1, true), ErrCardinality)
	assert.ErrorIs(t, f.SetValue(math.NaN(), true, true), ErrInvalidValue)

	v, err := f.ValueAtIndex(1)
	require.NoError(t, err)
	assert.Equal(t, 0.3, v)

	_, err = f.Value(false, false)
	assert.ErrorIs(t, err, ErrUndefinedValue)
	_, err = f.ValueAtIndex(4)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	// SetAt looks variables up by identity, in any order, ignoring extras.
	asg, _ := NewAssignment([]Variable{NewVariable("C"), b, a}, true, true, false)
	require.NoError(t, f.SetAt(0.5, asg))
	v, err = f.Value(false, true)
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	missing, _ := NewAssignment([]Variable{a}, true)
	assert.ErrorIs(t, f.SetAt(1, missing), ErrVariableNotPresent)

	_, err = f.Values()
	assert.ErrorIs(t, err, ErrUndefinedValue)
	_, err = f.SumOut(a)
	assert.ErrorIs(t, err, ErrUndefinedValue)

	require.NoError(t, f.SetValue(0.1, false, false))
	require.NoError(t, f.SetValue(0.1, true, true))
	assert.True(t, f.Complete())

	// Overwriting a complete factor keeps it complete.
	require.NoError(t, f.SetValue(0.2, true, true))
	assert.True(t, f.Complete())
	sum, err := f.Sum()
	require.NoError(t, err)
	assert.InDelta(t, 1.1, sum, tol)
}

func TestClone(t *testing.T) {
	f, err := New(vars("A")...)
	require.NoError(t, err)
	require.NoError(t, f.SetValue(1, true))

	c := f.Clone()
	require.NoError(t, c.SetValue(2, false))
	assert.True(t, c.Complete())
	assert.False(t, f.Complete(), "clone must not share tracking")
}

// ---------------------------------------------------------------------------
// Algebra
// ---------------------------------------------------------------------------

func TestRestrict(t *testing.T) {
	a, b := NewVariable("A"), NewVariable("B")
	// f(A,B) indexed [~A~B, A~B, ~AB, AB]
	f := mustTable(t, []Variable{a, b}, 1, 2, 3, 4)

	t.Run("first variable", func(t *testing.T) {
		r, err := f.Restrict(a, true)
		require.NoError(t, err)
		assert.Equal(t, []Variable{b}, r.Variables())
		values, _ := r.Values()
		assert.Equal(t, []float64{2, 4}, values)
	})

	t.Run("last variable", func(t *testing.T) {
		r, err := f.Restrict(b, false)
		require.NoError(t, err)
		values, _ := r.Values()
		assert.Equal(t, []float64{1, 2}, values)
	})

	t.Run("down to scalar", func(t *testing.T) {
		r, err := f.Restrict(a, false)
		require.NoError(t, err)
		s, err := r.Restrict(b, true)
		require.NoError(t, err)
		assert.True(t, s.IsScalar())
		assert.Equal(t, "f(-)", s.String())
		v, err := s.Value()
		require.NoError(t, err)
		assert.Equal(t, 3.0, v)
	})

	t.Run("absent variable", func(t *testing.T) {
		_, err := f.Restrict(NewVariable("C"), true)
		assert.ErrorIs(t, err, ErrVariableNotPresent)
	})

	t.Run("input unchanged", func(t *testing.T) {
		values, _ := f.Values()
		assert.Equal(t, []float64{1, 2, 3, 4}, values)
	})
}

// TestRestrictCardinality verifies restriction always drops exactly one variable.
func TestRestrictCardinality(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	vs := vars("A", "B", "C", "D", "E")
	f := randomFactor(t, rng, vs)
	for _, v := range vs {
		for _, value := range []bool{false, true} {
			r, err := f.Restrict(v, value)
			require.NoError(t, err)
			assert.Equal(t, len(vs)-1, r.NumVariables())
			assert.Equal(t, 1<<(len(vs)-1), r.Size())
			assert.False(t, r.Contains(v))
		}
	}
}

// TestSumOutConservation verifies marginalizing keeps the total mass.
func TestSumOutConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	vs := vars("A", "B", "C", "D")
	f := randomFactor(t, rng, vs)
	total, _ := f.Sum()
	for _, v := range vs {
		s, err := f.SumOut(v)
		require.NoError(t, err)
		sum, _ := s.Sum()
		assert.InDelta(t, total, sum, 1e-9)
		assert.Equal(t, 3, s.NumVariables())
	}
}

func TestSumOut(t *testing.T) {
	a, b := NewVariable("A"), NewVariable("B")
	f := mustTable(t, []Variable{a, b}, 1, 2, 3, 4)

	s, err := f.SumOut(b)
	require.NoError(t, err)
	values, _ := s.Values()
	assert.Equal(t, []float64{4, 6}, values)

	s, err = f.SumOut(a)
	require.NoError(t, err)
	values, _ = s.Values()
	assert.Equal(t, []float64{3, 7}, values)

	_, err = s.SumOut(a)
	assert.ErrorIs(t, err, ErrVariableNotPresent)
}

// TestMultiplyDisjoint verifies the product of factors over disjoint variables.
func TestMultiplyDisjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	left, right := vars("A", "B"), vars("C", "D", "E")
	f1 := randomFactor(t, rng, left)
	f2 := randomFactor(t, rng, right)

	p, err := Multiply(f1, f2)
	require.NoError(t, err)
	assert.Equal(t, 1<<5, p.Size())

	for a1 := range All(left) {
		for a2 := range All(right) {
			m, err := Merge(a1, a2)
			require.NoError(t, err)
			got, err := p.At(m)
			require.NoError(t, err)
			x1, _ := f1.At(a1)
			x2, _ := f2.At(a2)
			assert.InDelta(t, x1*x2, got, tol)
		}
	}
}

// multiplyByEnumeration is the reference product over consistent pairs.
func multiplyByEnumeration(t *testing.T, f1, f2 *Factor) map[string]float64 {
	t.Helper()
	out := make(map[string]float64)
	for a1 := range All(f1.Variables()) {
		for a2 := range All(f2.Variables()) {
			if !Consistent(a1, a2) {
				continue
			}
			m, err := Merge(a1, a2)
			require.NoError(t, err)
			x1, _ := f1.At(a1)
			x2, _ := f2.At(a2)
			out[m.String()] = x1 * x2
		}
	}
	return out
}

func TestMultiplyOverlapping(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	tests := []struct {
		name        string
		left, right []string
	}{
		{"shared prefix", []string{"A", "B"}, []string{"A", "C"}},
		{"shared suffix", []string{"A", "B", "C"}, []string{"D", "C"}},
		{"identical", []string{"A", "B"}, []string{"B", "A"}},
		{"subset", []string{"A", "B", "C"}, []string{"B"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f1 := randomFactor(t, rng, vars(tt.left...))
			f2 := randomFactor(t, rng, vars(tt.right...))
			p, err := Multiply(f1, f2)
			require.NoError(t, err)

			want := multiplyByEnumeration(t, f1, f2)
			got := make(map[string]float64, p.Size())
			for a := range All(p.Variables()) {
				got[a.String()], err = p.At(a)
				require.NoError(t, err)
			}
			if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, tol)); diff != "" {
				t.Errorf("product mismatch (-enumerated +Multiply):\n%s", diff)
			}
		})
	}
}

func TestMultiplyScalar(t *testing.T) {
	a := NewVariable("A")
	f := mustTable(t, []Variable{a}, 0.1, 0.9)
	s, err := f.Restrict(a, true)
	require.NoError(t, err)

	for _, p := range []func() (*Factor, error){
		func() (*Factor, error) { return Multiply(f, s) },
		func() (*Factor, error) { return Multiply(s, f) },
	} {
		got, err := p()
		require.NoError(t, err)
		values, _ := got.Values()
		assert.InDeltaSlice(t, []float64{0.09, 0.81}, values, tol)
	}
}

func TestMultiplyAll(t *testing.T) {
	_, err := MultiplyAll(nil)
	assert.ErrorIs(t, err, ErrEmptyProduct)

	a, b := NewVariable("A"), NewVariable("B")
	fa := mustTable(t, []Variable{a}, 0.1, 0.9)
	fab := mustTable(t, []Variable{a, b}, 0.5, 0.8, 0.5, 0.2)

	single, err := MultiplyAll([]*Factor{fa})
	require.NoError(t, err)
	assert.NotSame(t, fa, single)
	assert.True(t, fa.ApproxEqual(single, 0))

	p, err := MultiplyAll([]*Factor{fa, fab})
	require.NoError(t, err)
	values, _ := p.Values()
	assert.InDeltaSlice(t, []float64{0.05, 0.72, 0.05, 0.18}, values, tol)
}

func TestObserve(t *testing.T) {
	a, b := NewVariable("A"), NewVariable("B")
	f := mustTable(t, []Variable{a, b}, 1, 2, 3, 4)

	o, err := f.Observe(b, true)
	require.NoError(t, err)
	assert.Equal(t, f.Variables(), o.Variables())
	values, _ := o.Values()
	assert.Equal(t, []float64{0, 0, 3, 4}, values)
}

// TestNormalizeIdempotence verifies normalizing twice changes nothing.
func TestNormalizeIdempotence(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	f := randomFactor(t, rng, vars("A", "B", "C"))

	n1, err := f.Normalize()
	require.NoError(t, err)
	sum, _ := n1.Sum()
	assert.InDelta(t, 1.0, sum, 1e-12)

	n2, err := n1.Normalize()
	require.NoError(t, err)
	assert.True(t, n1.ApproxEqual(n2, 1e-12))
}

func TestNormalizeZeroSum(t *testing.T) {
	f := mustTable(t, vars("A"), 0, 0)
	_, err := f.Normalize()
	assert.ErrorIs(t, err, ErrZeroSum)
}

func TestReorder(t *testing.T) {
	a, b, c := NewVariable("A"), NewVariable("B"), NewVariable("C")
	rng := rand.New(rand.NewSource(6))
	f := randomFactor(t, rng, []Variable{a, b, c})

	r, err := f.Reorder([]Variable{c, a, b})
	require.NoError(t, err)
	assert.Equal(t, []Variable{c, a, b}, r.Variables())
	for asg := range All(f.Variables()) {
		want, _ := f.At(asg)
		got, err := r.At(asg)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.True(t, f.ApproxEqual(r, 0))

	_, err = f.Reorder([]Variable{a, b})
	assert.ErrorIs(t, err, ErrCardinality)
	_, err = f.Reorder([]Variable{a, b, NewVariable("D")})
	assert.ErrorIs(t, err, ErrVariableNotPresent)
	_, err = f.Reorder([]Variable{a, a, b})
	assert.ErrorIs(t, err, ErrDuplicateVariable)
}

func TestArgMax(t *testing.T) {
	f := mustTable(t, vars("A", "B"), 0.1, 0.4, 0.4, 0.1)
	a, v, err := f.ArgMax()
	require.NoError(t, err)
	assert.Equal(t, 0.4, v)
	assert.Equal(t, "A,~B", a.String(), "ties resolve to the lowest index")
}

func TestApproxEqual(t *testing.T) {
	f := mustTable(t, vars("A"), 0.1, 0.9)
	assert.True(t, f.ApproxEqual(mustTable(t, vars("A"), 0.1+1e-10, 0.9), 1e-9))
	assert.False(t, f.ApproxEqual(mustTable(t, vars("A"), 0.2, 0.8), 1e-9))
	assert.False(t, f.ApproxEqual(mustTable(t, vars("B"), 0.1, 0.9), 1e-9))
}

func TestFormat(t *testing.T) {
	f := mustTable(t, vars("A", "B"), 0.25, 0.5, 0, 1)
	assert.Equal(t, "f(A,B)", f.String())
	want := "f(~A,~B) = 0.25\n" +
		"f( A,~B) = 0.5\n" +
		"f(~A, B) = 0\n" +
		"f( A, B) = 1\n"
	assert.Equal(t, want, f.Table())

	partial, _ := New(vars("A")...)
	_ = partial.SetValue(0.5, true)
	assert.Equal(t, "f(~A) = ?\nf( A) = 0.5\n", partial.Table())
}

// ---------------------------------------------------------------------------
// End-to-end scenarios
// ---------------------------------------------------------------------------

func chain(t *testing.T) (a, b Variable, pa, pba *Factor) {
	a, b = NewVariable("A"), NewVariable("B")
	pa = mustTable(t, []Variable{a}, 0.1, 0.9)
	// P(B|A) over (B,A): [~B~A, B~A, ~BA, BA]
	pba = mustTable(t, []Variable{b, a}, 0.5, 0.5, 0.8, 0.2)
	return a, b, pa, pba
}

func TestChainMarginal(t *testing.T) {
	a, _, pa, pba := chain(t)
	joint, err := Multiply(pa, pba)
	require.NoError(t, err)
	marginal, err := joint.SumOut(a)
	require.NoError(t, err)

	pbF, _ := marginal.Value(false)
	pbT, _ := marginal.Value(true)
	assert.InDelta(t, 0.23, pbT, 1e-12)
	assert.InDelta(t, 0.77, pbF, 1e-12)
}

func TestChainWithEvidence(t *testing.T) {
	a, _, pa, pba := chain(t)
	ra, err := pa.Restrict(a, true)
	require.NoError(t, err)
	rba, err := pba.Restrict(a, true)
	require.NoError(t, err)
	p, err := Multiply(rba, ra)
	require.NoError(t, err)
	n, err := p.Normalize()
	require.NoError(t, err)

	values, _ := n.Values()
	assert.InDeltaSlice(t, []float64{0.8, 0.2}, values, 1e-12)
}

func TestSelfProductWithRestriction(t *testing.T) {
	a := NewVariable("A")
	f1 := mustTable(t, []Variable{a}, 0.1, 0.9)

	t.Run("restriction scales by the restricted entry", func(t *testing.T) {
		r, err := f1.Restrict(a, true)
		require.NoError(t, err)
		p, err := Multiply(f1, r)
		require.NoError(t, err)
		vT, _ := p.Value(true)
		vF, _ := p.Value(false)
		assert.InDelta(t, 0.81, vT, tol)
		assert.InDelta(t, 0.09, vF, tol)
	})

	t.Run("observation zeroes the inconsistent entry", func(t *testing.T) {
		o, err := f1.Observe(a, true)
		require.NoError(t, err)
		p, err := Multiply(f1, o)
		require.NoError(t, err)
		vT, _ := p.Value(true)
		vF, _ := p.Value(false)
		assert.InDelta(t, 0.81, vT, tol)
		assert.Equal(t, 0.0, vF)
	})
}
