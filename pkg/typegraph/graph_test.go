package typegraph

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numericGraph(t *testing.T) *Graph {
	t.Helper()
	g := New()
	require.NoError(t, g.Declare("Cool"))
	require.NoError(t, g.Declare("Numeric", "Cool"))
	require.NoError(t, g.Declare("Real", "Numeric"))
	require.NoError(t, g.Declare("Int", "Real"))
	require.NoError(t, g.Declare("Stringy"))
	require.NoError(t, g.Declare("Str", "Stringy", "Cool"))
	// two routes to Cool: through Numeric (long) and directly (short)
	require.NoError(t, g.Declare("IntStr", "Int", "Str"))
	return g
}

func TestDistance(t *testing.T) {
	g := numericGraph(t)

	for _, name := range g.Names() {
		d, ok := g.Distance(name, name)
		require.True(t, ok, name)
		assert.Equal(t, 0, d, name)
		assert.True(t, g.ConformsTo(name, Any), name)
	}

	tests := []struct {
		from, to string
		want     int
		ok       bool
	}{
		{"Int", "Real", 1, true},
		{"Int", "Numeric", 2, true},
		{"Int", "Cool", 3, true},
		{"Int", Any, 4, true},
		{"IntStr", "Cool", 2, true},
		{"IntStr", "Stringy", 2, true},
		{"IntStr", Any, 3, true},
		{"Real", "Int", 0, false},
		{"Str", "Numeric", 0, false},
		{"Int", "Nope", 0, false},
		{"Nope", Any, 0, false},
	}
	for _, tt := range tests {
		d, ok := g.Distance(tt.from, tt.to)
		assert.Equal(t, tt.ok, ok, "%s -> %s", tt.from, tt.to)
		assert.Equal(t, tt.want, d, "%s -> %s", tt.from, tt.to)
		assert.Equal(t, tt.ok, g.ConformsTo(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestConformsToIsTransitive(t *testing.T) {
	g := numericGraph(t)
	names := g.Names()
	for _, a := range names {
		for _, b := range names {
			for _, c := range names {
				if g.ConformsTo(a, b) && g.ConformsTo(b, c) {
					assert.True(t, g.ConformsTo(a, c), "%s <: %s <: %s", a, b, c)
				}
			}
		}
	}
}

func TestDeclareErrors(t *testing.T) {
	g := New()
	require.NoError(t, g.Declare("Int"))

	err := g.Declare("Int")
	assert.True(t, errors.Is(err, ErrRedeclared))

	err = g.Declare("Rat", "Real")
	assert.True(t, errors.Is(err, ErrUnknownType))
	assert.False(t, g.Has("Rat"))

	assert.Error(t, g.Declare(""))
}

func TestExtendRejectsCycles(t *testing.T) {
	g := numericGraph(t)
	before := g.Version()

	err := g.Extend("Numeric", "Int")
	var cycle *CycleError
	require.True(t, errors.As(err, &cycle))
	assert.True(t, errors.Is(err, ErrCycle))
	assert.Equal(t, []string{"Int", "Real", "Numeric"}, cycle.Path)
	assert.Equal(t, "Numeric cannot conform to Int: Int -> Real -> Numeric -> Int", err.Error())
	assert.Equal(t, before, g.Version())
	assert.False(t, g.ConformsTo("Numeric", "Int"))

	assert.True(t, errors.Is(g.Extend("Int", "Int"), ErrCycle))
	assert.True(t, errors.Is(g.Extend(Any, "Int"), ErrCycle))
}

func TestExtend(t *testing.T) {
	g := numericGraph(t)
	require.NoError(t, g.Declare("Rat", "Real"))
	before := g.Version()

	require.NoError(t, g.Extend("Int", "Rat"))
	assert.Greater(t, g.Version(), before)
	assert.Equal(t, []string{"Real", "Rat"}, g.Supertypes("Int"))

	d, ok := g.Distance("Int", "Rat")
	require.True(t, ok)
	assert.Equal(t, 1, d)

	// repeated edges are a no-op
	v := g.Version()
	require.NoError(t, g.Extend("Int", "Rat"))
	assert.Equal(t, v, g.Version())

	assert.True(t, errors.Is(g.Extend("Int", "Nope"), ErrUnknownType))
}

func TestSubs(t *testing.T) {
	var s Subs
	s2 := s.Bind("T", "Int")
	s3 := s2.Bind("U", "Str")
	s4 := s3.Bind("T", "Real")

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 1, s2.Len())

	got, ok := s3.Get("T")
	require.True(t, ok)
	assert.Equal(t, "Int", got)

	got, _ = s4.Get("T")
	assert.Equal(t, "Real", got)
	assert.Equal(t, "{::T=Real, ::U=Str}", s4.String())

	_, ok = s2.Get("U")
	assert.False(t, ok)

	var order []TypeVariable
	s4.Each(func(tv TypeVariable, _ string) { order = append(order, tv) })
	assert.Equal(t, []TypeVariable{"T", "U"}, order)
}
