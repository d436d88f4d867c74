package typegraph

import "strings"

// TypeVariable names a type captured from an argument's runtime type.
type TypeVariable string

// Substitution binds a single type variable to a concrete type.
type Substitution struct {
	Tv TypeVariable
	T  string
}

// Subs is the ordered set of type captures made while matching one
// signature. It is small, so lookups are linear.
type Subs []Substitution

// Get returns the type bound to tv.
func (s Subs) Get(tv TypeVariable) (string, bool) {
	for _, sub := range s {
		if sub.Tv == tv {
			return sub.T, true
		}
	}
	return "", false
}

// Bind returns s extended with tv => t. Rebinding an existing variable
// replaces it in place.
func (s Subs) Bind(tv TypeVariable, t string) Subs {
	for i, sub := range s {
		if sub.Tv == tv {
			out := s.Clone()
			out[i].T = t
			return out
		}
	}
	return append(s.Clone(), Substitution{Tv: tv, T: t})
}

func (s Subs) Len() int {
	return len(s)
}

// Each calls fn for every binding in capture order.
func (s Subs) Each(fn func(TypeVariable, string)) {
	for _, sub := range s {
		fn(sub.Tv, sub.T)
	}
}

func (s Subs) Clone() Subs {
	if s == nil {
		return nil
	}
	out := make(Subs, len(s), len(s)+1)
	copy(out, s)
	return out
}

func (s Subs) String() string {
	parts := make([]string, len(s))
	for i, sub := range s {
		parts[i] = "::" + string(sub.Tv) + "=" + sub.T
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
