package dispatch

import (
	"reflect"

	"github.com/pkg/errors"
)

// Constraint narrows a parameter beyond its nominal type. It sees the
// argument being bound and every parameter bound before it. Returning an
// error disqualifies the candidate just like returning false.
type Constraint func(arg Arg, bound *Bindings) (bool, error)

// Defined accepts arguments that carry a value.
var Defined Constraint = func(arg Arg, _ *Bindings) (bool, error) {
	return arg.Defined(), nil
}

// Undefined accepts arguments without a value.
var Undefined Constraint = func(arg Arg, _ *Bindings) (bool, error) {
	return !arg.Defined(), nil
}

// Func adapts a plain predicate over the argument value.
func Func(fn func(v any) bool) Constraint {
	return func(arg Arg, _ *Bindings) (bool, error) {
		return fn(arg.Value), nil
	}
}

// Equals accepts an argument deeply equal to v.
func Equals(v any) Constraint {
	return func(arg Arg, _ *Bindings) (bool, error) {
		return reflect.DeepEqual(arg.Value, v), nil
	}
}

// OneOf accepts an argument equal to any of vs.
func OneOf(vs ...any) Constraint {
	return func(arg Arg, _ *Bindings) (bool, error) {
		for _, v := range vs {
			if reflect.DeepEqual(arg.Value, v) {
				return true, nil
			}
		}
		return false, nil
	}
}

// SameAs accepts an argument whose value equals the already bound
// parameter.
func SameAs(param string) Constraint {
	return func(arg Arg, bound *Bindings) (bool, error) {
		other, ok := bound.Arg(param)
		if !ok {
			return false, errors.Errorf("parameter %q is not bound yet", param)
		}
		return reflect.DeepEqual(arg.Value, other.Value), nil
	}
}

func Not(c Constraint) Constraint {
	return func(arg Arg, bound *Bindings) (bool, error) {
		ok, err := c(arg, bound)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

// Every accepts when every constraint does, stopping at the first refusal.
func Every(cs ...Constraint) Constraint {
	return func(arg Arg, bound *Bindings) (bool, error) {
		for _, c := range cs {
			ok, err := c(arg, bound)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

// Either accepts when any constraint does.
func Either(cs ...Constraint) Constraint {
	return func(arg Arg, bound *Bindings) (bool, error) {
		for _, c := range cs {
			ok, err := c(arg, bound)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}
