package catalog

import (
	"errors"
	"fmt"
	"math"

	"formulagraph/internal/registry"
	"formulagraph/internal/types"
)

// builtins is the arithmetic core: enough to declare a site's
// derivation chains without writing Go. Each builder validates its
// entry shape up front so a malformed catalog fails at load, not mid-run.
var builtins = map[string]Builder{
	"const":   buildConst,
	"sum":     buildSum,
	"product": buildProduct,
	"ratio":   buildRatio,
	"scale":   buildScale,
	"pow":     buildPow,
	"inverse": buildInverse,
	"sqrt":    buildSqrt,
	"negate":  buildNegate,
	"vector":  buildVector,
}

// scalarInput fetches one named dependency as a scalar.
func scalarInput(inputs map[types.ID]types.Value, id types.ID) (float64, error) {
	f, ok := inputs[id].AsScalar()
	if !ok {
		return 0, fmt.Errorf("input %q is not a scalar", id)
	}
	return f, nil
}

func buildConst(e Entry) (registry.Proc, error) {
	if e.Value == nil {
		return nil, errors.New(`proc "const" requires a value`)
	}
	if len(e.Inputs) != 0 {
		return nil, errors.New(`proc "const" takes no inputs`)
	}
	v := *e.Value
	return func(map[types.ID]types.Value) (types.Value, error) {
		return types.Scalar(v), nil
	}, nil
}

func buildSum(e Entry) (registry.Proc, error) {
	ids, err := inputIDs(e, 1, -1)
	if err != nil {
		return nil, err
	}
	return func(inputs map[types.ID]types.Value) (types.Value, error) {
		total := 0.0
		for _, id := range ids {
			f, err := scalarInput(inputs, id)
			if err != nil {
				return nil, err
			}
			total += f
		}
		return types.Scalar(total), nil
	}, nil
}

func buildProduct(e Entry) (registry.Proc, error) {
	ids, err := inputIDs(e, 1, -1)
	if err != nil {
		return nil, err
	}
	return func(inputs map[types.ID]types.Value) (types.Value, error) {
		total := 1.0
		for _, id := range ids {
			f, err := scalarInput(inputs, id)
			if err != nil {
				return nil, err
			}
			total *= f
		}
		return types.Scalar(total), nil
	}, nil
}

func buildRatio(e Entry) (registry.Proc, error) {
	ids, err := inputIDs(e, 2, 2)
	if err != nil {
		return nil, err
	}
	num, den := ids[0], ids[1]
	return func(inputs map[types.ID]types.Value) (types.Value, error) {
		n, err := scalarInput(inputs, num)
		if err != nil {
			return nil, err
		}
		d, err := scalarInput(inputs, den)
		if err != nil {
			return nil, err
		}
		if d == 0 {
			return nil, fmt.Errorf("division by zero: %q is 0", den)
		}
		return types.Scalar(n / d), nil
	}, nil
}

func buildScale(e Entry) (registry.Proc, error) {
	ids, err := inputIDs(e, 1, 1)
	if err != nil {
		return nil, err
	}
	factor, ok := e.Args["factor"]
	if !ok {
		return nil, errors.New(`proc "scale" requires args.factor`)
	}
	in := ids[0]
	return func(inputs map[types.ID]types.Value) (types.Value, error) {
		f, err := scalarInput(inputs, in)
		if err != nil {
			return nil, err
		}
		return types.Scalar(f * factor), nil
	}, nil
}

func buildPow(e Entry) (registry.Proc, error) {
	ids, err := inputIDs(e, 1, 1)
	if err != nil {
		return nil, err
	}
	exponent, ok := e.Args["exponent"]
	if !ok {
		return nil, errors.New(`proc "pow" requires args.exponent`)
	}
	in := ids[0]
	return func(inputs map[types.ID]types.Value) (types.Value, error) {
		f, err := scalarInput(inputs, in)
		if err != nil {
			return nil, err
		}
		return types.Scalar(math.Pow(f, exponent)), nil
	}, nil
}

func buildInverse(e Entry) (registry.Proc, error) {
	ids, err := inputIDs(e, 1, 1)
	if err != nil {
		return nil, err
	}
	in := ids[0]
	return func(inputs map[types.ID]types.Value) (types.Value, error) {
		f, err := scalarInput(inputs, in)
		if err != nil {
			return nil, err
		}
		if f == 0 {
			return nil, fmt.Errorf("division by zero: %q is 0", in)
		}
		return types.Scalar(1 / f), nil
	}, nil
}

func buildSqrt(e Entry) (registry.Proc, error) {
	ids, err := inputIDs(e, 1, 1)
	if err != nil {
		return nil, err
	}
	in := ids[0]
	return func(inputs map[types.ID]types.Value) (types.Value, error) {
		f, err := scalarInput(inputs, in)
		if err != nil {
			return nil, err
		}
		if f < 0 {
			return nil, fmt.Errorf("sqrt of negative value %g", f)
		}
		return types.Scalar(math.Sqrt(f)), nil
	}, nil
}

func buildNegate(e Entry) (registry.Proc, error) {
	ids, err := inputIDs(e, 1, 1)
	if err != nil {
		return nil, err
	}
	in := ids[0]
	return func(inputs map[types.ID]types.Value) (types.Value, error) {
		f, err := scalarInput(inputs, in)
		if err != nil {
			return nil, err
		}
		return types.Scalar(-f), nil
	}, nil
}

// buildVector gathers scalar inputs into one multi-component value, in
// declared input order.
func buildVector(e Entry) (registry.Proc, error) {
	ids, err := inputIDs(e, 1, -1)
	if err != nil {
		return nil, err
	}
	return func(inputs map[types.ID]types.Value) (types.Value, error) {
		out := make(types.Value, len(ids))
		for i, id := range ids {
			f, err := scalarInput(inputs, id)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	}, nil
}

// inputIDs validates the input arity (max < 0 means unbounded) and
// converts to typed ids in declared order.
func inputIDs(e Entry, min, max int) ([]types.ID, error) {
	if len(e.Inputs) < min || (max >= 0 && len(e.Inputs) > max) {
		if max < 0 {
			return nil, fmt.Errorf("proc %q requires at least %d input(s), got %d", e.Proc, min, len(e.Inputs))
		}
		if min == max {
			return nil, fmt.Errorf("proc %q requires exactly %d input(s), got %d", e.Proc, min, len(e.Inputs))
		}
		return nil, fmt.Errorf("proc %q requires %d to %d inputs, got %d", e.Proc, min, max, len(e.Inputs))
	}
	ids := make([]types.ID, len(e.Inputs))
	for i, in := range e.Inputs {
		ids[i] = types.ID(in)
	}
	return ids, nil
}
