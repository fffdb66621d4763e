package builtins

import (
	"github.com/gofrs/uuid"

	"github.com/cloudcmds/vellum/errors"
	"github.com/cloudcmds/vellum/value"
)

// rangeCeiling bounds the number of items range may produce so a template
// cannot allocate unbounded memory before the step limit kicks in.
const rangeCeiling = 1_000_000

func funcRange(args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if err := wantArgs("range", args, 1, 3); err != nil {
		return nil, err
	}
	var start, stop, step int64 = 0, 0, 1
	var err error
	switch len(args) {
	case 1:
		stop, err = argInt("range", args, 0)
	case 2:
		if start, err = argInt("range", args, 0); err == nil {
			stop, err = argInt("range", args, 1)
		}
	case 3:
		if start, err = argInt("range", args, 0); err == nil {
			if stop, err = argInt("range", args, 1); err == nil {
				step, err = argInt("range", args, 2)
			}
		}
	}
	if err != nil {
		return nil, err
	}
	if step == 0 {
		return nil, errors.New(errors.InvalidOperation, "range step must not be zero")
	}
	out := value.NewSeq()
	count := 0
	if step > 0 {
		for i := start; i < stop; i += step {
			if count++; count > rangeCeiling {
				return nil, errors.New(errors.TooComplex, "range result too large")
			}
			out.Append(value.NewInt(i))
		}
	} else {
		for i := start; i > stop; i += step {
			if count++; count > rangeCeiling {
				return nil, errors.New(errors.TooComplex, "range result too large")
			}
			out.Append(value.NewInt(i))
		}
	}
	return out, nil
}

func funcDict(args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if err := wantArgs("dict", args, 0, 0); err != nil {
		return nil, err
	}
	out := value.NewMap()
	if kwargs != nil {
		for _, p := range kwargs.Map().Pairs() {
			out.Set(p.Key, p.Val)
		}
	}
	return out, nil
}

func funcNamespace(args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if err := wantArgs("namespace", args, 0, 0); err != nil {
		return nil, err
	}
	return value.NewNamespace(kwargs), nil
}

func funcUUID(args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if err := wantArgs("uuid", args, 0, 0); err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, errors.Errorf(errors.InvalidOperation, "uuid: %s", err)
	}
	return value.NewString(id.String()), nil
}
