package mirror

import (
	"fmt"
	"math"
)

const (
	// NumActuators is the number of values in a Command.
	NumActuators = 52

	// MaxValue bounds every actuator value to [-MaxValue, MaxValue].
	MaxValue = 1.0

	// MaxAbsSum bounds the sum of absolute actuator values.
	MaxAbsSum = 25.0
)

// Command is the geometry of the mirror, one value per actuator.
type Command [NumActuators]float64

// Zero returns the all-zero command.
func Zero() Command {
	return Command{}
}

// FromSlice copies values into a Command and validates it.
func FromSlice(values []float64) (Command, error) {
	var c Command
	if values == nil {
		return c, fmt.Errorf("%w: command values are missing", ErrNullPointer)
	}
	if len(values) != NumActuators {
		return c, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidCommand, NumActuators, len(values))
	}
	copy(c[:], values)
	if err := Validate(c); err != nil {
		return Command{}, err
	}
	return c, nil
}

// Slice returns a copy of the values as a slice.
func (c Command) Slice() []float64 {
	out := make([]float64, NumActuators)
	copy(out, c[:])
	return out
}

// AbsSum returns the sum of absolute actuator values.
func (c Command) AbsSum() float64 {
	var sum float64
	for _, v := range c {
		sum += math.Abs(v)
	}
	return sum
}

// IsZero reports whether every value is zero.
func (c Command) IsZero() bool {
	return c == Command{}
}

// Validate checks c against the hardware safety bounds: every value finite
// and within [-1, 1], and the sum of absolute values at most 25.
func Validate(c Command) error {
	var sum float64
	for i, v := range c {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: value %d is not finite", ErrInvalidCommand, i)
		}
		if v < -MaxValue || v > MaxValue {
			return fmt.Errorf("%w: value %d = %g outside [-%g, %g]", ErrInvalidCommand, i, v, MaxValue, MaxValue)
		}
		sum += math.Abs(v)
	}
	if sum > MaxAbsSum {
		return fmt.Errorf("%w: sum of absolute values %g exceeds %g", ErrInvalidCommand, sum, MaxAbsSum)
	}
	return nil
}

// Lerp returns the command a fraction t of the way from c to target.
// Values are clamped so rounding never leaves the valid range.
func (c Command) Lerp(target Command, t float64) Command {
	var out Command
	for i := range c {
		v := c[i] + (target[i]-c[i])*t
		out[i] = math.Max(-MaxValue, math.Min(MaxValue, v))
	}
	return out
}
