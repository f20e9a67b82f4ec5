package mirror

import (
	"fmt"
	"strings"
)

// Mode selects how a command is delivered to the mirror.
type Mode int

const (
	// ModeImmediate sends the command in one transaction.
	ModeImmediate Mode = iota
	// ModeSmooth ramps to the command through intermediate transactions.
	ModeSmooth
)

func (m Mode) String() string {
	switch m {
	case ModeImmediate:
		return "immediate"
	case ModeSmooth:
		return "smooth"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts "immediate" or "smooth". An empty string means immediate.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "immediate":
		return ModeImmediate, nil
	case "smooth":
		return ModeSmooth, nil
	default:
		return 0, fmt.Errorf("%w: unknown apply mode %q", ErrInvalidCommand, s)
	}
}
