package payload

import (
	"strings"
)

// MissingSessionParametersError is returned when login is attempted without
// the character seed or key handed out by the version check.
type MissingSessionParametersError struct {
	Seed bool
	Key  bool
}

func (e *MissingSessionParametersError) Error() string {
	var missing []string
	if e.Seed {
		missing = append(missing, "character seed")
	}
	if e.Key {
		missing = append(missing, "character key")
	}
	return "missing session parameters: " + strings.Join(missing, ", ")
}
