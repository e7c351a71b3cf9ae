package sensitivity

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Level is an ordered data-sensitivity classification. Higher values are
// more restricted.
type Level int

const (
	Public Level = iota
	Internal
	Confidential
	Secret
)

var levelNames = map[Level]string{
	Public:       "PUBLIC",
	Internal:     "INTERNAL",
	Confidential: "CONFIDENTIAL",
	Secret:       "SECRET",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel converts a case-insensitive level name to a Level.
func ParseLevel(s string) (Level, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for l, name := range levelNames {
		if name == upper {
			return l, nil
		}
	}
	return Public, fmt.Errorf("unknown sensitivity level %q", s)
}

// MarshalJSON encodes the level by name so persisted state stays readable
// and stable across reorderings of the constants.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func maxLevel(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}
