package extract

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// numericCleaner strips the decorations models copy out of papers:
// comparison operators, approximations, percent signs, and thousands
// separators.
var numericCleaner = strings.NewReplacer(
	"<", "", ">", "", "≤", "", "≥", "", "=", "", "~", "", "%", "", ",", "",
)

// SanitizeFloat parses a numeric string defensively. Conversion failure
// yields nil, never an error; a value like "<0.001" parses as 0.001.
func SanitizeFloat(s string) *float64 {
	cleaned := strings.TrimSpace(numericCleaner.Replace(s))
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}

// looseFloat unmarshals from a JSON number, a numeric string with
// decorations, or null. Anything unparseable becomes nil.
type looseFloat struct {
	Value *float64
}

func (f *looseFloat) UnmarshalJSON(b []byte) error {
	f.Value = nil
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	var num float64
	if err := json.Unmarshal(b, &num); err == nil {
		f.Value = &num
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		f.Value = SanitizeFloat(s)
	}
	return nil
}

// looseInt is looseFloat for whole numbers, truncating fractional input.
type looseInt struct {
	Value *int
}

func (n *looseInt) UnmarshalJSON(b []byte) error {
	n.Value = nil
	var f looseFloat
	if err := f.UnmarshalJSON(b); err != nil || f.Value == nil {
		return nil
	}
	v := int(*f.Value)
	n.Value = &v
	return nil
}
