package feed

import "strconv"

// Value holds a field the vendor emits as a missing element, a scalar, or a
// repeated element. Every leaf of a feed entry decodes into one of these so
// the scalar-or-array ambiguity is normalized in a single place.
type Value []string

// First returns the first scalar, or "" when the field is absent.
func (v Value) First() string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Int strips every non-digit byte from the scalar and parses the rest.
// Returns nil when the field is absent or carries no digits.
func (v Value) Int() *int {
	s := v.First()
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) == 0 {
		return nil
	}
	n, err := strconv.Atoi(string(digits))
	if err != nil {
		return nil
	}
	return &n
}
