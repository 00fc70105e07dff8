package domain

// Filter selects the subset of rules to load. Each slice is positional:
// an empty entry leaves that position unconstrained.
type Filter struct {
	P []string `json:"p,omitempty"`
	G []string `json:"g,omitempty"`
}

// IsEmpty reports whether the filter constrains no position at all.
func (f Filter) IsEmpty() bool {
	for _, v := range f.P {
		if v != "" {
			return false
		}
	}
	for _, v := range f.G {
		if v != "" {
			return false
		}
	}
	return true
}

// Accepts reports whether a rule tuple of the given section passes the
// filter. Rules outside the "p" and "g" sections never pass.
func (f Filter) Accepts(section string, values []string) bool {
	var constraints []string
	switch section {
	case SectionPolicy:
		constraints = f.P
	case SectionGrouping:
		constraints = f.G
	default:
		return false
	}

	for i, want := range constraints {
		if want == "" {
			continue
		}
		if i >= len(values) || values[i] != want {
			return false
		}
	}
	return true
}
