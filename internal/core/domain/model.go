package domain

import (
	"fmt"
	"strings"
)

// MaxFields is the number of positional value columns a rule record carries.
const MaxFields = 6

// Policy sections understood by the store.
const (
	SectionPolicy   = "p"
	SectionGrouping = "g"
)

// Rule represents one stored policy or grouping rule.
type Rule struct {
	ID    string `json:"id,omitempty"`
	PType string `json:"ptype"` // "p" for policies, "g" for role assignments
	V0    string `json:"v0"`
	V1    string `json:"v1"`
	V2    string `json:"v2"`
	V3    string `json:"v3"`
	V4    string `json:"v4"`
	V5    string `json:"v5"`
}

// NewRule maps a policy tuple to a rule record. ok is false when the
// tuple is rejected (blank ptype or no values); that is not an error.
// A tuple with more values than a record can hold is an error.
func NewRule(ptype string, values []string) (rule Rule, ok bool, err error) {
	if strings.TrimSpace(ptype) == "" || len(values) == 0 {
		return Rule{}, false, nil
	}
	if len(values) > MaxFields {
		return Rule{}, false, fmt.Errorf("%w: rule %v has %d values, at most %d are stored",
			ErrInvalidInput, values, len(values), MaxFields)
	}

	var padded [MaxFields]string
	copy(padded[:], values)
	return Rule{
		PType: ptype,
		V0:    padded[0],
		V1:    padded[1],
		V2:    padded[2],
		V3:    padded[3],
		V4:    padded[4],
		V5:    padded[5],
	}, true, nil
}

// Fields returns all six positional values, empty ones included.
func (r Rule) Fields() [MaxFields]string {
	return [MaxFields]string{r.V0, r.V1, r.V2, r.V3, r.V4, r.V5}
}

// Values returns the policy tuple with trailing empty fields dropped.
func (r Rule) Values() []string {
	fields := r.Fields()
	n := len(fields)
	for n > 0 && fields[n-1] == "" {
		n--
	}
	if n == 0 {
		return nil
	}
	values := make([]string, n)
	copy(values, fields[:n])
	return values
}

// Section returns the model section the rule belongs to, "" when the
// ptype is empty.
func (r Rule) Section() string {
	if r.PType == "" {
		return ""
	}
	return r.PType[:1]
}

// PadValues resizes field values so they cover every position from
// fieldIndex to the last field, padding with empty strings and dropping
// values past the last field.
func PadValues(values []string, fieldIndex int) []string {
	size := MaxFields - fieldIndex
	if size < 0 {
		size = 0
	}
	padded := make([]string, size)
	copy(padded, values)
	return padded
}

// ValidFilterArgs reports whether a filtered removal with these arguments
// can constrain anything: the index must address a field and at least one
// supplied value must be non-empty.
func ValidFilterArgs(fieldIndex int, fieldValues []string) bool {
	if fieldIndex < 0 || fieldIndex >= MaxFields || len(fieldValues) == 0 {
		return false
	}
	for _, v := range fieldValues {
		if v != "" {
			return true
		}
	}
	return false
}

// EnforceRequest represents an authorization enforcement request.
// Domain is only sent to the enforcer when set.
type EnforceRequest struct {
	Subject string `json:"subject"`
	Domain  string `json:"domain,omitempty"`
	Object  string `json:"object"`
	Action  string `json:"action"`
}

// EnforceResponse represents the response for an enforcement request
type EnforceResponse struct {
	Allowed bool   `json:"allowed"`
	Message string `json:"message,omitempty"`
}

// PolicyRequest represents a policy management request
type PolicyRequest struct {
	PType string   `json:"ptype"`
	Rule  []string `json:"rule"`
}

// FilteredPolicyRequest represents a filtered removal request
type FilteredPolicyRequest struct {
	PType       string   `json:"ptype"`
	FieldIndex  int      `json:"field_index"`
	FieldValues []string `json:"field_values"`
}

// Validate checks if the PolicyRequest is valid
func (r *PolicyRequest) Validate() error {
	if r.PType == "" {
		return fmt.Errorf("%w: ptype cannot be empty", ErrInvalidInput)
	}
	if len(r.Rule) == 0 {
		return fmt.Errorf("%w: rule cannot be empty", ErrInvalidInput)
	}
	if len(r.Rule) > MaxFields {
		return fmt.Errorf("%w: rule cannot have more than %d values", ErrInvalidInput, MaxFields)
	}
	return nil
}

// Validate checks if the EnforceRequest is valid
func (r *EnforceRequest) Validate() error {
	if r.Subject == "" || r.Object == "" || r.Action == "" {
		return fmt.Errorf("%w: subject, object, and action cannot be empty", ErrInvalidInput)
	}
	return nil
}
