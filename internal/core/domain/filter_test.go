package domain

import "testing"

func TestFilter_Accepts(t *testing.T) {
	filter := Filter{
		P: []string{"", "domain1"},
		G: []string{"", "", "domain1"},
	}

	tests := []struct {
		name    string
		section string
		values  []string
		want    bool
	}{
		{"policy in domain", "p", []string{"admin", "domain1", "data1", "read"}, true},
		{"policy in other domain", "p", []string{"admin", "domain2", "data2", "read"}, false},
		{"grouping in domain", "g", []string{"alice", "admin", "domain1"}, true},
		{"grouping in other domain", "g", []string{"bob", "admin", "domain2"}, false},
		{"grouping shorter than constraint", "g", []string{"alice", "admin"}, false},
		{"unknown section", "e", []string{"x", "domain1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := filter.Accepts(tt.section, tt.values); got != tt.want {
				t.Errorf("Accepts(%q, %v) = %v, want %v", tt.section, tt.values, got, tt.want)
			}
		})
	}
}

func TestFilter_AcceptsWithoutConstraints(t *testing.T) {
	var filter Filter
	if !filter.Accepts("p", []string{"alice", "data1", "read"}) {
		t.Error("empty filter rejected a policy rule")
	}
	if !filter.Accepts("g", []string{"alice", "admin"}) {
		t.Error("empty filter rejected a grouping rule")
	}
}

func TestFilter_IsEmpty(t *testing.T) {
	if !(Filter{}).IsEmpty() {
		t.Error("zero filter is not empty")
	}
	if !(Filter{P: []string{"", ""}}).IsEmpty() {
		t.Error("filter of empty positions is not empty")
	}
	if (Filter{G: []string{"", "admin"}}).IsEmpty() {
		t.Error("constraining filter reported empty")
	}
}
