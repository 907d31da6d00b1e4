package main

import "testing"

func TestSelectionRule(t *testing.T) {
	tests := []struct {
		name     string
		wantName string
		wantErr  bool
	}{
		{name: "youden_j", wantName: "youden_j"},
		{name: "max_f1", wantName: "max_f1"},
		{name: "target_fpr", wantName: "target_fpr"},
		{name: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		rule, err := selectionRule(tt.name, 0.05)
		if tt.wantErr {
			if err == nil {
				t.Errorf("selectionRule(%q): expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("selectionRule(%q): %v", tt.name, err)
			continue
		}
		if rule.Name() != tt.wantName {
			t.Errorf("selectionRule(%q).Name() = %q", tt.name, rule.Name())
		}
	}
}
