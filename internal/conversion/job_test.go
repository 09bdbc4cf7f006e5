package conversion

import "testing"

func TestStatusCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to processing", StatusPending, StatusProcessing, true},
		{"processing to completed", StatusProcessing, StatusCompleted, true},
		{"processing to failed", StatusProcessing, StatusFailed, true},

		// One-directional: no skips, no reversals, no terminal exits.
		{"pending to completed", StatusPending, StatusCompleted, false},
		{"pending to failed", StatusPending, StatusFailed, false},
		{"processing to pending", StatusProcessing, StatusPending, false},
		{"completed to processing", StatusCompleted, StatusProcessing, false},
		{"completed to failed", StatusCompleted, StatusFailed, false},
		{"failed to processing", StatusFailed, StatusProcessing, false},
		{"failed to completed", StatusFailed, StatusCompleted, false},
		{"pending to pending", StatusPending, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	if StatusPending.IsTerminal() || StatusProcessing.IsTerminal() {
		t.Error("pending and processing must not be terminal")
	}
	if !StatusCompleted.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Error("completed and failed must be terminal")
	}
}
