package models

import "testing"

func TestExecutionPhase_Valid(t *testing.T) {
	tests := []struct {
		name  string
		phase ExecutionPhase
		want  bool
	}{
		{"starting is valid", PhaseStarting, true},
		{"planning is valid", PhasePlanning, true},
		{"implementing is valid", PhaseImplementing, true},
		{"verifying is valid", PhaseVerifying, true},
		{"complete is valid", PhaseComplete, true},
		{"failed is valid", PhaseFailed, true},
		{"empty string is invalid", ExecutionPhase(""), false},
		{"unknown phase is invalid", ExecutionPhase("reviewing"), false},
		{"case matters", ExecutionPhase("Planning"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.phase.Valid(); got != tt.want {
				t.Errorf("ExecutionPhase(%q).Valid() = %v, want %v", tt.phase, got, tt.want)
			}
		})
	}
}

func TestExecutionPhase_Terminal(t *testing.T) {
	tests := []struct {
		phase ExecutionPhase
		want  bool
	}{
		{PhaseStarting, false},
		{PhasePlanning, false},
		{PhaseImplementing, false},
		{PhaseVerifying, false},
		{PhaseComplete, true},
		{PhaseFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			if got := tt.phase.Terminal(); got != tt.want {
				t.Errorf("ExecutionPhase(%q).Terminal() = %v, want %v", tt.phase, got, tt.want)
			}
		})
	}
}

func TestProcessType_Valid(t *testing.T) {
	tests := []struct {
		name string
		pt   ProcessType
		want bool
	}{
		{"run is valid", ProcessTypeRun, true},
		{"resume is valid", ProcessTypeResume, true},
		{"utility is valid", ProcessTypeUtility, true},
		{"empty string is invalid", ProcessType(""), false},
		{"unknown type is invalid", ProcessType("batch"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pt.Valid(); got != tt.want {
				t.Errorf("ProcessType(%q).Valid() = %v, want %v", tt.pt, got, tt.want)
			}
		})
	}
}
