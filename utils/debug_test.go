package utils

import "testing"

// IsDebugEnabled gates the startup [DEBUG] config dump; release mode
// must keep it quiet.
func TestIsDebugEnabled(t *testing.T) {
	tests := []struct {
		name    string
		ginMode string
		want    bool
	}{
		{"release silences debug", "release", false},
		{"debug mode", "debug", true},
		{"test mode", "test", true},
		{"unset defaults to debug", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GIN_MODE", tt.ginMode)
			if got := IsDebugEnabled(); got != tt.want {
				t.Errorf("IsDebugEnabled() with GIN_MODE=%q = %v, want %v", tt.ginMode, got, tt.want)
			}
		})
	}
}
