package safety

import (
	"errors"
	"path"
	"testing"
)

func Test_Filter_IsAllowed_Cases(t *testing.T) {
	tests := []struct {
		name      string
		allowlist []string
		denylist  []string
		id        string
		want      bool
	}{
		{
			name: "empty lists allow everything",
			id:   "nobreak_voltageIn",
			want: true,
		},
		{
			name:     "denied exact id",
			denylist: []string{"nobreak_temperatureC"},
			id:       "nobreak_temperatureC",
			want:     false,
		},
		{
			name:     "deny glob",
			denylist: []string{"nobreak_battery*"},
			id:       "nobreak_batteryVoltage",
			want:     false,
		},
		{
			name:      "allowlist admits match",
			allowlist: []string{"nobreak_*"},
			id:        "nobreak_frequencyHz",
			want:      true,
		},
		{
			name:      "allowlist rejects non-match",
			allowlist: []string{"nobreak_*"},
			id:        "beep",
			want:      false,
		},
		{
			name:      "denylist beats allowlist",
			allowlist: []string{"*"},
			denylist:  []string{"test"},
			id:        "test",
			want:      false,
		},
		{
			name:     "malformed pattern never matches",
			denylist: []string{"nobreak_[x"},
			id:       "nobreak_[x",
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilter(tt.allowlist, tt.denylist)
			if got := f.IsAllowed(tt.id); got != tt.want {
				t.Errorf("IsAllowed(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func Test_Filter_NilAllowsAll(t *testing.T) {
	var f *Filter
	if !f.IsAllowed("anything") {
		t.Error("nil Filter rejected an id")
	}
}

func Test_Filter_Validate(t *testing.T) {
	if err := NewFilter([]string{"nobreak_*"}, []string{"beep"}).Validate(); err != nil {
		t.Errorf("Validate() on good patterns: %v", err)
	}

	err := NewFilter(nil, []string{"nobreak_[x"}).Validate()
	if !errors.Is(err, path.ErrBadPattern) {
		t.Errorf("Validate() error = %v, want ErrBadPattern", err)
	}
}
