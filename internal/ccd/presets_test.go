package ccd

import "testing"

func TestParsePresetLabel(t *testing.T) {
	tests := []struct {
		label string
		want  float64
		ok    bool
	}{
		{"30", 30, true},
		{"0.5", 0.5, true},
		{"1/100", 0.01, true},
		{" 1/4 ", 0.25, true},
		{"1/0", 0, false},
		{"1/-2", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"1/2/3", 0, false},
		{"bulb", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := parsePresetLabel(tt.label)
			if ok != tt.ok {
				t.Fatalf("parsePresetLabel(%q) ok = %v, want %v", tt.label, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("parsePresetLabel(%q) = %v, want %v", tt.label, got, tt.want)
			}
		})
	}
}

func TestPresetTableBounds(t *testing.T) {
	table := newPresetTable()
	for _, label := range []string{"30", "1/100", "1/0"} {
		table.insert(label)
	}

	if len(table.values) != 2 {
		t.Errorf("presets = %d, want 2", len(table.values))
	}
	if table.min != 0.01 {
		t.Errorf("min = %v, want 0.01", table.min)
	}
	if table.max != 30 {
		t.Errorf("max = %v, want 30", table.max)
	}

	// Bounds are recomputed after every insert.
	table.insert("1/1000")
	if table.min != 0.001 {
		t.Errorf("min after insert = %v, want 0.001", table.min)
	}
}

func TestPresetSnap(t *testing.T) {
	table := newPresetTable()
	for _, label := range []string{"1/4", "1", "3", "30"} {
		table.insert(label)
	}

	tests := []struct {
		name     string
		exposure float64
		want     float64
	}{
		{"nearest below", 0.5, 0.25},
		{"nearest above", 0.9, 1},
		{"tie goes to first label", 2, 1},
		{"at minimum", 0.25, 0.25},
		{"at maximum", 30, 30},
		{"outside range", 45, 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := table.snap(tt.exposure); got != tt.want {
				t.Errorf("snap(%v) = %v, want %v", tt.exposure, got, tt.want)
			}
		})
	}

	if got := newPresetTable().snap(5); got != 5 {
		t.Errorf("empty snap(5) = %v, want 5", got)
	}
}
