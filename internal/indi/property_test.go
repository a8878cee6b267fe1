package indi

import (
	"errors"
	"math"
	"testing"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"42", 42, false},
		{" -3.5 ", -3.5, false},
		{"1e-3", 0.001, false},
		{"12:30", 12.5, false},
		{"12:30:36", 12.51, false},
		{"-12:30:00", -12.5, false},
		{"12 30", 12.5, false},
		{"12;30", 12.5, false},
		{"", 0, true},
		{"abc", 0, true},
		{"1:2:3:4", 0, true},
		{"12:x", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNumber(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidNumber) {
					t.Errorf("ParseNumber(%q) error = %v, want %v", tt.in, err, ErrInvalidNumber)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseNumber(%q) error = %v", tt.in, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ParseNumber(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1"},
		{0.25, "0.25"},
		{-20, "-20"},
		{1e-5, "1e-05"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.in); got != tt.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPermWritable(t *testing.T) {
	tests := []struct {
		perm Perm
		want bool
	}{
		{PermRO, false},
		{PermWO, true},
		{PermRW, true},
	}
	for _, tt := range tests {
		if got := tt.perm.Writable(); got != tt.want {
			t.Errorf("%s.Writable() = %v, want %v", tt.perm, got, tt.want)
		}
	}
}

func TestSwitchVector(t *testing.T) {
	v := &SwitchVector{
		Vector: Vector{Name: "CCD_FRAME_TYPE"},
		Switches: []Switch{
			{Name: "FRAME_LIGHT"},
			{Name: "FRAME_DARK", On: true},
		},
	}

	if v.OnIndex() != 1 {
		t.Errorf("OnIndex() = %d, want 1", v.OnIndex())
	}
	if s := v.OnSwitch(); s == nil || s.Name != "FRAME_DARK" {
		t.Errorf("OnSwitch() = %v, want FRAME_DARK", s)
	}

	c := v.Clone()
	c.Reset()
	if c.OnIndex() != -1 {
		t.Errorf("clone OnIndex() after Reset = %d, want -1", c.OnIndex())
	}
	if !v.Switches[1].On {
		t.Error("Reset on a clone changed the original")
	}
	if v.Find("FRAME_FLAT") != nil {
		t.Error("Find() returned a missing switch")
	}
}

func TestNumberVectorClone(t *testing.T) {
	v := &NumberVector{Numbers: []Number{{Name: "X", Value: 1}}}
	c := v.Clone()
	c.Find("X").Value = 2

	if v.Find("X").Value != 1 {
		t.Error("editing a clone changed the original")
	}
}

func TestKindString(t *testing.T) {
	if KindBlob.String() != "BLOB" {
		t.Errorf("KindBlob.String() = %q, want BLOB", KindBlob.String())
	}
	if Kind(99).String() != "Kind(99)" {
		t.Errorf("Kind(99).String() = %q", Kind(99).String())
	}
}
