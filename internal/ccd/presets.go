package ccd

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// presetTable holds the exposure presets a DSLR driver offers, keyed by
// switch label.
type presetTable struct {
	values   map[string]float64
	min, max float64
}

func newPresetTable() *presetTable {
	return &presetTable{values: make(map[string]float64)}
}

// parsePresetLabel parses a preset label as a decimal ("30", "0.5") or a
// fraction ("1/100"). Fractions need a positive denominator.
func parsePresetLabel(label string) (float64, bool) {
	label = strings.TrimSpace(label)
	if v, err := strconv.ParseFloat(label, 64); err == nil {
		return v, finite(v)
	}

	parts := strings.Split(label, "/")
	if len(parts) != 2 {
		return 0, false
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || !finite(num) {
		return 0, false
	}
	den, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || !finite(den) || den <= 0 {
		return 0, false
	}
	return num / den, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// insert adds a preset and recomputes the bounds. Malformed labels are
// skipped.
func (t *presetTable) insert(label string) bool {
	v, ok := parsePresetLabel(label)
	if !ok {
		return false
	}
	t.values[label] = v

	first := true
	for _, value := range t.values {
		if first || value < t.min {
			t.min = value
		}
		if first || value > t.max {
			t.max = value
		}
		first = false
	}
	return true
}

// snap returns the preset nearest to exposure when exposure lies strictly
// between the smallest and largest preset, and exposure otherwise. Ties go
// to the label that sorts first.
func (t *presetTable) snap(exposure float64) float64 {
	if len(t.values) == 0 || exposure <= t.min || exposure >= t.max {
		return exposure
	}

	labels := make([]string, 0, len(t.values))
	for label := range t.values {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	closest, diff := exposure, math.MaxFloat64
	for _, label := range labels {
		if d := math.Abs(exposure - t.values[label]); d < diff {
			closest, diff = t.values[label], d
		}
	}
	return closest
}

func (t *presetTable) snapshot() map[string]float64 {
	out := make(map[string]float64, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	return out
}
