package internaldefs

import (
	"strconv"
	"strings"
	"testing"
)

func TestBucketsAreCumulative(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("CumulativeBuckets = %v, want %v", got, want)
	}
}

func TestDefinitionsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "portalauth_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %q does not follow naming convention", def.Name)
		}
		if seen[def.Name] {
			t.Fatalf("duplicate metric name %q", def.Name)
		}
		seen[def.Name] = true
	}
	if len(HistogramUpperBounds)+1 != len(HistogramBoundLabels) {
		t.Fatalf("bounds and labels disagree: %d vs %d", len(HistogramUpperBounds), len(HistogramBoundLabels))
	}
	for i, bound := range HistogramUpperBounds {
		if got := strconv.FormatFloat(bound, 'g', -1, 64); got != HistogramBoundLabels[i] {
			t.Fatalf("label %d = %q, want %q", i, HistogramBoundLabels[i], got)
		}
	}
}
