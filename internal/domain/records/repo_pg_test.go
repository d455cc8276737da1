package records

import (
	"strings"
	"testing"
)

func TestRecordColumnsQualified(t *testing.T) {
	base := strings.Split(recordCols, ",")
	qualified := strings.Split(recordColsQualified, ",")

	if len(qualified) != len(base) {
		t.Fatalf("expected %d qualified columns, got %d", len(base), len(qualified))
	}
	for i := range base {
		want := "r." + strings.TrimSpace(base[i])
		got := strings.TrimSpace(qualified[i])
		if got != want {
			t.Errorf("column %d: expected %q, got %q", i, want, got)
		}
		// Exactly one dot: anything else means a column name was mangled
		// into a bogus table alias.
		if strings.Count(got, ".") != 1 {
			t.Errorf("column %q is not a plain r-qualified name", got)
		}
	}
}
