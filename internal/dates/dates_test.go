package dates

import "testing"

func TestParseDisplay(t *testing.T) {
	got, err := ParseDisplay("15/08/2026")
	if err != nil {
		t.Fatalf("ParseDisplay failed: %v", err)
	}
	if got.Year() != 2026 || got.Month() != 8 || got.Day() != 15 {
		t.Errorf("unexpected date: %v", got)
	}

	if _, err := ParseDisplay("2026-08-15"); err == nil {
		t.Error("expected error for ISO input")
	}
	if _, err := ParseDisplay("31/02/2026"); err == nil {
		t.Error("expected error for impossible date")
	}
}

func TestFromISO(t *testing.T) {
	got, err := FromISO("2026-08-15")
	if err != nil {
		t.Fatalf("FromISO failed: %v", err)
	}
	if got != "15/08/2026" {
		t.Errorf("expected 15/08/2026, got %s", got)
	}

	if _, err := FromISO("15/08/2026"); err == nil {
		t.Error("expected error for display-format input")
	}
}

func TestAddDays(t *testing.T) {
	tests := []struct {
		date string
		n    int
		want string
	}{
		{"15/08/2026", 1, "16/08/2026"},
		{"31/12/2026", 1, "01/01/2027"},
		{"01/03/2026", -1, "28/02/2026"},
		{"28/02/2028", 1, "29/02/2028"}, // leap year
	}

	for _, tc := range tests {
		got, err := AddDays(tc.date, tc.n)
		if err != nil {
			t.Fatalf("AddDays(%s, %d) failed: %v", tc.date, tc.n, err)
		}
		if got != tc.want {
			t.Errorf("AddDays(%s, %d) = %s, want %s", tc.date, tc.n, got, tc.want)
		}
	}
}
