package rules

import (
	"testing"

	"cloud.google.com/go/civil"
)

func date(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestIsActive(t *testing.T) {
	start := date("2024-03-01")
	end := date("2024-03-31")

	testCases := []struct {
		name    string
		enabled bool
		start   civil.Date
		end     civil.Date
		today   string
		want    bool
	}{
		{"inside window", true, start, end, "2024-03-15", true},
		{"on start date", true, start, end, "2024-03-01", true},
		{"on end date", true, start, end, "2024-03-31", true},
		{"day before start", true, start, end, "2024-02-29", false},
		{"day after end", true, start, end, "2024-04-01", false},
		{"disabled inside window", false, start, end, "2024-03-15", false},
		{"single day window", true, start, start, "2024-03-01", true},
		{"start after end", true, end, start, "2024-03-15", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsActive(tc.enabled, tc.start, tc.end, date(tc.today)); got != tc.want {
				t.Errorf("IsActive() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRuleIsActive(t *testing.T) {
	r := &Rule{Enabled: true, StartDate: date("2024-01-01"), EndDate: date("2024-12-31")}

	if !r.IsActive(date("2024-12-31")) {
		t.Error("rule should be active on its end date")
	}

	r.Enabled = false
	if r.IsActive(date("2024-06-01")) {
		t.Error("disabled rule should never be active")
	}
}
