package dataset

import "testing"

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want string // RFC3339, empty means "not found"
	}{
		{"data_20220615120000.nc", "2022-06-15T12:00:00Z"},
		{"obs_202206151200.nc", "2022-06-15T12:00:00Z"},
		{"sst_20220615.nc", "2022-06-15T00:00:00Z"},
		{"monthly_202206.nc", "2022-06-01T00:00:00Z"},
		{"yearly_2022.nc", "2022-01-01T00:00:00Z"},
		{"no-timestamp-here.nc", ""},
	}
	for _, c := range cases {
		got, ok := ParseTimestamp(c.in)
		if c.want == "" {
			if ok {
				t.Errorf("ParseTimestamp(%q): expected no match, got %v", c.in, got)
			}
			continue
		}
		if !ok {
			t.Errorf("ParseTimestamp(%q): expected a match", c.in)
			continue
		}
		if got.Format("2006-01-02T15:04:05Z") != c.want {
			t.Errorf("ParseTimestamp(%q) = %v, want %s", c.in, got, c.want)
		}
	}
}

func TestParseTimestampFormat(t *testing.T) {
	got, err := ParseTimestampFormat("2022-06-15", "%Y-%m-%d")
	if err != nil {
		t.Fatal(err)
	}
	if got.Year() != 2022 || got.Month() != 6 || got.Day() != 15 {
		t.Errorf("got %v", got)
	}

	if _, err := ParseTimestampFormat("not-a-date", "%Y-%m-%d"); err == nil {
		t.Error("expected an error for an unparsable timestamp")
	}
}

func TestMidpointBounds(t *testing.T) {
	start, _ := ParseTimestampFormat("2022-01-01", "%Y-%m-%d")
	end, _ := ParseTimestampFormat("2022-01-03", "%Y-%m-%d")
	mid, lower, upper := MidpointBounds(start, end)
	if !lower.Equal(start) || !upper.Equal(end) {
		t.Errorf("bounds changed: lower=%v upper=%v", lower, upper)
	}
	if mid.Day() != 2 {
		t.Errorf("expected midpoint day 2, got %d", mid.Day())
	}
}
