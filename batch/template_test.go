package batch

import "testing"

func TestExpandDollarAndBraceForms(t *testing.T) {
	vars := map[string]string{"year": "2020", "month": "06"}
	got, err := Expand("data/$year/${month}/out.zarr", vars)
	if err != nil {
		t.Fatal(err)
	}
	want := "data/2020/06/out.zarr"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExpandEscapedDollar(t *testing.T) {
	got, err := Expand("cost: $$5", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != "cost: $5" {
		t.Errorf("got %q", got)
	}
}

func TestExpandMissingPlaceholder(t *testing.T) {
	if _, err := Expand("$missing", map[string]string{}); err == nil {
		t.Error("expected an error for an unresolved placeholder")
	}
}

func TestExpandUnterminatedBrace(t *testing.T) {
	if _, err := Expand("${year", map[string]string{"year": "2020"}); err == nil {
		t.Error("expected an error for an unterminated ${")
	}
}

func TestExpandTrailingDollar(t *testing.T) {
	if _, err := Expand("out$", nil); err == nil {
		t.Error("expected an error for a trailing $")
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("data/$year/${month}-$year.yml")
	if len(got) != 2 || !got["year"] || !got["month"] {
		t.Errorf("got %v", got)
	}
}

func TestCartesianProductRangesOnly(t *testing.T) {
	ranges := []Range{{Key: "year", Min: 2020, Max: 2021}, {Key: "month", Min: 1, Max: 2}}
	combos := CartesianProduct(ranges, nil)
	if len(combos) != 4 {
		t.Fatalf("got %d combos, want 4", len(combos))
	}
	seen := map[string]bool{}
	for _, c := range combos {
		seen[c["year"]+"-"+c["month"]] = true
	}
	for _, want := range []string{"2020-1", "2020-2", "2021-1", "2021-2"} {
		if !seen[want] {
			t.Errorf("missing combo %s in %v", want, combos)
		}
	}
}

func TestCartesianProductWithFixedValues(t *testing.T) {
	ranges := []Range{{Key: "year", Min: 2020, Max: 2020}}
	combos := CartesianProduct(ranges, map[string]string{"region": "eu"})
	if len(combos) != 1 {
		t.Fatalf("got %d combos, want 1", len(combos))
	}
	if combos[0]["year"] != "2020" || combos[0]["region"] != "eu" {
		t.Errorf("got %v", combos[0])
	}
}

func TestCartesianProductNoRanges(t *testing.T) {
	combos := CartesianProduct(nil, map[string]string{"region": "eu"})
	if len(combos) != 1 || combos[0]["region"] != "eu" {
		t.Errorf("got %v, want a single combo carrying the fixed value", combos)
	}
}
