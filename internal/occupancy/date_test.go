package occupancy

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	t.Parallel()

	valid := []string{"2024-01-01", "2024-02-29", "1999-12-31"}
	for _, value := range valid {
		d, err := ParseDate(value)
		if err != nil {
			t.Fatalf("ParseDate(%q) returned error: %v", value, err)
		}
		if d.String() != value {
			t.Fatalf("ParseDate(%q).String() = %q", value, d.String())
		}
	}

	invalid := []string{"", "2024-1-01", "2024-01-1", "2023-02-29", "2024-13-01", "01.02.2024", "2024-01-01T00:00:00Z", "20240101", "2024-01-01x"}
	for _, value := range invalid {
		if _, err := ParseDate(value); !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("ParseDate(%q) error = %v, want ErrInvalidDate", value, err)
		}
	}
}

func TestDate_DayBefore(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"2024-03-01": "2024-02-29",
		"2023-03-01": "2023-02-28",
		"2024-01-01": "2023-12-31",
		"2024-06-15": "2024-06-14",
	}
	for in, want := range cases {
		if got := MustParseDate(in).DayBefore().String(); got != want {
			t.Fatalf("DayBefore(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestDate_Compare(t *testing.T) {
	t.Parallel()

	a := MustParseDate("2024-01-01")
	b := MustParseDate("2024-01-02")
	if !a.Before(b) || b.Before(a) || !b.After(a) {
		t.Fatalf("expected %s before %s", a, b)
	}
	if !a.Equal(NewDate(2024, time.January, 1)) {
		t.Fatalf("expected NewDate to equal parsed date")
	}
	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Fatalf("unexpected Compare results")
	}
}

func TestDateOf_UsesLocalCalendarDay(t *testing.T) {
	t.Parallel()

	berlin := time.FixedZone("CET", 60*60)
	instant := time.Date(2024, time.May, 1, 0, 30, 0, 0, berlin)
	if got := DateOf(instant).String(); got != "2024-05-01" {
		t.Fatalf("DateOf = %s, want 2024-05-01", got)
	}
}

func TestDate_JSON(t *testing.T) {
	t.Parallel()

	var payload struct {
		From Date  `json:"fromDate"`
		To   *Date `json:"toDate"`
	}
	if err := json.Unmarshal([]byte(`{"fromDate":"2024-01-05","toDate":null}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.From.String() != "2024-01-05" || payload.To != nil {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	err := json.Unmarshal([]byte(`{"fromDate":"05.01.2024"}`), &payload)
	if !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}

	out, err := json.Marshal(struct {
		From Date `json:"fromDate"`
	}{From: MustParseDate("2024-01-05")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"fromDate":"2024-01-05"}` {
		t.Fatalf("unexpected json %s", out)
	}
}

func TestDate_Scan(t *testing.T) {
	t.Parallel()

	var d Date
	if err := d.Scan("2024-04-01"); err != nil || d.String() != "2024-04-01" {
		t.Fatalf("scan string: %v %s", err, d)
	}
	if err := d.Scan([]byte("2024-04-02 00:00:00")); err != nil || d.String() != "2024-04-02" {
		t.Fatalf("scan bytes: %v %s", err, d)
	}
	if err := d.Scan(time.Date(2024, 4, 3, 12, 0, 0, 0, time.UTC)); err != nil || d.String() != "2024-04-03" {
		t.Fatalf("scan time: %v %s", err, d)
	}
	if err := d.Scan(nil); err != nil || !d.IsZero() {
		t.Fatalf("scan nil: %v %s", err, d)
	}
	if err := d.Scan(42); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("scan int: %v", err)
	}

	value, err := MustParseDate("2024-04-01").Value()
	if err != nil || value != "2024-04-01" {
		t.Fatalf("Value = %v, %v", value, err)
	}
}
