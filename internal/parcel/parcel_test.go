package parcel

import (
	"errors"
	"reflect"
	"testing"

	"github.com/paulmach/orb"

	"github.com/ilemi-bj/foncier-geo/internal/core/model"
)

func pts(xy ...string) []model.IncomingPoint {
	out := make([]model.IncomingPoint, 0, len(xy)/2)
	for i := 0; i+1 < len(xy); i += 2 {
		out = append(out, model.IncomingPoint{X: xy[i], Y: xy[i+1]})
	}
	return out
}

func TestNormalize_ThreePointsClosed(t *testing.T) {
	ring, err := Normalize(pts("1", "1", "2", "1", "2", "2"))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := orb.Ring{{1, 1}, {2, 1}, {2, 2}, {1, 1}}
	if !reflect.DeepEqual(ring, want) {
		t.Fatalf("ring=%v want %v", ring, want)
	}
}

func TestNormalize_TwoDistinctPointsFails(t *testing.T) {
	_, err := Normalize(pts("1", "1", "2", "1", "2", "1", "1", "1"))
	if err == nil {
		t.Fatalf("expected error")
	}
	var ice *InsufficientCoordinatesError
	if !errors.As(err, &ice) {
		t.Fatalf("want *InsufficientCoordinatesError, got %T", err)
	}
	if ice.Distinct != 2 {
		t.Fatalf("distinct=%d want 2", ice.Distinct)
	}
	if !errors.Is(err, ErrInvalidGeometry) {
		t.Fatalf("expected errors.Is ErrInvalidGeometry")
	}
}

func TestNormalize_AlreadyClosedNotDoubled(t *testing.T) {
	ring, err := Normalize(pts("0", "0", "10", "0", "10", "10", "0", "10", "0", "0"))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(ring) != 5 {
		t.Fatalf("len=%d want 5: %v", len(ring), ring)
	}
	if ring[0] != ring[len(ring)-1] {
		t.Fatalf("ring not closed: %v", ring)
	}
}

func TestNormalize_ConsecutiveDuplicatesWithinTolerance(t *testing.T) {
	ring, err := Normalize(pts(
		"382000", "704000",
		"382000.0000000001", "704000",
		"382100", "704000",
		"382100", "704100",
	))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(ring) != 4 {
		t.Fatalf("len=%d want 4: %v", len(ring), ring)
	}
}

func TestNormalize_DropsUnparseableValues(t *testing.T) {
	ring, err := Normalize(pts(
		"abc", "1",
		"0", "0",
		"NaN", "5",
		"4", "0",
		"4", "Inf",
		"4", "3",
	))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := orb.Ring{{0, 0}, {4, 0}, {4, 3}, {0, 0}}
	if !reflect.DeepEqual(ring, want) {
		t.Fatalf("ring=%v want %v", ring, want)
	}
}

func TestNormalize_EmptyInput(t *testing.T) {
	_, err := Normalize(nil)
	var ice *InsufficientCoordinatesError
	if !errors.As(err, &ice) || ice.Distinct != 0 {
		t.Fatalf("want InsufficientCoordinatesError{0}, got %v", err)
	}
}

func TestNormalize_PropertyClosedAndLongEnough(t *testing.T) {
	inputs := [][]model.IncomingPoint{
		pts("1", "1", "2", "1", "2", "2"),
		pts("0", "0", "5", "0", "5", "5", "0", "5"),
		pts("0", "0", "1", "0", "0", "0", "1", "1"),
		pts("382000,5", "704000", "382010", "704000", "382010", "704010"),
	}
	for i, in := range inputs {
		ring, err := Normalize(in)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if len(ring) < 4 {
			t.Fatalf("case %d: len=%d", i, len(ring))
		}
		if ring[0] != ring[len(ring)-1] {
			t.Fatalf("case %d: not closed: %v", i, ring)
		}
	}
}

func TestParseCoordinate(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"382000", 382000, true},
		{" 704 000.25 ", 704000.25, true},
		{"6,5", 6.5, true},
		{"", 0, false},
		{"x", 0, false},
		{"+Inf", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseCoordinate(c.in)
		if ok != c.ok || (ok && got != c.want) {
			t.Fatalf("ParseCoordinate(%q)=%v,%v want %v,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}
