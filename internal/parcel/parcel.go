// Package parcel turns raw extracted boundary points into a closed ring.
package parcel

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/ilemi-bj/foncier-geo/internal/core/model"
)

// DedupTolerance is the per-axis distance under which two points are equal.
const DedupTolerance = 1e-9

// MinDistinctPoints is the smallest number of unique vertices of a polygon.
const MinDistinctPoints = 3

// ErrInvalidGeometry is the class of every boundary that cannot form a polygon.
var ErrInvalidGeometry = errors.New("invalid parcel geometry")

// InsufficientCoordinatesError reports a boundary with fewer than three
// distinct points after parsing and deduplication.
type InsufficientCoordinatesError struct {
	Distinct int
}

func (e *InsufficientCoordinatesError) Error() string {
	return fmt.Sprintf("insufficient coordinates: %d distinct points, need at least %d", e.Distinct, MinDistinctPoints)
}

func (e *InsufficientCoordinatesError) Unwrap() error { return ErrInvalidGeometry }

// ParseCoordinate parses one numeric string. Spaces and a decimal comma are
// tolerated; non-finite values are rejected.
func ParseCoordinate(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, " ", "")
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Normalize parses points, drops unparseable ones, removes consecutive
// duplicates and closes the ring. The result has ring[0] == ring[len-1].
func Normalize(points []model.IncomingPoint) (orb.Ring, error) {
	parsed := make([]orb.Point, 0, len(points))
	for _, p := range points {
		x, okx := ParseCoordinate(p.X)
		y, oky := ParseCoordinate(p.Y)
		if !okx || !oky {
			continue
		}
		parsed = append(parsed, orb.Point{x, y})
	}
	return NormalizePoints(parsed)
}

// NormalizePoints applies the dedup and closure rules to already numeric
// points.
func NormalizePoints(points []orb.Point) (orb.Ring, error) {
	ring := make(orb.Ring, 0, len(points)+1)
	for _, p := range points {
		if !finite(p) {
			continue
		}
		if n := len(ring); n > 0 && Near(ring[n-1], p) {
			continue
		}
		ring = append(ring, p)
	}
	// the source may already be closed
	for len(ring) > 1 && Near(ring[0], ring[len(ring)-1]) {
		ring = ring[:len(ring)-1]
	}

	if d := countDistinct(ring); d < MinDistinctPoints {
		return nil, &InsufficientCoordinatesError{Distinct: d}
	}
	return append(ring, ring[0]), nil
}

// Near reports whether a and b are equal within DedupTolerance on both axes.
func Near(a, b orb.Point) bool {
	return math.Abs(a[0]-b[0]) <= DedupTolerance && math.Abs(a[1]-b[1]) <= DedupTolerance
}

func countDistinct(ring orb.Ring) int {
	n := 0
	for i, p := range ring {
		dup := false
		for _, q := range ring[:i] {
			if Near(p, q) {
				dup = true
				break
			}
		}
		if !dup {
			n++
		}
	}
	return n
}

func finite(p orb.Point) bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
