package overlap

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Intersects reports whether polygon a shares any point with the polygonal
// geometry g: a common boundary point, crossing edges, or containment in
// either direction. Holes are respected.
func Intersects(a orb.Polygon, g orb.Geometry) bool {
	switch t := g.(type) {
	case orb.Polygon:
		return polygonsIntersect(a, t)
	case orb.MultiPolygon:
		for _, p := range t {
			if polygonsIntersect(a, p) {
				return true
			}
		}
	}
	return false
}

// SouthOf reports whether a lies strictly south of b: a's northern edge is
// below b's southern edge. Longitude is not considered.
func SouthOf(a, b orb.Bound) bool {
	return a.Max[1] < b.Min[1]
}

func polygonsIntersect(a, b orb.Polygon) bool {
	if len(a) == 0 || len(b) == 0 || len(a[0]) == 0 || len(b[0]) == 0 {
		return false
	}
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	for _, ra := range a {
		for _, rb := range b {
			if ringsTouch(ra, rb) {
				return true
			}
		}
	}
	// no boundary contact left: either one contains the other or they are disjoint
	return planar.PolygonContains(b, a[0][0]) || planar.PolygonContains(a, b[0][0])
}

func ringsTouch(a, b orb.Ring) bool {
	if len(a) < 2 || len(b) < 2 {
		return false
	}
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	for i := 0; i+1 < len(a); i++ {
		p1, p2 := a[i], a[i+1]
		for j := 0; j+1 < len(b); j++ {
			if segmentsIntersect(p1, p2, b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

// segmentsIntersect is the closed-segment test: touching endpoints and
// collinear overlap both count.
func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)

	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}
	switch {
	case d1 == 0 && onSegment(q1, q2, p1):
		return true
	case d2 == 0 && onSegment(q1, q2, p2):
		return true
	case d3 == 0 && onSegment(p1, p2, q1):
		return true
	case d4 == 0 && onSegment(p1, p2, q2):
		return true
	}
	return false
}

// orientation is the sign of the cross product (b-a) x (c-a).
func orientation(a, b, c orb.Point) int {
	v := (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// onSegment assumes c is collinear with a-b.
func onSegment(a, b, c orb.Point) bool {
	return min(a[0], b[0]) <= c[0] && c[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= c[1] && c[1] <= max(a[1], b[1])
}
