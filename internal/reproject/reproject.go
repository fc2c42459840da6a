// Package reproject converts projected parcel and layer coordinates to WGS84
// longitude/latitude for display.
package reproject

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
)

const (
	// DefaultSourceCRS is UTM zone 31N, the system of Beninese topographic plans.
	DefaultSourceCRS = "EPSG:32631"

	wgs84Def = "+proj=longlat +datum=WGS84 +no_defs"

	// CloseTolerance is the per-axis gap under which a converted ring is
	// considered closed.
	CloseTolerance = 1e-8

	minRingPoints = 4
)

var ErrUnknownCRS = errors.New("unknown source crs")

// Reprojector converts points from one fixed source CRS to WGS84.
type Reprojector struct {
	source   string
	identity bool
	toWGS84  proj.Transformer
}

// New builds a Reprojector for sourceCRS, given as an EPSG alias
// ("EPSG:32631", "urn:ogc:def:crs:EPSG::32631") or a proj4 definition.
func New(sourceCRS string) (*Reprojector, error) {
	if strings.TrimSpace(sourceCRS) == "" {
		sourceCRS = DefaultSourceCRS
	}
	def, err := Proj4Definition(sourceCRS)
	if err != nil {
		return nil, err
	}
	r := &Reprojector{source: sourceCRS}
	if isLongLat(def) {
		r.identity = true
		return r, nil
	}

	src, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("parse source crs %q: %w", sourceCRS, err)
	}
	dst, err := proj.Parse(wgs84Def)
	if err != nil {
		return nil, fmt.Errorf("parse wgs84: %w", err)
	}
	tr, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("transform %q -> wgs84: %w", sourceCRS, err)
	}
	r.toWGS84 = tr
	return r, nil
}

// MustNew is New for static configuration known to be valid.
func MustNew(sourceCRS string) *Reprojector {
	r, err := New(sourceCRS)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Reprojector) Source() string { return r.source }

// Proj4Definition resolves an EPSG alias to a proj4 string. Definitions that
// already start with "+" are returned unchanged.
func Proj4Definition(crs string) (string, error) {
	s := strings.TrimSpace(crs)
	if strings.HasPrefix(s, "+") {
		return s, nil
	}
	up := strings.ToUpper(s)
	if strings.HasSuffix(up, "CRS84") {
		return wgs84Def, nil
	}
	i := strings.LastIndex(up, "EPSG")
	if i < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownCRS, crs)
	}
	rest := up[i+len("EPSG"):]
	code, err := strconv.Atoi(rest[strings.LastIndex(rest, ":")+1:])
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownCRS, crs)
	}
	switch {
	case code == 4326:
		return wgs84Def, nil
	case code > 32600 && code <= 32660:
		return fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", code-32600), nil
	case code > 32700 && code <= 32760:
		return fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", code-32700), nil
	}
	return "", fmt.Errorf("%w: EPSG:%d", ErrUnknownCRS, code)
}

func isLongLat(def string) bool {
	return strings.Contains(def, "+proj=longlat") || strings.Contains(def, "+proj=latlong")
}

// Point converts one coordinate. ok is false for non-finite input, a failed
// transform or a result outside the lon/lat domain.
func (r *Reprojector) Point(p orb.Point) (orb.Point, bool) {
	if !finite(p[0]) || !finite(p[1]) {
		return orb.Point{}, false
	}
	out := p
	if !r.identity {
		x, y, err := r.toWGS84(p[0], p[1])
		if err != nil {
			return orb.Point{}, false
		}
		out = orb.Point{x, y}
	}
	if !finite(out[0]) || !finite(out[1]) || math.Abs(out[0]) > 180 || math.Abs(out[1]) > 90 {
		return orb.Point{}, false
	}
	return out, true
}

// Ring converts every vertex, drops the ones that fail and re-closes the
// result. The returned ring may be shorter than four points.
func (r *Reprojector) Ring(ring orb.Ring) orb.Ring {
	out := make(orb.Ring, 0, len(ring)+1)
	for _, p := range ring {
		if q, ok := r.Point(p); ok {
			out = append(out, q)
		}
	}
	return Close(out)
}

// Geometry converts a Polygon or MultiPolygon into a flat list of WGS84
// rings, keeping only rings of at least four points.
func (r *Reprojector) Geometry(g orb.Geometry) []orb.Ring {
	out := []orb.Ring{}
	switch t := g.(type) {
	case orb.Polygon:
		out = r.appendRings(out, t)
	case orb.MultiPolygon:
		for _, poly := range t {
			out = r.appendRings(out, poly)
		}
	case orb.Ring:
		out = r.appendRings(out, orb.Polygon{t})
	}
	return out
}

func (r *Reprojector) appendRings(out []orb.Ring, poly orb.Polygon) []orb.Ring {
	for _, ring := range poly {
		if c := r.Ring(ring); len(c) >= minRingPoints {
			out = append(out, c)
		}
	}
	return out
}

// Polygon converts a polygon for geometric testing in WGS84. ok is false when
// the outer ring does not survive conversion; degenerate holes are dropped.
func (r *Reprojector) Polygon(p orb.Polygon) (orb.Polygon, bool) {
	if len(p) == 0 {
		return nil, false
	}
	outer := r.Ring(p[0])
	if len(outer) < minRingPoints {
		return nil, false
	}
	out := orb.Polygon{outer}
	for _, hole := range p[1:] {
		if c := r.Ring(hole); len(c) >= minRingPoints {
			out = append(out, c)
		}
	}
	return out, true
}

// Close appends the first point when the ring's ends differ by more than
// CloseTolerance on either axis.
func Close(ring orb.Ring) orb.Ring {
	if len(ring) == 0 {
		return ring
	}
	first, last := ring[0], ring[len(ring)-1]
	if math.Abs(first[0]-last[0]) > CloseTolerance || math.Abs(first[1]-last[1]) > CloseTolerance {
		return append(ring, first)
	}
	return ring
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
