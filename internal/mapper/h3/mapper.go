package h3mapper

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"
)

// average hexagon edge length in km per resolution
var edgeLengthKm = [16]float64{
	1107.712591, 418.6760055, 158.2446558, 59.81085794,
	22.6063794, 8.544408276, 3.229482772, 1.220629759,
	0.461354684, 0.174375668, 0.065907807, 0.024910561,
	0.009415526, 0.003559893, 0.001348575, 0.000509713,
}

const kmPerDegree = 111.32

var ErrTooManyCells = errors.New("h3 coverage exceeds cell limit")

type Mapper struct {
	maxCells int
}

// New returns a Mapper. Coverage requests estimated above maxCells fail with
// ErrTooManyCells; maxCells <= 0 means no limit.
func New(maxCells int) *Mapper { return &Mapper{maxCells: maxCells} }

// CellForPoint maps a WGS84 [lon, lat] point to its cell.
func (m *Mapper) CellForPoint(p orb.Point, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	c, err := h3.LatLngToCell(h3.LatLng{Lat: p[1], Lng: p[0]}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell: %w", err)
	}
	return c.String(), nil
}

// CellsForRing covers a WGS84 ring with every cell it overlaps, including
// cells a narrow ring only crosses, plus the cells of every vertex.
func (m *Mapper) CellsForRing(ring orb.Ring, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	outer := toLoop(ring)
	if len(outer) < 3 {
		return nil, errors.New("ring has < 3 distinct vertices")
	}
	if err := m.checkLimit(ring.Bound(), res); err != nil {
		return nil, err
	}
	cells, err := polyfillOverlapping(outer, res)
	if err != nil {
		return nil, err
	}
	for _, p := range ring {
		c, err := m.CellForPoint(p, res)
		if err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return sortUnique(cells), nil
}

// CellsForBound covers a WGS84 bounding box padded by two cell edges, so any
// parcel touching the box shares at least one vertex cell with the result.
func (m *Mapper) CellsForBound(b orb.Bound, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	pad := 2 * edgeLengthKm[res] / kmPerDegree
	b = orb.Bound{
		Min: orb.Point{math.Max(b.Min[0]-pad, -180), math.Max(b.Min[1]-pad, -90)},
		Max: orb.Point{math.Min(b.Max[0]+pad, 180), math.Min(b.Max[1]+pad, 90)},
	}
	if err := m.checkLimit(b, res); err != nil {
		return nil, err
	}
	ring := orb.Ring{
		{b.Min[0], b.Min[1]},
		{b.Max[0], b.Min[1]},
		{b.Max[0], b.Max[1]},
		{b.Min[0], b.Max[1]},
		{b.Min[0], b.Min[1]},
	}
	cells, err := polyfillOne(toLoop(ring), res)
	if err != nil {
		return nil, err
	}
	for _, p := range append(ring[:4:4], b.Center()) {
		c, err := m.CellForPoint(p, res)
		if err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return sortUnique(cells), nil
}

// EstimateCells approximates the number of cells covering b at res.
func EstimateCells(b orb.Bound, res int) int {
	if validateRes(res) != nil {
		return 0
	}
	lat := (b.Min[1] + b.Max[1]) / 2
	w := (b.Max[0] - b.Min[0]) * kmPerDegree * math.Cos(lat*math.Pi/180)
	h := (b.Max[1] - b.Min[1]) * kmPerDegree
	e := edgeLengthKm[res]
	hexArea := 3 * math.Sqrt(3) / 2 * e * e
	return int(math.Ceil(math.Abs(w*h)/hexArea)) + 1
}

func (m *Mapper) checkLimit(b orb.Bound, res int) error {
	if m.maxCells <= 0 {
		return nil
	}
	if n := EstimateCells(b, res); n > m.maxCells {
		return fmt.Errorf("%w: ~%d cells at res %d (limit %d)", ErrTooManyCells, n, res, m.maxCells)
	}
	return nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// toLoop converts a lon/lat ring to an h3.GeoLoop, dropping the closing vertex.
func toLoop(ring orb.Ring) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(ring))
	for _, p := range ring {
		loop = append(loop, h3.LatLng{Lat: p[1], Lng: p[0]})
	}
	if len(loop) >= 2 {
		last := loop[len(loop)-1]
		first := loop[0]
		if last.Lat == first.Lat && last.Lng == first.Lng {
			loop = loop[:len(loop)-1]
		}
	}
	return loop
}

func polyfillOne(outer h3.GeoLoop, res int) ([]string, error) {
	// v4 returns ([]h3.Cell, error)
	indexes, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}
	out := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, idx.String())
	}
	return out, nil
}

func polyfillOverlapping(outer h3.GeoLoop, res int) ([]string, error) {
	indexes, err := h3.PolygonToCellsExperimental(h3.GeoPolygon{GeoLoop: outer}, res, h3.ContainmentOverlapping)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}
	out := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, idx.String())
	}
	return out, nil
}

func sortUnique(cells []string) []string {
	sort.Strings(cells)
	out := cells[:0]
	for _, c := range cells {
		if len(out) == 0 || c != out[len(out)-1] {
			out = append(out, c)
		}
	}
	return out
}
