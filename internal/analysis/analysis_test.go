package analysis

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/ilemi-bj/foncier-geo/internal/analysisevents"
	"github.com/ilemi-bj/foncier-geo/internal/core/model"
	"github.com/ilemi-bj/foncier-geo/internal/layers"
	"github.com/ilemi-bj/foncier-geo/internal/parcel"
	"github.com/ilemi-bj/foncier-geo/internal/report"
	"github.com/ilemi-bj/foncier-geo/internal/reproject"
)

// 100 m square in Cotonou, UTM 31N, as surveyed
var points = []model.IncomingPoint{
	{Bornes: "B1", X: "432500", Y: "704300"},
	{Bornes: "B2", X: "432600", Y: "704300"},
	{Bornes: "B3", X: "432600", Y: "704400"},
	{Bornes: "B4", X: "432500", Y: "704400"},
}

func square(x0, y0, size float64) orb.Polygon {
	return orb.Polygon{{{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}, {x0, y0}}}
}

func feature(p orb.Polygon, props model.Properties) model.ReferenceFeature {
	return model.ReferenceFeature{Geometry: p, Properties: props, Bound: p.Bound()}
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
	data  map[string]model.LayerData
	block bool
}

func (f *fakeSource) LoadAll(ctx context.Context, defs []model.LayerDefinition) []model.LayerData {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
	}
	out := make([]model.LayerData, len(defs))
	for i, d := range defs {
		out[i] = f.data[d.ID]
	}
	return out
}

func reference() *fakeSource {
	return &fakeSource{data: map[string]model.LayerData{
		layers.Litige: {Features: []model.ReferenceFeature{
			feature(square(432550, 704350, 200), model.Properties{"nom": "Affaire Houénou", "id": 12}),
		}},
		// far north of the parcel: the parcel lies south of it
		layers.DPM: {Features: []model.ReferenceFeature{
			feature(square(400000, 800000, 1000), model.Properties{"nom": "Bande côtière"}),
		}},
		layers.AIF: {Features: []model.ReferenceFeature{
			feature(square(500000, 600000, 50), nil),
		}},
	}}
}

type fakeCache struct {
	mu    sync.Mutex
	store map[string]*model.Analysis
	puts  int
}

func (f *fakeCache) key(r orb.Ring) string { return fmt.Sprint(r) }

func (f *fakeCache) Get(_ context.Context, r orb.Ring) (*model.Analysis, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.store[f.key(r)]
	return a, ok
}

func (f *fakeCache) Put(_ context.Context, r orb.Ring, a *model.Analysis) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.store == nil {
		f.store = map[string]*model.Analysis{}
	}
	f.store[f.key(r)] = a
	f.puts++
}

type fakePublisher struct {
	mu     sync.Mutex
	events []analysisevents.Event
}

func (f *fakePublisher) Publish(ev analysisevents.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

type fakeCells struct{ res int }

func (f *fakeCells) CellForPoint(_ orb.Point, res int) (string, error) {
	f.res = res
	return "8975a4e1d4bffff", nil
}

func newService(src LayerSource, opts Options) *Service {
	return New(src, reproject.MustNew(reproject.DefaultSourceCRS), opts)
}

func TestFindOverlaps_MatchesAndYesNo(t *testing.T) {
	svc := newService(reference(), Options{})
	res, err := svc.FindOverlaps(context.Background(), points)
	if err != nil {
		t.Fatalf("FindOverlaps: %v", err)
	}
	if len(res.Overlaps) != 2 {
		t.Fatalf("overlaps=%d want 2: %+v", len(res.Overlaps), res.Overlaps)
	}
	// registry order: dpm comes before litige
	if res.Overlaps[0].SourceLayerID != layers.DPM || res.Overlaps[1].SourceLayerID != layers.Litige {
		t.Fatalf("order=%s,%s", res.Overlaps[0].SourceLayerID, res.Overlaps[1].SourceLayerID)
	}
	if id := res.Overlaps[1].FeatureID; !id.Numeric || id.Number != 12 {
		t.Fatalf("litige feature id=%+v", id)
	}
	if len(res.YesNo) != len(layers.All()) {
		t.Fatalf("yesNo must cover every layer, got %v", res.YesNo)
	}
	for id, want := range map[string]string{layers.Litige: "OUI", layers.DPM: "OUI", layers.AIF: "NON", layers.TFEtat: "NON"} {
		if res.YesNo[id] != want {
			t.Fatalf("yesNo[%s]=%s want %s", id, res.YesNo[id], want)
		}
	}
}

func TestFindOverlaps_InsufficientCoordinates(t *testing.T) {
	svc := newService(reference(), Options{})
	_, err := svc.FindOverlaps(context.Background(), points[:2])
	var ice *parcel.InsufficientCoordinatesError
	if !errors.As(err, &ice) || !errors.Is(err, parcel.ErrInvalidGeometry) {
		t.Fatalf("err=%v want InsufficientCoordinatesError", err)
	}
}

func TestReport_RequiresAnalysis(t *testing.T) {
	svc := newService(reference(), Options{})
	terrain := []orb.Point{{432500, 704300}, {432600, 704300}, {432600, 704400}, {432500, 704400}}

	if _, err := svc.Report(context.Background(), terrain, nil); !errors.Is(err, report.ErrMissingAnalysisData) {
		t.Fatalf("err=%v want ErrMissingAnalysisData", err)
	}
	rep, err := svc.Report(context.Background(), terrain, &model.OverlapResult{})
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if rep.Summary.OverallStatus != model.StatusLibre || len(rep.Layers) != len(layers.All()) {
		t.Fatalf("summary=%+v layers=%d", rep.Summary, len(rep.Layers))
	}
	if r := rep.TerrainCoordinates[0]; r[0] != r[len(r)-1] {
		t.Fatalf("terrain ring must be closed")
	}
}

func TestAnalyze_FullPipelineCachesAndPublishes(t *testing.T) {
	src := reference()
	cache := &fakeCache{}
	pub := &fakePublisher{}
	cells := &fakeCells{}
	svc := newService(src, Options{Cache: cache, Events: pub, Cells: cells, H3Res: 9})

	a, err := svc.Analyze(context.Background(), points)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Report.Summary.OverallStatus != model.StatusLitigieux {
		t.Fatalf("overall=%s want Litigieux", a.Report.Summary.OverallStatus)
	}
	if a.Report.Summary.IntersectingLayerCount != 2 || a.YesNo[layers.Litige] != model.YesNoYes {
		t.Fatalf("summary=%+v yesNo=%v", a.Report.Summary, a.YesNo)
	}
	if cache.puts != 1 {
		t.Fatalf("puts=%d want 1", cache.puts)
	}

	if len(pub.events) != 1 {
		t.Fatalf("events=%d want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Cell != "8975a4e1d4bffff" || cells.res != 9 {
		t.Fatalf("event cell=%q res=%d", ev.Cell, cells.res)
	}
	if !reflect.DeepEqual(ev.IntersectingLayers, []string{layers.DPM, layers.Litige}) {
		t.Fatalf("event layers=%v", ev.IntersectingLayers)
	}

	again, err := svc.Analyze(context.Background(), points)
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}
	if again != a {
		t.Fatalf("second call should be served from cache")
	}
	if src.calls != 1 {
		t.Fatalf("layers loaded %d times, want 1", src.calls)
	}
	if len(pub.events) != 1 {
		t.Fatalf("cache hits must not publish")
	}
}

func TestAnalyze_Idempotent(t *testing.T) {
	svc := newService(reference(), Options{})
	a1, err := svc.Analyze(context.Background(), points)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	a2, err := svc.Analyze(context.Background(), points)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !reflect.DeepEqual(a1, a2) {
		t.Fatalf("same input must give the same analysis")
	}
}

func TestAnalyze_Timeout(t *testing.T) {
	src := reference()
	src.block = true
	svc := newService(src, Options{Timeout: 20 * time.Millisecond})
	if _, err := svc.Analyze(context.Background(), points); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v want DeadlineExceeded", err)
	}
}

func TestLayers_ReturnsCopy(t *testing.T) {
	svc := newService(reference(), Options{})
	ls := svc.Layers()
	ls[0].ID = "mutated"
	if svc.Layers()[0].ID != layers.AIF {
		t.Fatalf("Layers must return a copy")
	}
}
