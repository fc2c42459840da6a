package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ilemi-bj/foncier-geo/internal/invalidation"
)

type fakeLayers struct {
	mu      sync.Mutex
	evicted []string
}

func (f *fakeLayers) Invalidate(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = append(f.evicted, id)
	return true
}

type fakeReports struct {
	mu        sync.Mutex
	bounds    []orb.Bound
	bumps     int
	boundErr  error
	bumpErr   error
	boundSize int
}

func (f *fakeReports) InvalidateBound(_ context.Context, b orb.Bound) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bounds = append(f.bounds, b)
	return f.boundSize, f.boundErr
}

func (f *fakeReports) BumpGeneration(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bumps++
	return int64(f.bumps), f.bumpErr
}

func newRunner(t *testing.T, fr *fakeReports) (*Runner, *fakeLayers) {
	t.Helper()
	fl := &fakeLayers{}
	opts := Options{Register: prometheus.NewRegistry()}
	if fr != nil {
		opts.Reports = fr
	}
	return New(Config{Enabled: true}, fl, opts), fl
}

func message(t *testing.T, ev invalidation.Event) *sarama.ConsumerMessage {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: "t", Timestamp: time.Now().UTC(), Value: b}
}

func event(layer string, seq uint64) invalidation.Event {
	return invalidation.Event{Version: 1, Op: "update", Layer: layer, TS: time.Now().UTC(), Seq: seq}
}

func TestIntersectsLayerWithArea_DeletesByBound(t *testing.T) {
	fr := &fakeReports{boundSize: 3}
	r, fl := newRunner(t, fr)

	ev := event("litige", 1)
	ev.BBox = &invalidation.BBox{X1: 2.38, Y1: 6.36, X2: 2.40, Y2: 6.38, SRID: "EPSG:4326"}
	if err := r.handleMessage(context.Background(), message(t, ev)); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	if len(fl.evicted) != 1 || fl.evicted[0] != "litige" {
		t.Fatalf("layer evictions=%v", fl.evicted)
	}
	if len(fr.bounds) != 1 || fr.bumps != 0 {
		t.Fatalf("bounds=%v bumps=%d", fr.bounds, fr.bumps)
	}
	if fr.bounds[0].Min != (orb.Point{2.38, 6.36}) {
		t.Fatalf("bound=%v", fr.bounds[0])
	}
}

func TestSouthOfLayerOrWholeFile_BumpsGeneration(t *testing.T) {
	fr := &fakeReports{}
	r, _ := newRunner(t, fr)
	ctx := context.Background()

	dpm := event("dpm", 0)
	dpm.BBox = &invalidation.BBox{X1: 2.3, Y1: 6.3, X2: 2.4, Y2: 6.4, SRID: "EPSG:4326"}
	if err := r.handleMessage(ctx, message(t, dpm)); err != nil {
		t.Fatalf("dpm: %v", err)
	}
	if err := r.handleMessage(ctx, message(t, event("aif", 0))); err != nil {
		t.Fatalf("aif: %v", err)
	}
	if fr.bumps != 2 || len(fr.bounds) != 0 {
		t.Fatalf("bumps=%d bounds=%d, want 2 and 0", fr.bumps, len(fr.bounds))
	}
}

func TestFileNameLayer_ResolvesToID(t *testing.T) {
	r, fl := newRunner(t, nil)
	if err := r.handleMessage(context.Background(), message(t, event("enregistrement individuel.geojson", 0))); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	if len(fl.evicted) != 1 || fl.evicted[0] != "enregistrement_individuel" {
		t.Fatalf("evicted=%v", fl.evicted)
	}
}

func TestSeqDedupe_SkipsRedelivery(t *testing.T) {
	fr := &fakeReports{}
	r, fl := newRunner(t, fr)
	ctx := context.Background()

	for _, seq := range []uint64{5, 5, 4, 6} {
		if err := r.handleMessage(ctx, message(t, event("tf_etat", seq))); err != nil {
			t.Fatalf("seq %d: %v", seq, err)
		}
	}
	if len(fl.evicted) != 2 || fr.bumps != 2 {
		t.Fatalf("evictions=%d bumps=%d, want 2 and 2", len(fl.evicted), fr.bumps)
	}
	// sequences are tracked per layer
	if err := r.handleMessage(ctx, message(t, event("litige", 1))); err != nil {
		t.Fatalf("litige: %v", err)
	}
	if len(fl.evicted) != 3 {
		t.Fatalf("other layer must not be deduplicated")
	}
}

func TestBadMessages_AreSkipped(t *testing.T) {
	r, fl := newRunner(t, &fakeReports{})
	ctx := context.Background()

	garbage := &sarama.ConsumerMessage{Value: []byte("{not json")}
	if err := r.handleMessage(ctx, garbage); err != nil {
		t.Fatalf("undecodable message must be skipped, got %v", err)
	}
	invalid := event("litige", 0)
	invalid.Version = 9
	if err := r.handleMessage(ctx, message(t, invalid)); err != nil {
		t.Fatalf("invalid event must be skipped, got %v", err)
	}
	if len(fl.evicted) != 0 {
		t.Fatalf("nothing should have been evicted: %v", fl.evicted)
	}
}

func TestCacheFailures(t *testing.T) {
	ctx := context.Background()

	// area delete fails: fall back to a generation bump
	fr := &fakeReports{boundErr: errors.New("redis down")}
	r, _ := newRunner(t, fr)
	ev := event("litige", 0)
	ev.BBox = &invalidation.BBox{X1: 2.38, Y1: 6.36, X2: 2.40, Y2: 6.38, SRID: "EPSG:4326"}
	if err := r.handleMessage(ctx, message(t, ev)); err != nil {
		t.Fatalf("fallback should succeed: %v", err)
	}
	if fr.bumps != 1 {
		t.Fatalf("bumps=%d want 1", fr.bumps)
	}

	// both fail: error is returned so the offset is not committed
	fr = &fakeReports{boundErr: errors.New("redis down"), bumpErr: errors.New("redis down")}
	r, _ = newRunner(t, fr)
	if err := r.handleMessage(ctx, message(t, ev)); err == nil {
		t.Fatalf("expected error when reports cannot be invalidated")
	}
}

func TestReadiness(t *testing.T) {
	disabled := New(Config{}, &fakeLayers{}, Options{})
	if ok, _ := disabled.Readiness(); !ok {
		t.Fatalf("disabled runner must be ready")
	}
	if err := disabled.Start(context.Background()); err != nil {
		t.Fatalf("disabled Start: %v", err)
	}

	r, _ := newRunner(t, nil)
	if ok, _ := r.Readiness(); ok {
		t.Fatalf("enabled runner without assignment must not be ready")
	}
	r.setAssignment(map[string][]int32{"t": {0, 2}})
	ok, parts := r.Readiness()
	if !ok || len(parts) != 2 {
		t.Fatalf("ready=%v partitions=%v", ok, parts)
	}
	r.setAssignment(nil)
	if ok, _ := r.Readiness(); ok {
		t.Fatalf("cleanup must clear readiness")
	}
}

func TestSeqTracker_PerSource(t *testing.T) {
	tr := newSeqTracker(4)
	if !tr.advance("litige", "cadastre", 10) {
		t.Fatalf("first event must apply")
	}
	if tr.advance("litige", "cadastre", 10) {
		t.Fatalf("replay must be skipped")
	}
	if !tr.advance("litige", "tribunal", 3) {
		t.Fatalf("another producer keeps its own sequence")
	}
	if !tr.advance("dpm", "cadastre", 1) {
		t.Fatalf("another layer keeps its own sequence")
	}
}
