package layers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/ilemi-bj/foncier-geo/internal/core/model"
	"github.com/ilemi-bj/foncier-geo/internal/core/observability"
)

const (
	WarnLayerLoad           = "LayerLoadWarning"
	WarnUnsupportedGeometry = "UnsupportedGeometryWarning"
)

// Store loads reference layer datasets from a directory. Loaded layers may
// be kept in an LRU keyed by layer id; cached values are never mutated.
type Store struct {
	dir     string
	log     *slog.Logger
	cache   *lru.Cache[string, model.LayerData]
	workers int
}

type Option func(*Store)

// WithCacheSize enables the in-memory layer cache. n <= 0 disables it.
func WithCacheSize(n int) Option {
	return func(s *Store) {
		if n <= 0 {
			s.cache = nil
			return
		}
		c, err := lru.New[string, model.LayerData](n)
		if err == nil {
			s.cache = c
		}
	}
}

func WithWorkers(n int) Option {
	return func(s *Store) {
		if n < 1 {
			n = 1
		}
		s.workers = n
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		dir:     dir,
		log:     slog.Default(),
		workers: 4,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load returns the polygonal features of one layer. It never fails: a
// missing or corrupt file yields an empty LayerData and a warning log.
func (s *Store) Load(ctx context.Context, def model.LayerDefinition) model.LayerData {
	if s.cache != nil {
		if data, ok := s.cache.Get(def.ID); ok {
			observability.IncLayerLoad(def.ID, "cached")
			return shallowCopy(data)
		}
	}

	data, err := s.read(ctx, def)
	if err != nil {
		outcome := "corrupt"
		if errors.Is(err, fs.ErrNotExist) {
			outcome = "missing"
		}
		observability.IncLayerLoad(def.ID, outcome)
		s.log.WarnContext(ctx, "reference layer unavailable, treating as empty",
			"warning", WarnLayerLoad,
			"layer", def.ID,
			"file", def.SourceFile,
			"err", err,
		)
		return model.LayerData{}
	}

	observability.IncLayerLoad(def.ID, "ok")
	if s.cache != nil {
		s.cache.Add(def.ID, data)
	}
	return shallowCopy(data)
}

// LoadAll loads every definition concurrently. The result is indexed like
// defs, whatever the completion order.
func (s *Store) LoadAll(ctx context.Context, defs []model.LayerDefinition) []model.LayerData {
	out := make([]model.LayerData, len(defs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, def := range defs {
		g.Go(func() error {
			out[i] = s.Load(gctx, def)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Invalidate drops one cached layer. It reports whether an entry existed.
func (s *Store) Invalidate(id string) bool {
	if s.cache == nil {
		return false
	}
	return s.cache.Remove(id)
}

func (s *Store) read(ctx context.Context, def model.LayerDefinition) (model.LayerData, error) {
	if err := ctx.Err(); err != nil {
		return model.LayerData{}, err
	}
	p := filepath.Join(s.dir, def.SourceFile)
	b, err := os.ReadFile(p)
	if err != nil {
		return model.LayerData{}, fmt.Errorf("read %s: %w", p, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return model.LayerData{}, fmt.Errorf("decode %s: %w", p, err)
	}

	data := model.LayerData{
		Features: make([]model.ReferenceFeature, 0, len(fc.Features)),
		CRS:      collectionCRS(fc),
	}
	skipped := 0
	for _, f := range fc.Features {
		rf, ok := toReference(f)
		if !ok {
			skipped++
			continue
		}
		data.Features = append(data.Features, rf)
	}
	if skipped > 0 {
		s.log.WarnContext(ctx, "skipped non-polygonal features",
			"warning", WarnUnsupportedGeometry,
			"layer", def.ID,
			"skipped", skipped,
		)
	}
	return data, nil
}

func toReference(f *geojson.Feature) (model.ReferenceFeature, bool) {
	if f == nil || f.Geometry == nil {
		return model.ReferenceFeature{}, false
	}
	switch g := f.Geometry.(type) {
	case orb.Polygon:
		if len(g) == 0 {
			return model.ReferenceFeature{}, false
		}
	case orb.MultiPolygon:
		if len(g) == 0 {
			return model.ReferenceFeature{}, false
		}
	default:
		return model.ReferenceFeature{}, false
	}
	props := model.Properties(f.Properties)
	if props == nil {
		props = model.Properties{}
	}
	return model.ReferenceFeature{
		ID:         f.ID,
		Geometry:   f.Geometry,
		Properties: props,
		Bound:      f.Geometry.Bound(),
	}, true
}

// collectionCRS surfaces the legacy top-level "crs" member when it has the
// {type, properties} shape.
func collectionCRS(fc *geojson.FeatureCollection) *model.CRS {
	raw, ok := fc.ExtraMembers["crs"]
	if !ok || raw == nil {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var crs model.CRS
	if err := json.Unmarshal(b, &crs); err != nil {
		return nil
	}
	if crs.Type == "" || crs.Properties == nil {
		return nil
	}
	return &crs
}

func shallowCopy(d model.LayerData) model.LayerData {
	out := model.LayerData{CRS: d.CRS}
	if d.Features != nil {
		out.Features = append([]model.ReferenceFeature(nil), d.Features...)
	}
	return out
}
