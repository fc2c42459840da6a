// Package analysis runs the parcel pipeline end to end: normalize the
// boundary, load the reference layers, match, and build the report.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/ilemi-bj/foncier-geo/internal/analysisevents"
	"github.com/ilemi-bj/foncier-geo/internal/core/model"
	"github.com/ilemi-bj/foncier-geo/internal/core/observability"
	"github.com/ilemi-bj/foncier-geo/internal/layers"
	"github.com/ilemi-bj/foncier-geo/internal/logger"
	"github.com/ilemi-bj/foncier-geo/internal/overlap"
	"github.com/ilemi-bj/foncier-geo/internal/parcel"
	"github.com/ilemi-bj/foncier-geo/internal/report"
	"github.com/ilemi-bj/foncier-geo/internal/reproject"
)

// LayerSource loads reference layers; defs and the result are parallel.
type LayerSource interface {
	LoadAll(ctx context.Context, defs []model.LayerDefinition) []model.LayerData
}

// ReportCache stores finished analyses. Implementations treat failures as misses.
type ReportCache interface {
	Get(ctx context.Context, terrain orb.Ring) (*model.Analysis, bool)
	Put(ctx context.Context, terrain orb.Ring, a *model.Analysis)
}

type EventPublisher interface {
	Publish(ev analysisevents.Event)
}

type CellLocator interface {
	CellForPoint(p orb.Point, res int) (string, error)
}

type Options struct {
	Defs    []model.LayerDefinition
	Cache   ReportCache
	Events  EventPublisher
	Cells   CellLocator
	H3Res   int
	Timeout time.Duration
	Logger  *slog.Logger
}

// Service runs the parcel pipeline: normalize, load layers, match, report.
type Service struct {
	defs    []model.LayerDefinition
	src     LayerSource
	engine  *overlap.Engine
	reports *report.Generator
	cache   ReportCache
	events  EventPublisher
	cells   CellLocator
	res     int
	timeout time.Duration
	log     *slog.Logger
}

// New returns a Service. Nil Cache and Events disable caching and publishing.
func New(src LayerSource, geo *reproject.Reprojector, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.Defs) == 0 {
		opts.Defs = layers.All()
	}
	return &Service{
		defs:    opts.Defs,
		src:     src,
		engine:  overlap.New(geo, opts.Logger),
		reports: report.New(opts.Defs, geo),
		cache:   opts.Cache,
		events:  opts.Events,
		cells:   opts.Cells,
		res:     opts.H3Res,
		timeout: opts.Timeout,
		log:     opts.Logger,
	}
}

func (s *Service) Layers() []model.LayerDefinition {
	out := make([]model.LayerDefinition, len(s.defs))
	copy(out, s.defs)
	return out
}

// FindOverlaps normalizes the boundary and matches it against every layer.
// YesNo carries OUI/NON for every layer id.
func (s *Service) FindOverlaps(ctx context.Context, points []model.IncomingPoint) (*model.OverlapResult, error) {
	ring, err := parcel.Normalize(points)
	if err != nil {
		return nil, err
	}
	return s.overlaps(ctx, ring)
}

// Report builds a report from a caller-supplied overlap analysis. data ==
// nil fails with report.ErrMissingAnalysisData.
func (s *Service) Report(ctx context.Context, terrain []orb.Point, data *model.OverlapResult) (*model.ParcelReport, error) {
	if data == nil {
		return nil, report.ErrMissingAnalysisData
	}
	ring, err := parcel.NormalizePoints(terrain)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	return s.reports.Generate(ring, data)
}

// Analyze runs the whole pipeline from raw boundary points.
func (s *Service) Analyze(ctx context.Context, points []model.IncomingPoint) (*model.Analysis, error) {
	start := time.Now()
	ring, err := parcel.Normalize(points)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if a, ok := s.cache.Get(ctx, ring); ok {
			ctx = logger.WithCacheOutcome(ctx, "hit")
			s.log.InfoContext(ctx, "parcel analysis served from cache",
				"overall_status", a.Report.Summary.OverallStatus)
			return a, nil
		}
		ctx = logger.WithCacheOutcome(ctx, "miss")
	}

	res, err := s.overlaps(ctx, ring)
	if err != nil {
		return nil, err
	}
	rep, err := s.reports.Generate(ring, res)
	if err != nil {
		return nil, err
	}
	a := &model.Analysis{Report: rep, YesNo: res.YesNo}

	elapsed := time.Since(start)
	observability.ObserveAnalysis(rep.Summary.OverallStatus, elapsed.Seconds())
	s.log.InfoContext(ctx, "parcel analysis complete",
		"overall_status", rep.Summary.OverallStatus,
		"intersecting_layers", rep.Summary.IntersectingLayerCount,
		"area_ha", rep.Summary.TotalAreaHectares,
		"geographic", rep.Geographic,
		"duration_ms", elapsed.Milliseconds())

	if s.cache != nil {
		s.cache.Put(ctx, ring, a)
	}
	s.publish(ctx, rep)
	return a, nil
}

func (s *Service) overlaps(ctx context.Context, ring orb.Ring) (*model.OverlapResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	data := s.src.LoadAll(ctx, s.defs)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load reference layers: %w", err)
	}
	matches := s.engine.MatchAll(orb.Polygon{ring}, s.defs, data)
	return &model.OverlapResult{Overlaps: matches, YesNo: YesNo(s.defs, matches)}, nil
}

// YesNo flags every layer OUI when at least one match came from it.
func YesNo(defs []model.LayerDefinition, matches []model.OverlapMatch) map[string]string {
	hit := make(map[string]bool, len(defs))
	for _, m := range matches {
		hit[m.SourceLayerID] = true
	}
	out := make(map[string]string, len(defs))
	for _, def := range defs {
		if hit[def.ID] {
			out[def.ID] = model.YesNoYes
		} else {
			out[def.ID] = model.YesNoNo
		}
	}
	return out
}

func (s *Service) publish(ctx context.Context, rep *model.ParcelReport) {
	if s.events == nil {
		return
	}
	ev := analysisevents.Event{
		OverallStatus:      rep.Summary.OverallStatus,
		IntersectingLayers: []string{},
		AreaHectares:       rep.Summary.TotalAreaHectares,
		TS:                 time.Now().UTC(),
	}
	for _, l := range rep.Layers {
		if l.Intersects {
			ev.IntersectingLayers = append(ev.IntersectingLayers, l.ID)
		}
	}
	if s.cells != nil && rep.Geographic && len(rep.TerrainCoordinates) > 0 {
		centroid, _ := planar.CentroidArea(orb.Polygon{rep.TerrainCoordinates[0]})
		if cell, err := s.cells.CellForPoint(centroid, s.res); err == nil {
			ev.Cell = cell
		} else {
			s.log.DebugContext(ctx, "event cell lookup failed", "err", err)
		}
	}
	s.events.Publish(ev)
}
