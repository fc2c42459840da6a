// Package reportcache stores finished analyses in Redis, keyed by the
// parcel's H3 anchor cell and a fingerprint of its boundary.
package reportcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/ilemi-bj/foncier-geo/internal/cache/keys"
	"github.com/ilemi-bj/foncier-geo/internal/cache/redisstore"
	"github.com/ilemi-bj/foncier-geo/internal/core/model"
	"github.com/ilemi-bj/foncier-geo/internal/core/observability"
	h3mapper "github.com/ilemi-bj/foncier-geo/internal/mapper/h3"
	"github.com/ilemi-bj/foncier-geo/internal/reproject"
)

type Config struct {
	TTL       time.Duration
	OpTimeout time.Duration
	Res       int
}

type Cache struct {
	cli    *redisstore.Client
	mapper *h3mapper.Mapper
	geo    *reproject.Reprojector
	cfg    Config
	log    *slog.Logger
}

func New(cli *redisstore.Client, mapper *h3mapper.Mapper, geo *reproject.Reprojector, cfg Config, log *slog.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 150 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{cli: cli, mapper: mapper, geo: geo, cfg: cfg, log: log}
}

type placement struct {
	key   string
	cells []string
}

// place computes the report key and the index cells for a terrain ring in
// source coordinates. It fails when the ring does not reproject.
func (c *Cache) place(ctx context.Context, terrain orb.Ring) (placement, error) {
	wgs := c.geo.Ring(terrain)
	if len(wgs) < 4 {
		return placement{}, errors.New("terrain ring does not reproject to wgs84")
	}
	centroid, _ := planar.CentroidArea(orb.Polygon{wgs})
	anchor, err := c.mapper.CellForPoint(centroid, c.cfg.Res)
	if err != nil {
		return placement{}, fmt.Errorf("anchor cell: %w", err)
	}
	cells, err := c.mapper.CellsForRing(wgs, c.cfg.Res)
	if err != nil {
		return placement{}, fmt.Errorf("index cells: %w", err)
	}
	gen, err := c.cli.GetInt(ctx, keys.GenerationKey)
	if err != nil {
		return placement{}, fmt.Errorf("generation: %w", err)
	}
	fp := keys.Fingerprint(terrain, c.geo.Source())
	return placement{key: keys.ReportKey(anchor, gen, fp), cells: cells}, nil
}

// Get returns a cached analysis for the terrain ring. Every failure is a
// miss; errors are logged, never returned.
func (c *Cache) Get(ctx context.Context, terrain orb.Ring) (*model.Analysis, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()

	pl, err := c.place(ctx, terrain)
	if err != nil {
		observability.IncCacheError()
		c.log.DebugContext(ctx, "report cache lookup skipped", "err", err)
		return nil, false
	}
	raw, ok, err := c.cli.Get(ctx, pl.key)
	if err != nil {
		observability.IncCacheError()
		c.log.WarnContext(ctx, "report cache get failed", "key", pl.key, "err", err)
		return nil, false
	}
	if !ok {
		observability.IncCacheMiss()
		return nil, false
	}
	var a model.Analysis
	if err := json.Unmarshal(raw, &a); err != nil || a.Report == nil {
		observability.IncCacheError()
		c.log.WarnContext(ctx, "report cache entry undecodable; dropping", "key", pl.key, "err", err)
		_ = c.cli.Del(ctx, pl.key)
		return nil, false
	}
	observability.IncCacheHit()
	return &a, true
}

// Put stores an analysis and indexes it under every cell the parcel covers.
func (c *Cache) Put(ctx context.Context, terrain orb.Ring, a *model.Analysis) {
	if a == nil || a.Report == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()

	pl, err := c.place(ctx, terrain)
	if err != nil {
		c.log.DebugContext(ctx, "report cache store skipped", "err", err)
		return
	}
	payload, err := json.Marshal(a)
	if err != nil {
		c.log.WarnContext(ctx, "report cache encode failed", "err", err)
		return
	}
	idx := make([]string, len(pl.cells))
	for i, cell := range pl.cells {
		idx[i] = keys.IndexKey(cell)
	}
	if err := c.cli.SetIndexed(ctx, pl.key, payload, c.cfg.TTL, idx); err != nil {
		observability.IncCacheError()
		c.log.WarnContext(ctx, "report cache put failed", "key", pl.key, "err", err)
	}
}

// InvalidateBound drops every cached report indexed under a cell of the
// WGS84 bound. When the bound is too large to enumerate, the generation is
// bumped instead and -1 is returned.
func (c *Cache) InvalidateBound(ctx context.Context, b orb.Bound) (int, error) {
	cells, err := c.mapper.CellsForBound(b, c.cfg.Res)
	if errors.Is(err, h3mapper.ErrTooManyCells) {
		if _, gerr := c.BumpGeneration(ctx); gerr != nil {
			return 0, gerr
		}
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("invalidation cells: %w", err)
	}
	idx := make([]string, len(cells))
	for i, cell := range cells {
		idx[i] = keys.IndexKey(cell)
	}
	n, err := c.cli.DrainIndexes(ctx, idx)
	if err != nil {
		return 0, fmt.Errorf("drain report index: %w", err)
	}
	return n, nil
}

// BumpGeneration makes every cached report unreachable. Old entries age
// out through their TTL.
func (c *Cache) BumpGeneration(ctx context.Context) (int64, error) {
	gen, err := c.cli.Incr(ctx, keys.GenerationKey)
	if err != nil {
		return 0, fmt.Errorf("bump report generation: %w", err)
	}
	return gen, nil
}

func (c *Cache) Ping(ctx context.Context) error { return c.cli.Ping(ctx) }
