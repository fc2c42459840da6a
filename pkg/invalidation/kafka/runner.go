// Package kafka consumes layer-change events and evicts whatever depends on
// the changed layer: its in-memory dataset and the cached reports.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ilemi-bj/foncier-geo/internal/core/model"
	"github.com/ilemi-bj/foncier-geo/internal/core/observability"
	"github.com/ilemi-bj/foncier-geo/internal/invalidation"
	"github.com/ilemi-bj/foncier-geo/internal/layers"
	"github.com/ilemi-bj/foncier-geo/internal/logger"
)

type Runner struct {
	log      *slog.Logger
	cfg      Config
	layers   LayerCache
	reports  ReportInvalidator
	ms       *runnerMetrics
	seq      *seqTracker
	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
	// Reports may be nil when the report cache is disabled.
	Reports ReportInvalidator
}

func New(cfg Config, lc LayerCache, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		log:     opts.Logger,
		cfg:     cfg.withDefaults(),
		layers:  lc,
		reports: opts.Reports,
		ms:      newRunnerMetrics(opts.Register),
		seq:     newSeqTracker(256),
		assign:  map[int32]struct{}{},
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.log.Info("invalidation runner disabled")
		return nil
	}
	if r.layers == nil {
		return errors.New("kafka runner: layer cache dependency is required")
	}
	if len(r.cfg.Brokers) == 0 {
		return errors.New("kafka runner: at least one broker is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			r.setAssignment(sess.Claims())
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			r.setAssignment(nil)
		},
		process: r.handleMessage,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				r.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("kafka invalidation runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("kafka invalidation runner stopped")
}

func (r *Runner) setAssignment(claims map[string][]int32) {
	r.assignMu.Lock()
	defer r.assignMu.Unlock()
	r.assign = map[int32]struct{}{}
	for _, parts := range claims {
		for _, p := range parts {
			r.assign[p] = struct{}{}
		}
	}
	r.ms.partitions.Set(float64(len(r.assign)))
	r.assigned.Store(claims != nil)
}

// Readiness reports whether the group currently owns partitions. A disabled
// runner is always ready.
func (r *Runner) Readiness() (ready bool, partitions []int32) {
	if !r.cfg.Enabled {
		return true, nil
	}
	if !r.assigned.Load() {
		return false, nil
	}
	r.assignMu.RLock()
	defer r.assignMu.RUnlock()
	for p := range r.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

// handleMessage applies one event. Undecodable or invalid events are
// logged and skipped so that a poison message cannot stall the partition;
// only cache failures are returned, which leaves the offset unmarked.
func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	if !msg.Timestamp.IsZero() {
		r.ms.lag.Set(time.Since(msg.Timestamp).Seconds())
	}

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.IncInvalidation("invalid")
		r.log.Warn("invalidation event undecodable; skipping",
			"partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		observability.IncInvalidation("invalid")
		r.log.Warn("invalidation event rejected; skipping",
			"partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}

	err := r.apply(ctx, ev)
	r.ms.processing.WithLabelValues(ev.Op).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.IncInvalidation("error")
		return err
	}
	return nil
}

func (r *Runner) apply(ctx context.Context, ev invalidation.Event) error {
	layerID := ev.Layer
	if id, ok := layers.ResolveDocument(ev.Layer); ok {
		layerID = id
	}

	if ev.Seq > 0 && !r.seq.advance(layerID, ev.Source, ev.Seq) {
		observability.IncInvalidation("duplicate")
		r.ms.actions.WithLabelValues("skip_seq").Inc()
		return nil
	}

	if r.layers.Invalidate(layerID) {
		r.ms.actions.WithLabelValues("layer_evict").Inc()
	}

	if r.reports != nil {
		if err := r.evictReports(ctx, layerID, ev); err != nil {
			return err
		}
	}

	observability.IncInvalidation("ok")
	r.log.InfoContext(logger.WithLayer(ctx, layerID), "layer change applied", "op", ev.Op, "seq", ev.Seq, "source", ev.Source)
	return nil
}

// evictReports drops the reports that can depend on the changed area. A
// south-of-bbox layer compares against whole-feature extents, so a local
// change can flip the outcome for parcels far from it: those layers always
// bump the generation, as do events without an area.
func (r *Runner) evictReports(ctx context.Context, layerID string, ev invalidation.Event) error {
	def, known := layers.ByID(layerID)
	area, hasArea := ev.Area()

	if known && hasArea && def.Strategy == model.Intersects {
		n, err := r.reports.InvalidateBound(ctx, area)
		if err == nil {
			if n < 0 {
				r.ms.actions.WithLabelValues("generation_bump").Inc()
			} else {
				r.ms.actions.WithLabelValues("report_delete").Add(float64(n))
			}
			return nil
		}
		r.log.Warn("area invalidation failed; bumping generation", "layer", layerID, "err", err)
	}

	if _, err := r.reports.BumpGeneration(ctx); err != nil {
		return fmt.Errorf("invalidate reports for %s: %w", layerID, err)
	}
	r.ms.actions.WithLabelValues("generation_bump").Inc()
	return nil
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return fmt.Errorf("process failed (topic=%s, part=%d, off=%d): %w",
				msg.Topic, msg.Partition, msg.Offset, err)
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
