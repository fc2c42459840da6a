package metrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/ilemi-bj/foncier-geo/internal/core/observability"
)

func assertHasMetricLine(t *testing.T, body, metric string, wantLabels ...string) {
	t.Helper()
	for ln := range strings.SplitSeq(body, "\n") {
		if !strings.HasPrefix(ln, metric+"{") {
			continue
		}
		ok := true
		for _, s := range wantLabels {
			if !strings.Contains(ln, s) {
				ok = false
				break
			}
		}
		if ok && (len(ln) > 0 && ln[len(ln)-1] >= '0' && ln[len(ln)-1] <= '9') {
			return
		}
	}
	t.Fatalf("expected a %s line with labels %v; got:\n%s", metric, wantLabels, body)
}

func Test_AppMetrics_ThroughProvider(t *testing.T) {
	p := Init(Config{Build: BuildInfo{Version: "test"}})

	observability.ObserveAnalysis("Restreint", 0.015)
	observability.IncLayerLoad("restriction", "ok")
	observability.ObserveCacheOp("get", nil, 0.002)
	observability.ObserveCacheOp("set", errors.New("boom"), 0.004)
	observability.IncInvalidation("duplicate")

	body := scrape(t, p)
	assertHasMetricLine(t, body, "parcel_analyses_total", `overall_status="Restreint"`)
	assertHasMetricLine(t, body, "reference_layer_loads_total", `layer="restriction"`, `outcome="ok"`)
	assertHasMetricLine(t, body, "redis_op_duration_seconds_count", `op="get"`, `result="ok"`)
	assertHasMetricLine(t, body, "redis_op_duration_seconds_count", `op="set"`, `result="error"`)
	assertHasMetricLine(t, body, "layer_invalidation_messages_total", `outcome="duplicate"`)
	assertHasMetricLine(t, body, "foncier_build_info", `version="test"`)
}
