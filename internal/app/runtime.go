package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/devinsights/scm-normalizer/internal/config"
	"github.com/devinsights/scm-normalizer/internal/correlate"
	"github.com/devinsights/scm-normalizer/internal/health"
	"github.com/devinsights/scm-normalizer/internal/mergestate"
	"github.com/devinsights/scm-normalizer/internal/metrics"
	"github.com/devinsights/scm-normalizer/internal/providers"
	"github.com/devinsights/scm-normalizer/internal/providers/registry"
	"github.com/devinsights/scm-normalizer/internal/repomap"
	"github.com/devinsights/scm-normalizer/internal/store"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxPayloadBytes bounds one ingest request body.
const maxPayloadBytes = 32 << 20

// eventTimeHeader carries the event timestamp in epoch milliseconds.
// Absent, the server clock is used.
const eventTimeHeader = "X-Scm-Event-Time"

// Runtime is the application runtime orchestrator: it owns the ingest
// pipeline from raw payload to persisted canonical records.
type Runtime struct {
	cfg       *config.Config
	sink      store.RecordSink
	metrics   *metrics.Metrics
	evaluator *health.StatusEvaluator
	logger    *zap.Logger

	// Per-integration lookups built once from configuration.
	matchers       map[string]*repomap.Matcher
	correlators    map[string]*correlate.Correlator
	adaptersLoaded bool

	mu              sync.RWMutex
	storeHealthy    bool
	backfillHealthy bool
	probeCancel     context.CancelFunc

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewRuntime creates a runtime instance.
func NewRuntime(cfg *config.Config, sink store.RecordSink, m *metrics.Metrics, logger ...*zap.Logger) *Runtime {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if sink == nil {
		sink = store.NewMemoryStore(cfg.Store.Retention)
	}
	if m == nil {
		m = metrics.New()
	}
	baseLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		baseLogger = logger[0]
	}

	matchers := make(map[string]*repomap.Matcher, len(cfg.Integrations))
	correlators := make(map[string]*correlate.Correlator, len(cfg.Integrations))
	adaptersLoaded := true
	for _, integration := range cfg.Integrations {
		if _, err := registry.ForKind(integration.Kind); err != nil {
			baseLogger.Error("no adapter for configured integration", zap.String("integration", integration.ID), zap.Error(err))
			adaptersLoaded = false
		}
		if len(integration.DepotMapping) > 0 {
			entries := make([]repomap.Entry, 0, len(integration.DepotMapping))
			for _, mapping := range integration.DepotMapping {
				entries = append(entries, repomap.Entry{PathPrefix: mapping.PathPrefix, RepoID: mapping.RepoID})
			}
			matchers[integration.ID] = repomap.NewMatcher(entries, integration.DepotCaseSensitive)
		}
		if integration.WorkitemPattern != "" {
			correlators[integration.ID] = correlate.New(integration.WorkitemPattern)
		}
	}

	return &Runtime{
		cfg:            cfg,
		sink:           sink,
		metrics:        m,
		evaluator:      health.NewStatusEvaluator(),
		logger:         baseLogger,
		matchers:       matchers,
		correlators:    correlators,
		adaptersLoaded: adaptersLoaded,
		storeHealthy:   true,
		Now:            time.Now,
	}
}

// Handler returns the combined HTTP handler.
func (r *Runtime) Handler() http.Handler {
	ingestHandler := http.HandlerFunc(r.handleIngest)
	healthHandler := health.NewHandler(r)
	return NewHTTPHandler(ingestHandler, r.metrics.Handler(), healthHandler)
}

// CurrentStatus returns current health status.
func (r *Runtime) CurrentStatus(_ context.Context) health.Status {
	r.mu.RLock()
	input := health.Input{
		StoreHealthy:    r.storeHealthy,
		AdaptersLoaded:  r.adaptersLoaded,
		BackfillHealthy: r.backfillHealthy,
		BackfillEnabled: r.cfg.Backfill.Enabled,
	}
	r.mu.RUnlock()
	return r.evaluator.Evaluate(input)
}

// SetBackfillHealth records the backfill client's last known state.
func (r *Runtime) SetBackfillHealth(healthy bool) {
	r.mu.Lock()
	r.backfillHealthy = healthy
	r.mu.Unlock()
}

// StartStoreProbe starts the periodic store liveness probe. The probe
// flips readiness rather than failing requests preemptively.
func (r *Runtime) StartStoreProbe(ctx context.Context) {
	interval := r.cfg.Health.StoreProbeInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	probeCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if r.probeCancel != nil {
		r.probeCancel()
	}
	r.probeCancel = cancel
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		r.probeStore(probeCtx)
		for {
			select {
			case <-probeCtx.Done():
				return
			case <-ticker.C:
				r.probeStore(probeCtx)
			}
		}
	}()
}

// StopStoreProbe stops the periodic store liveness probe.
func (r *Runtime) StopStoreProbe() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.probeCancel != nil {
		r.probeCancel()
		r.probeCancel = nil
	}
}

func (r *Runtime) probeStore(ctx context.Context) {
	err := r.sink.Ping(ctx)

	r.mu.Lock()
	wasHealthy := r.storeHealthy
	r.storeHealthy = err == nil
	r.mu.Unlock()

	if err != nil && wasHealthy {
		r.logger.Warn("record store probe failed", zap.Error(err))
	}
	if err == nil && !wasHealthy {
		r.logger.Info("record store recovered")
	}
}

type ingestResponse struct {
	Integration string         `json:"integration"`
	Counts      map[string]int `json:"counts"`
	Diagnostics int            `json:"diagnostics"`
}

func (r *Runtime) handleIngest(w http.ResponseWriter, req *http.Request) {
	started := time.Now()
	integrationID := chi.URLParam(req, "integration")

	integration, ok := r.cfg.Integration(integrationID)
	if !ok {
		r.metrics.IngestFailures.WithLabelValues(integrationID, "unknown_integration").Inc()
		writeJSONError(w, http.StatusNotFound, "unknown integration")
		return
	}

	adapter, err := registry.ForKind(integration.Kind)
	if err != nil {
		r.metrics.IngestFailures.WithLabelValues(integration.ID, "unknown_provider").Inc()
		r.logger.Error("configured integration has no adapter", zap.String("integration", integration.ID), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "no adapter for integration")
		return
	}

	eventMillis, err := eventTimeMillis(req, r.Now)
	if err != nil {
		r.metrics.IngestFailures.WithLabelValues(integration.ID, "bad_event_time").Inc()
		writeJSONError(w, http.StatusBadRequest, "invalid event time header")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(req.Body, maxPayloadBytes))
	if err != nil {
		r.metrics.IngestFailures.WithLabelValues(integration.ID, "read_error").Inc()
		writeJSONError(w, http.StatusBadRequest, "read request body")
		return
	}

	normalizeCtx := providers.Context{
		IntegrationID:   integration.ID,
		RepoID:          integration.RepoID,
		Project:         integration.Project,
		EventTimeMillis: eventMillis,
		ReviewSplit:     mergestate.SplitMode(integration.ReviewSplit),
		PathMatcher:     r.matchers[integration.ID],
		Correlator:      r.correlators[integration.ID],
	}

	result, err := adapter.Normalize(normalizeCtx, payload)
	if err != nil {
		r.metrics.IngestFailures.WithLabelValues(integration.ID, "normalize_error").Inc()
		r.logger.Warn("payload rejected",
			zap.String("integration", integration.ID),
			zap.String("provider", string(integration.Kind)),
			zap.Error(err),
		)
		writeJSONError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	if err := r.sink.SaveResult(req.Context(), integration.ID, result); err != nil {
		r.metrics.IngestFailures.WithLabelValues(integration.ID, "store_error").Inc()
		r.mu.Lock()
		r.storeHealthy = false
		r.mu.Unlock()
		r.logger.Error("persist normalized records",
			zap.String("integration", integration.ID),
			zap.Error(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "persist records")
		return
	}

	r.metrics.ObserveResult(integration.ID, integration.Kind, result)
	r.metrics.IngestDuration.WithLabelValues(integration.ID).Observe(time.Since(started).Seconds())

	for _, diagnostic := range result.Diagnostics {
		r.logger.Warn("normalization diagnostic",
			zap.String("integration", integration.ID),
			zap.String("provider", string(diagnostic.Provider)),
			zap.String("reason", diagnostic.Reason),
			zap.String("file", diagnostic.File),
			zap.String("detail", diagnostic.Detail),
		)
	}
	r.logger.Debug("payload normalized",
		zap.String("integration", integration.ID),
		zap.String("provider", string(integration.Kind)),
		zap.Int("diagnostics", len(result.Diagnostics)),
		zap.Duration("duration", time.Since(started)),
	)

	writeJSON(w, http.StatusOK, ingestResponse{
		Integration: integration.ID,
		Counts:      result.Counts(),
		Diagnostics: len(result.Diagnostics),
	})
}

func eventTimeMillis(req *http.Request, now func() time.Time) (int64, error) {
	raw := strings.TrimSpace(req.Header.Get(eventTimeHeader))
	if raw == "" {
		return now().UnixMilli(), nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		return
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
