package api

import (
	"context"
	"io"
	"net/http"

	"github.com/okian/oratio/internal/domain/metricconfig"
	"github.com/okian/oratio/pkg/logger"
)

// ConfigDependencies reads and overrides the metric configuration.
type ConfigDependencies interface {
	MetricConfig(ctx context.Context) (metricconfig.Resolution, error)
	SetOverride(ctx context.Context, raw []byte) (metricconfig.Config, error)
	ClearOverride(ctx context.Context) error
}

// ConfigHandler handles metric configuration requests.
type ConfigHandler struct {
	deps ConfigDependencies
	log  logger.Logger
}

// HandleGet handles GET /metric-config.
func (h *ConfigHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_metric_config"
	res, err := h.deps.MetricConfig(r.Context())
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleSetOverride handles PUT /metric-config/override. The body is the
// JSON array of metric entries; any invalid entry rejects the document.
func (h *ConfigHandler) HandleSetOverride(w http.ResponseWriter, r *http.Request) {
	const op = "api.set_metric_override"
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, bodyError(err)))
		return
	}
	cfg, err := h.deps.SetOverride(r.Context(), raw)
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, metricconfig.Resolution{Config: cfg, Source: metricconfig.SourceOverride})
}

// HandleClearOverride handles DELETE /metric-config/override.
func (h *ConfigHandler) HandleClearOverride(w http.ResponseWriter, r *http.Request) {
	const op = "api.clear_metric_override"
	if err := h.deps.ClearOverride(r.Context()); err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
