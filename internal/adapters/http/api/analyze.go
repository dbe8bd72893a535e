package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/oratio/internal/domain/model"
	"github.com/okian/oratio/pkg/logger"
)

// AnalyzeDependencies runs analyses.
type AnalyzeDependencies interface {
	Analyze(ctx context.Context, in model.Input) (model.Result, error)
}

// AnalyzeHandler handles analysis requests.
type AnalyzeHandler struct {
	deps      AnalyzeDependencies
	maxUpload int64
	log       logger.Logger
}

// HandleAnalyze handles POST /analyze. The body is a WAV or FLAC file;
// device_id, word_count and voice_activity come from the query or form.
func (h *AnalyzeHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	const op = "api.analyze"
	ctx := r.Context()

	audio, err := readAudio(w, r, h.maxUpload)
	if err != nil {
		writeError(ctx, h.log, w, Wrap(op, err))
		return
	}

	in := model.Input{
		Samples:    audio.Samples,
		SampleRate: audio.SampleRate,
		DeviceID:   r.FormValue("device_id"),
	}
	if raw := r.FormValue("word_count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(ctx, h.log, w, WrapKind(op, ErrBadRequest, fmt.Errorf("invalid word_count %q", raw)))
			return
		}
		in.WordCount = &n
	}
	if raw := r.FormValue("voice_activity"); raw != "" {
		var va model.VoiceActivity
		if err := json.Unmarshal([]byte(raw), &va); err != nil {
			writeError(ctx, h.log, w, WrapKind(op, ErrBadRequest, fmt.Errorf("invalid voice_activity: %w", err)))
			return
		}
		in.VoiceActivity = &va
	}

	res, err := h.deps.Analyze(ctx, in)
	if err != nil {
		writeError(ctx, h.log, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
