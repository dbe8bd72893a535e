package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/oratio/internal/domain/calibration"
	"github.com/okian/oratio/pkg/logger"
)

// CalibrationDependencies manages device calibration profiles.
type CalibrationDependencies interface {
	TargetLUFS() float64
	CreateProfile(ctx context.Context, deviceID, label string, noiseFloor, referenceLevel, targetLevel float64) (calibration.Profile, error)
	CalibrateFromRecording(ctx context.Context, deviceID, label string, samples []float64, sampleRate int) (calibration.Profile, error)
	Profiles(ctx context.Context) ([]calibration.Profile, error)
	Profile(ctx context.Context, deviceID string) (calibration.Profile, error)
	DeleteProfile(ctx context.Context, deviceID string) error
	RecalibrationStatus(ctx context.Context, deviceID string) (calibration.Status, error)
}

// CalibrationHandler handles calibration profile requests.
type CalibrationHandler struct {
	deps      CalibrationDependencies
	maxUpload int64
	log       logger.Logger
}

// createProfileRequest is the body of POST /calibrations.
type createProfileRequest struct {
	DeviceID       string   `json:"device_id"`
	DeviceLabel    string   `json:"device_label"`
	NoiseFloor     *float64 `json:"noise_floor"`
	ReferenceLevel *float64 `json:"reference_level"`
	TargetLevel    *float64 `json:"target_level"`
}

func (c createProfileRequest) validate() error {
	switch {
	case strings.TrimSpace(c.DeviceID) == "":
		return fmt.Errorf("missing device_id")
	case c.NoiseFloor == nil:
		return fmt.Errorf("missing noise_floor")
	case c.ReferenceLevel == nil:
		return fmt.Errorf("missing reference_level")
	}
	return nil
}

// HandleCreate handles POST /calibrations.
func (h *CalibrationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_calibration"
	ctx := r.Context()

	var req createProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, h.log, w, Wrap(op, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(ctx, h.log, w, WrapKind(op, ErrBadRequest, err))
		return
	}
	target := h.deps.TargetLUFS()
	if req.TargetLevel != nil {
		target = *req.TargetLevel
	}
	p, err := h.deps.CreateProfile(ctx, req.DeviceID, req.DeviceLabel, *req.NoiseFloor, *req.ReferenceLevel, target)
	if err != nil {
		writeError(ctx, h.log, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleRecording handles POST /calibrations/{deviceID}/recording. The body
// is a calibration take; label comes from the query or form.
func (h *CalibrationHandler) HandleRecording(w http.ResponseWriter, r *http.Request) {
	const op = "api.calibrate_recording"
	ctx := r.Context()

	deviceID, err := pathDevice(r)
	if err != nil {
		writeError(ctx, h.log, w, Wrap(op, err))
		return
	}
	audio, err := readAudio(w, r, h.maxUpload)
	if err != nil {
		writeError(ctx, h.log, w, Wrap(op, err))
		return
	}
	p, err := h.deps.CalibrateFromRecording(ctx, deviceID, r.FormValue("label"), audio.Samples, audio.SampleRate)
	if err != nil {
		writeError(ctx, h.log, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleList handles GET /calibrations.
func (h *CalibrationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_calibrations"
	profiles, err := h.deps.Profiles(r.Context())
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

// HandleGet handles GET /calibrations/{deviceID}.
func (h *CalibrationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_calibration"
	deviceID, err := pathDevice(r)
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	p, err := h.deps.Profile(r.Context(), deviceID)
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleDelete handles DELETE /calibrations/{deviceID}.
func (h *CalibrationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_calibration"
	deviceID, err := pathDevice(r)
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	if err := h.deps.DeleteProfile(r.Context(), deviceID); err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRecalibration handles GET /calibrations/{deviceID}/recalibration.
func (h *CalibrationHandler) HandleRecalibration(w http.ResponseWriter, r *http.Request) {
	const op = "api.recalibration_status"
	deviceID, err := pathDevice(r)
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	st, err := h.deps.RecalibrationStatus(r.Context(), deviceID)
	if err != nil {
		writeError(r.Context(), h.log, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
