package httpapi

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"mfmc/core-go/internal/auth"
	"mfmc/core-go/internal/store"
)

const maxTelemetryBody = 64 << 10

type deviceCtxKey struct{}

func deviceFrom(ctx context.Context) (store.Device, bool) {
	d, ok := ctx.Value(deviceCtxKey{}).(store.Device)
	return d, ok
}

// requireDevice authenticates every /api request. The caller only ever sees a
// generic 401; the concrete reason goes to the log.
func (h *Handler) requireDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.gate == nil {
			h.writeError(w, http.StatusServiceUnavailable, "auth_unavailable", "authentication not configured", nil)
			return
		}
		if !h.ensureStore(w) {
			return
		}

		device, err := h.gate.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			var failure *auth.Failure
			if errors.As(err, &failure) || errors.Is(err, auth.ErrUnauthorized) {
				h.metrics.IncAuthFailure()
				reason := "unauthorized"
				if failure != nil {
					reason = failure.Reason
				}
				h.log.Warn().
					Str("path", r.URL.Path).
					Str("remote", r.RemoteAddr).
					Str("reason", reason).
					Msg("device authentication failed")
				w.Header().Set("WWW-Authenticate", `Basic realm="mfmc"`)
				h.writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
				return
			}
			h.log.Error().Err(err).Msg("device authentication lookup failed")
			h.writeError(w, http.StatusInternalServerError, "internal_error", "authentication lookup failed", nil)
			return
		}

		ctx := context.WithValue(r.Context(), deviceCtxKey{}, device)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusResponse struct {
	HasCommand bool    `json:"has_command"`
	CommandID  *int64  `json:"command_id,omitempty"`
	Action     *string `json:"action,omitempty"`
	TS         *int64  `json:"ts,omitempty"`
	Filename   *string `json:"filename,omitempty"`
}

// parseCursor reads last_id. Absent or empty means "no cursor"; anything that
// is not a non-negative integer is rejected.
func parseCursor(r *http.Request) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("last_id"))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return nil, errors.New("last_id must be a non-negative integer")
	}
	return &v, nil
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	device, _ := deviceFrom(r.Context())

	cursor, err := parseCursor(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"last_id": r.URL.Query().Get("last_id")})
		return
	}

	if err := h.devices.TouchDevice(r.Context(), device.ID, h.now().UTC()); err != nil {
		h.log.Warn().Err(err).Int64("device_id", device.ID).Msg("failed to update last_seen_at")
	}

	cmd, ok, err := h.commands.LatestUnseen(r.Context(), device.ID, cursor)
	if err != nil {
		h.log.Error().Err(err).Int64("device_id", device.ID).Msg("latest unseen command query failed")
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to query commands", nil)
		return
	}
	h.metrics.IncStatusPoll(ok)
	if !ok {
		h.writeJSON(w, http.StatusOK, statusResponse{HasCommand: false})
		return
	}

	action := string(cmd.Action)
	ts := cmd.CreatedAt.Unix()
	resp := statusResponse{
		HasCommand: true,
		CommandID:  &cmd.ID,
		Action:     &action,
		TS:         &ts,
	}
	if cmd.Action == store.ActionPlay && cmd.HasResource() {
		name := cmd.ResourceName
		resp.Filename = &name
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleFile(w http.ResponseWriter, r *http.Request) {
	device, _ := deviceFrom(r.Context())

	raw := strings.TrimSpace(r.URL.Query().Get("command_id"))
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "command_id is required", nil)
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "command_id must be a positive integer", map[string]any{"command_id": raw})
		return
	}

	cmd, err := h.commands.GetCommand(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "not_found", "command not found", nil)
			return
		}
		h.log.Error().Err(err).Int64("command_id", id).Msg("failed to load command")
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to load command", nil)
		return
	}

	if err := auth.Authorize(cmd, device); err != nil {
		h.log.Warn().Int64("device_id", device.ID).Int64("command_id", id).Msg("device is not a target of command")
		h.writeError(w, http.StatusForbidden, "forbidden", "device is not a target of this command", nil)
		return
	}

	if cmd.Action != store.ActionPlay || !cmd.HasResource() {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "command has no downloadable audio", map[string]any{"action": string(cmd.Action)})
		return
	}

	res, data, err := h.audio.OpenAudio(r.Context(), *cmd.ResourceID)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "not_found", "audio resource not found", nil)
			return
		}
		h.log.Error().Err(err).Int64("resource_id", *cmd.ResourceID).Msg("failed to open audio resource")
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to open audio resource", nil)
		return
	}

	filename := res.Name
	if filename == "" {
		filename = cmd.ResourceName
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(data)
	h.metrics.AddAudioBytes(n)
	if err != nil {
		h.log.Warn().Err(err).Int64("command_id", id).Int("written", n).Msg("audio stream interrupted")
	}
}

func (h *Handler) handleClientLog(w http.ResponseWriter, r *http.Request) {
	device, _ := deviceFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxTelemetryBody)
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(maxTelemetryBody)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "log payload too large", nil)
			return
		}
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid form body", nil)
		return
	}

	rec, err := h.telemetry.AppendTelemetry(r.Context(), device.ID, r.PostFormValue("level"), r.PostFormValue("message"))
	if err != nil {
		h.log.Error().Err(err).Int64("device_id", device.ID).Msg("failed to persist device log")
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to persist log", nil)
		return
	}
	h.metrics.IncTelemetryRecord()

	h.log.Debug().
		Int64("device_id", device.ID).
		Str("device", device.DisplayName()).
		Str("level", rec.Level).
		Msg("device log stored")

	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
