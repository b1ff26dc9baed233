package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/device"
	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/syncjob"
	"github.com/cmlabs-hris/attendance-sync-go/internal/handler/http/response"
)

type DeviceHandler interface {
	List(w http.ResponseWriter, r *http.Request)
	TestConnection(w http.ResponseWriter, r *http.Request)
	GetInfo(w http.ResponseWriter, r *http.Request)
}

type deviceHandlerImpl struct {
	orchestrator syncjob.Orchestrator
	devices      []device.Config
}

func NewDeviceHandler(orchestrator syncjob.Orchestrator, devices []device.Config) DeviceHandler {
	return &deviceHandlerImpl{
		orchestrator: orchestrator,
		devices:      devices,
	}
}

// List implements DeviceHandler. It serves the configured devices so the
// dashboard never needs the raw configuration file.
func (h *deviceHandlerImpl) List(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, h.devices)
}

// TestConnection implements DeviceHandler. The device config comes either
// from the body or, for a configured device, from the id in the path.
func (h *deviceHandlerImpl) TestConnection(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.resolveConfig(w, r)
	if !ok {
		return
	}

	result := h.orchestrator.TestConnection(r.Context(), cfg)
	response.Success(w, result)
}

// GetInfo implements DeviceHandler.
func (h *deviceHandlerImpl) GetInfo(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.resolveConfig(w, r)
	if !ok {
		return
	}

	info, err := h.orchestrator.GetDeviceInfo(r.Context(), cfg)
	if err != nil {
		slog.Error("Failed to get device info", "device", cfg.ID, "error", err)
		response.BadGateway(w, err.Error())
		return
	}

	response.Success(w, info)
}

func (h *deviceHandlerImpl) resolveConfig(w http.ResponseWriter, r *http.Request) (device.Config, bool) {
	if deviceID := chi.URLParam(r, "deviceID"); deviceID != "" {
		for _, cfg := range h.devices {
			if cfg.ID == deviceID {
				return cfg, true
			}
		}
		response.NotFound(w, device.ErrDeviceNotFound.Error())
		return device.Config{}, false
	}

	var cfg device.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return device.Config{}, false
	}
	if cfg.Host == "" || cfg.Port == 0 {
		response.BadRequest(w, "Device host and port are required", nil)
		return device.Config{}, false
	}
	return cfg, true
}
