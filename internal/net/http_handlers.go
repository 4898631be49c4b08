package net

import (
	"encoding/json"
	"io"
	"log"
	nethttp "net/http"
	"net/http/pprof"
	"time"

	"spool/server/internal/hub"
	"spool/server/internal/net/ws"
	"spool/server/internal/observability"
	"spool/server/internal/telemetry"
)

type HTTPHandlerConfig struct {
	ClientDir     string
	Logger        telemetry.Logger
	Socket        ws.HandlerConfig
	Observability observability.Config
}

type loadingRequest struct {
	Loading    bool     `json:"loading"`
	Message    *string  `json:"message"`
	Percentage *float64 `json:"percentage"`
}

func NewHTTPHandler(h *hub.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	if cfg.Socket.Logger == nil {
		cfg.Socket.Logger = logger
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string          `json:"status"`
			ServerTime int64           `json:"serverTime"`
			Players    []string        `json:"players"`
			Hub        hub.Diagnostics `json:"hub"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Players:    h.Players(),
			Hub:        h.Diagnostics(),
		}
		writeJSON(w, payload)
	})

	mux.HandleFunc("/world/reset", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		if err := h.ResetWorld(); err != nil {
			logger.Printf("world reset rejected: %v", err)
			httpError(w, "hub unavailable", nethttp.StatusServiceUnavailable)
			return
		}
		writeJSON(w, struct {
			Status string `json:"status"`
		}{Status: "ok"})
	})

	mux.HandleFunc("/loading", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var req loadingRequest
		if r.Body != nil {
			defer r.Body.Close()
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
				httpError(w, "invalid payload", nethttp.StatusBadRequest)
				return
			}
		}
		if err := h.SetLoading(req.Loading, req.Message, req.Percentage); err != nil {
			httpError(w, "hub unavailable", nethttp.StatusServiceUnavailable)
			return
		}
		writeJSON(w, struct {
			Status string `json:"status"`
		}{Status: "ok"})
	})

	socket := ws.NewHandler(h, cfg.Socket)
	mux.HandleFunc("/ws", socket.Handle)

	if cfg.Observability.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	if cfg.ClientDir != "" {
		fs := nethttp.FileServer(nethttp.Dir(cfg.ClientDir))
		mux.Handle("/", fs)
	}

	return mux
}

func writeJSON(w nethttp.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
