package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"saturn/internal/domain"
	"saturn/internal/ratelimit"
	"saturn/internal/register"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleRegisterInstrument tracks a new symbol and seeds its backfill.
// Registering an already-tracked symbol is a 200 instead of a 201.
func (s *Server) handleRegisterInstrument(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol parameter")
		return
	}
	kind := domain.InstrumentKind(r.URL.Query().Get("kind"))
	switch kind {
	case "":
		kind = domain.KindStock
	case domain.KindStock, domain.KindCrypto:
	default:
		writeError(w, http.StatusBadRequest, "kind must be stock or crypto")
		return
	}

	inst, created, err := s.registrar.Register(r.Context(), symbol, kind)
	if err != nil {
		if errors.Is(err, register.ErrUnknownSymbol) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.log.Error("registration failed", "symbol", symbol, "err", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{
		"instrument": inst,
		"created":    created,
	})
}

// handleListInstruments returns all tracked instruments.
func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := s.store.ListInstruments(r.Context())
	if err != nil {
		s.log.Error("listing instruments failed", "err", err)
		writeError(w, http.StatusInternalServerError, "listing instruments failed")
		return
	}
	if instruments == nil {
		instruments = []domain.Instrument{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"instruments": instruments})
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Store       string                              `json:"store"`
	Instruments int                                 `json:"instruments"`
	Limiters    map[string][]ratelimit.WindowStatus `json:"limiters"`
}

// handleStatus reports store health and every limiter window.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Store:    "ok",
		Limiters: make(map[string][]ratelimit.WindowStatus, len(s.limiters)),
	}

	if err := s.store.Ping(r.Context()); err != nil {
		resp.Store = "unreachable"
	} else if instruments, err := s.store.ListInstruments(r.Context()); err == nil {
		resp.Instruments = len(instruments)
	}

	for _, l := range s.limiters {
		statuses, err := l.Status()
		if err != nil {
			s.log.Error("limiter status failed", "limiter", l.Name(), "err", err)
			writeError(w, http.StatusServiceUnavailable, "limiter store unreachable")
			return
		}
		resp.Limiters[l.Name()] = statuses
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
