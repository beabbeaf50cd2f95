package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"osp-go-host/internal/chain"
	"osp-go-host/internal/osp"
	"osp-go-host/internal/store"
	"osp-go-host/internal/telegram"
)

const maxBody = 1 << 20

func (s *Server) handleAPITopology(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctrl.Topology())
}

func (s *Server) handleAPIResetInit(w http.ResponseWriter, r *http.Request) {
	topo, err := s.ctrl.ResetInit(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, topo)
}

func (s *Server) handleAPIScan(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.ctrl.Scan(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleAPINodeStatus(w http.ResponseWriter, r *http.Request) {
	addr, err := telegram.ParseAddress(r.PathValue("addr"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	info, err := s.ctrl.NodeStatus(r.Context(), addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleAPINodeOTP(w http.ResponseWriter, r *http.Request) {
	resp := s.ctrl.Execute(r.Context(), chain.Request{Op: "otpdump", Addr: r.PathValue("addr")})
	s.writeResponse(w, resp)
}

// handleAPIExec runs a chain.Request. A failed operation answers 422 with the
// same body shape as a successful one.
func (s *Server) handleAPIExec(w http.ResponseWriter, r *http.Request) {
	var req chain.Request
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	s.writeResponse(w, s.ctrl.Execute(r.Context(), req))
}

func (s *Server) writeResponse(w http.ResponseWriter, resp chain.Response) {
	status := http.StatusOK
	if !resp.OK {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleAPIListTraces(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeJSON(w, http.StatusOK, []any{})
		return
	}
	q := r.URL.Query()
	tq := store.TraceQuery{Op: q.Get("op"), FailedOnly: q.Get("failed") == "1" || q.Get("failed") == "true"}
	var err error
	if tq.Limit, err = limitParam(q.Get("limit"), 100); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if v := q.Get("addr"); v != "" {
		a, err := telegram.ParseAddress(v)
		if err != nil {
			s.writeError(w, err)
			return
		}
		tq.Addr = uint16(a)
	}

	traces, err := s.store.ListTraces(tq)
	if err != nil {
		s.logger.Error("list traces", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if traces == nil {
		traces = []*store.Trace{}
	}
	s.writeJSON(w, http.StatusOK, traces)
}

func (s *Server) handleAPIClearTraces(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if err := s.store.ClearTraces(); err != nil {
		s.logger.Error("clear traces", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIListDiscoveries(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeJSON(w, http.StatusOK, []any{})
		return
	}
	limit, err := limitParam(r.URL.Query().Get("limit"), 50)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	list, err := s.store.ListDiscoveries(limit)
	if err != nil {
		s.logger.Error("list discoveries", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if list == nil {
		list = []*store.Discovery{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func limitParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return n, nil
}

// writeError maps controller errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, telegram.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, chain.ErrNotDiscovered):
		status = http.StatusConflict
	case errors.Is(err, osp.ErrNoClock), errors.Is(err, chain.ErrCabling):
		status = http.StatusGatewayTimeout
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
