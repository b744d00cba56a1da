package rpc

import (
	"encoding/json"
	"net/http"
	"strings"
)

const mcpPath = "/mcp"

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleMCPPost(w, r)
	case http.MethodGet:
		s.handleMCPStream(w, r)
	case http.MethodDelete:
		s.handleMCPDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMCPPost(w http.ResponseWriter, r *http.Request) {
	body, status := readBody(w, r)
	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if !json.Valid(body) {
		writeRPC(w, http.StatusBadRequest, encodeResponse(newError(nil, codeParseError, "parse error")))
		return
	}

	var sess *session
	if isInitialize(body) {
		sess = newSession()
		if err := s.sessions.add(sess); err != nil {
			s.logger.Warn("session rejected", "component", "transport", "error", err)
			writeRPC(w, http.StatusServiceUnavailable, encodeResponse(newError(nil, codeInternalError, "too many open sessions")))
			return
		}
		s.logger.Info("http session opened", "component", "transport", "session_id", sess.id)
	} else {
		var failed bool
		if sess, failed = s.lookupSession(w, r); failed {
			return
		}
	}
	w.Header().Set(sessionHeader, sess.id)

	resp, ok := s.protocol.Handle(r.Context(), body)
	if !ok {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if !acceptsEventStream(r) {
		writeRPC(w, http.StatusOK, resp)
		return
	}
	setEventStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	_ = writeSSE(w, "message", resp)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// handleMCPStream holds open the standalone server-to-client stream of a session.
func (s *Server) handleMCPStream(w http.ResponseWriter, r *http.Request) {
	if !acceptsEventStream(r) {
		http.Error(w, "Not Acceptable: client must accept text/event-stream", http.StatusNotAcceptable)
		return
	}
	sess, failed := s.lookupSession(w, r)
	if failed {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming is not supported", http.StatusInternalServerError)
		return
	}
	release, allowed := s.streams.acquire(clientKey(r))
	if !allowed {
		http.Error(w, "too many open streams", http.StatusTooManyRequests)
		return
	}
	defer release()
	defer s.metrics.StreamOpened(string(TransportHTTP))()

	defer sess.attach()()

	w.Header().Set(sessionHeader, sess.id)
	setEventStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	s.streamLoop(r.Context(), w, flusher, sess)
}

func (s *Server) handleMCPDelete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.Header.Get(sessionHeader))
	if id == "" {
		http.Error(w, "Bad Request: missing session id", http.StatusBadRequest)
		return
	}
	if s.sessions.remove(id) == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	s.logger.Info("http session closed", "component", "transport", "session_id", id)
	w.WriteHeader(http.StatusOK)
}

// lookupSession resolves the Mcp-Session-Id header, writing 400 or 404 when it fails.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session, bool) {
	id := strings.TrimSpace(r.Header.Get(sessionHeader))
	if id == "" {
		writeRPC(w, http.StatusBadRequest, encodeResponse(newError(nil, codeInvalidRequest, "Bad Request: missing session id")))
		return nil, true
	}
	sess := s.sessions.get(id)
	if sess == nil {
		writeRPC(w, http.StatusNotFound, encodeResponse(newError(nil, codeInvalidRequest, "Session not found")))
		return nil, true
	}
	return sess, false
}

func acceptsEventStream(r *http.Request) bool {
	for _, v := range r.Header.Values("Accept") {
		if strings.Contains(strings.ToLower(v), "text/event-stream") {
			return true
		}
	}
	return false
}
