package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const messagesPath = "/messages/"

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
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
	defer s.metrics.StreamOpened(string(TransportSSE))()

	sess := newSession()
	defer sess.attach()()
	if err := s.sessions.add(sess); err != nil {
		http.Error(w, "too many open sessions", http.StatusServiceUnavailable)
		return
	}
	defer s.sessions.remove(sess.id)

	setEventStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := writeSSE(w, "endpoint", []byte(messagesPath+"?session_id="+sess.id)); err != nil {
		return
	}
	flusher.Flush()
	s.logger.Info("sse session opened", "component", "transport", "session_id", sess.id)
	s.streamLoop(r.Context(), w, flusher, sess)
	s.logger.Info("sse session closed", "component", "transport", "session_id", sess.id)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	sess := s.sessions.get(id)
	if sess == nil {
		http.Error(w, "Could not find session", http.StatusNotFound)
		return
	}
	body, status := readBody(w, r)
	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "Could not parse message", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")

	ctx := context.WithoutCancel(r.Context())
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if resp, ok := s.protocol.Handle(ctx, body); ok {
			if !sess.send(resp) {
				s.logger.Debug("response dropped for closed session", "component", "transport", "session_id", sess.id)
			}
		}
	}()
}

// streamLoop writes queued messages and keepalive comments until the client leaves,
// the session is deleted or the server shuts down.
func (s *Server) streamLoop(ctx context.Context, w io.Writer, flusher http.Flusher, sess *session) {
	heartbeat := time.NewTicker(s.keepAlive)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		case <-sess.done:
			return
		case msg := <-sess.outbox:
			if err := writeSSE(w, "message", msg); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func setEventStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func writeSSE(w io.Writer, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// readBody returns the request body or the HTTP status to fail with.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, int) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRPCBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, http.StatusRequestEntityTooLarge
		}
		return nil, http.StatusBadRequest
	}
	return body, 0
}
