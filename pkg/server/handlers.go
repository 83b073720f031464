package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"github.com/clearmesh/clearmesh-agent/pkg/broker"
	"github.com/clearmesh/clearmesh-agent/pkg/broker/session"
)

// StatusResponse is the body of GET /status and of heartbeat publishes.
type StatusResponse struct {
	Connected     bool          `json:"connected"`
	BrokerURL     string        `json:"broker_url"`
	VPN           string        `json:"vpn,omitempty"`
	Uptime        string        `json:"uptime"`
	Subscriptions []string      `json:"subscriptions"`
	Stats         session.Stats `json:"stats"`
	BytesInHuman  string        `json:"bytes_in_human"`
	BytesOutHuman string        `json:"bytes_out_human"`
}

// PublishRequest is the body of POST /messages.
type PublishRequest struct {
	Destination string                 `json:"destination"`
	Content     string                 `json:"content"`
	Options     *broker.PublishOptions `json:"options,omitempty"`
}

// SubscriptionRequest is the body of POST/DELETE /subscriptions.
type SubscriptionRequest struct {
	Topic string `json:"topic"`
}

// IgnorePatternsRequest is the body of PUT /ignore-patterns.
type IgnorePatternsRequest struct {
	Patterns []string `json:"patterns"`
}

// ConsumerRequest is the body of POST /queues/{name}/consumers.
type ConsumerRequest struct {
	Type  broker.QueueType `json:"type"`
	Topic string           `json:"topic,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.statusResponse())
}

func (s *Server) PublishMessage(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Destination == "" {
		writeError(w, http.StatusBadRequest, errors.New("empty destination"))
		return
	}
	if err := s.mgr.Publish(req.Destination, req.Content, req.Options); err != nil {
		writeError(w, publishStatusCode(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.Subscriptions())
}

func (s *Server) AddSubscription(w http.ResponseWriter, r *http.Request) {
	topic, ok := decodeTopic(w, r)
	if !ok {
		return
	}
	if err := s.mgr.Subscribe(topic); err != nil {
		writeError(w, publishStatusCode(err), err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) RemoveSubscription(w http.ResponseWriter, r *http.Request) {
	topic, ok := decodeTopic(w, r)
	if !ok {
		return
	}
	if err := s.mgr.Unsubscribe(topic); err != nil {
		writeError(w, publishStatusCode(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) UpdateIgnorePatterns(w http.ResponseWriter, r *http.Request) {
	var req IgnorePatternsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mgr.SetIgnorePatterns(req.Patterns)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) StartConsumer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req ConsumerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Type == "" {
		req.Type = broker.QueueTypeQueue
	}

	onError := func(err error) {
		s.logger.Error("queue consumer failed",
			zap.String("queue", name), zap.Error(err))
	}
	consumer, err := s.mgr.ConsumeQueue(name, req.Type, req.Topic, onError)
	if err != nil {
		writeError(w, publishStatusCode(err), err)
		return
	}
	s.consumerMu.Lock()
	s.consumers = append(s.consumers, consumer)
	s.consumerMu.Unlock()
	w.WriteHeader(http.StatusCreated)
}

func decodeTopic(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", false
	}
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, errors.New("empty topic"))
		return "", false
	}
	return req.Topic, true
}

func publishStatusCode(err error) int {
	if errors.Is(err, broker.ErrNoSession) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
