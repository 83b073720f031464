package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi"
	"github.com/go-chi/valve"
	"github.com/jpillora/backoff"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/clearmesh/clearmesh-agent/pkg/broker"
	"github.com/clearmesh/clearmesh-agent/pkg/broker/session"
)

const connectSettleTimeout = 10 * time.Second

// Manager is the subset of the session manager the control server drives.
type Manager interface {
	Connect(cfg *broker.Config) error
	Disconnect()
	IsConnected() bool
	Config() broker.Config
	Stats() session.Stats
	Publish(destination, content string, opts *broker.PublishOptions) error
	Subscribe(topic string) error
	Unsubscribe(topic string) error
	Subscriptions() []string
	SetIgnorePatterns(patterns []string)
	ConsumeQueue(name string, queueType broker.QueueType, topic string, onError func(error)) (broker.Consumer, error)
	SetOnMessage(fn func(broker.Message))
	SetOnStateChange(fn func(connected bool, reason string))
}

// Server defines parameters for running the ClearMesh agent control server.
type Server struct {
	Addr            string
	router          *chi.Mux
	mgr             Manager
	subscribeTopics []string
	useUnixSock     bool

	heartbeatTopic    string
	heartbeatSchedule string
	cron              *cron.Cron

	consumerMu sync.Mutex
	consumers  []broker.Consumer

	startedAt time.Time

	// signal chan use for testing.
	testSignalCh chan os.Signal

	logger *zap.Logger
}

// New creates new server instance.
func New(opts ...Option) (*Server, error) {
	s := &Server{}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	// Run and the route handlers drive the manager unconditionally.
	if s.mgr == nil {
		return nil, errors.New("manager is required")
	}

	s.router = chi.NewRouter()

	if s.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		s.logger = l
	}

	s.setupRoutes()
	s.mgr.SetOnMessage(s.handleBrokerMessage)
	s.mgr.SetOnStateChange(s.handleStateChange)
	s.useUnixSock = strings.HasPrefix(s.Addr, "unix://")
	s.Addr = strings.TrimPrefix(s.Addr, "unix://")
	s.startedAt = time.Now()

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Route("/status", func(r chi.Router) {
		r.Get("/", s.Status)
	})

	s.router.Route("/messages", func(r chi.Router) {
		r.Post("/", s.PublishMessage)
	})

	s.router.Route("/subscriptions", func(r chi.Router) {
		r.Get("/", s.ListSubscriptions)
		r.Post("/", s.AddSubscription)
		r.Delete("/", s.RemoveSubscription)
	})

	s.router.Put("/ignore-patterns", s.UpdateIgnorePatterns)

	s.router.Route("/queues", func(r chi.Router) {
		r.Post("/{name}/consumers", s.StartConsumer)
	})
}

func (s *Server) handleStateChange(connected bool, reason string) {
	if connected {
		s.logger.Info("broker session up")
		return
	}
	if reason != "" {
		s.logger.Warn("broker session down", zap.String("reason", reason))
		return
	}
	s.logger.Info("broker session closed")
}

func (s *Server) Run() error {
	// Graceful valve shut-off package to manage code preemption and shutdown signaling.
	valv := valve.New()
	baseCtx := valv.Context()

	go s.connectLoop(baseCtx)

	if s.heartbeatSchedule != "" && s.heartbeatTopic != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(s.heartbeatSchedule, s.publishHeartbeat); err != nil {
			return err
		}
		s.cron.Start()
	}

	srv := http.Server{Handler: chi.ServerBaseContext(baseCtx, s.router)}

	c := make(chan os.Signal, 1)
	if s.testSignalCh != nil {
		c = s.testSignalCh
	}
	signal.Notify(c, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-c
		s.logger.Info("shutting down...")

		if s.cron != nil {
			s.cron.Stop()
		}
		s.stopConsumers()
		s.mgr.Disconnect()

		// first valv
		if err := valv.Shutdown(20 * time.Second); err != nil {
			s.logger.Error("failed to shutdown valv")
		}

		// create context with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		// start http shutdown
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown http server")
		}

		// verify, in worst case call cancel via defer
		select {
		case <-time.After(21 * time.Second):
			s.logger.Error("not all connections done")
		case <-ctx.Done():
		}
	}()

	if s.useUnixSock {
		unixListener, err := net.Listen("unix", s.Addr)
		if err != nil {
			return err
		}
		return srv.Serve(unixListener)
	}

	srv.Addr = s.Addr
	return srv.ListenAndServe()
}

// connectLoop keeps one broker session alive: it connects with jittered
// backoff and re-issues the configured subscriptions once the session is up.
func (s *Server) connectLoop(ctx context.Context) {
	b := &backoff.Backoff{Jitter: true}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !s.mgr.IsConnected() {
			if err := s.mgr.Connect(nil); err != nil {
				s.logger.Error("failed to open broker session", zap.Error(err))
				time.Sleep(b.Duration())
				continue
			}
			if !s.waitConnected(ctx) {
				time.Sleep(b.Duration())
				continue
			}
			b.Reset()
			for _, topic := range s.subscribeTopics {
				if err := s.mgr.Subscribe(topic); err != nil {
					s.logger.Error("failed to subscribe",
						zap.String("topic", topic), zap.Error(err))
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// waitConnected blocks until the session-up event lands or the settle budget
// elapses.
func (s *Server) waitConnected(ctx context.Context) bool {
	deadline := time.Now().Add(connectSettleTimeout)
	for time.Now().Before(deadline) {
		if s.mgr.IsConnected() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return false
}

func (s *Server) publishHeartbeat() {
	if !s.mgr.IsConnected() {
		return
	}
	payload, err := json.Marshal(s.statusResponse())
	if err != nil {
		return
	}
	if err := s.mgr.Publish(s.heartbeatTopic, string(payload), nil); err != nil {
		s.logger.Warn("failed to publish heartbeat", zap.Error(err))
	}
}

func (s *Server) statusResponse() StatusResponse {
	stats := s.mgr.Stats()
	cfg := s.mgr.Config()
	return StatusResponse{
		Connected:     s.mgr.IsConnected(),
		BrokerURL:     cfg.URL,
		VPN:           cfg.VPN,
		Uptime:        time.Since(s.startedAt).Round(time.Second).String(),
		Subscriptions: s.mgr.Subscriptions(),
		Stats:         stats,
		BytesInHuman:  humanize.Bytes(stats.BytesIn),
		BytesOutHuman: humanize.Bytes(stats.BytesOut),
	}
}

func (s *Server) stopConsumers() {
	s.consumerMu.Lock()
	consumers := s.consumers
	s.consumers = nil
	s.consumerMu.Unlock()
	for _, c := range consumers {
		if err := c.Disconnect(); err != nil {
			s.logger.Warn("failed to disconnect consumer", zap.Error(err))
		}
	}
}
