package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/thaw/internal/config"
	"github.com/example/thaw/internal/ipc"
	"github.com/example/thaw/internal/logging"
)

const (
	probeTimeout   = 200 * time.Millisecond
	acquireRetries = 3
)

// Service is the helper process: it owns the endpoint socket and answers
// ownership queries for the main process.
type Service struct {
	cfg      config.Config
	endpoint ipc.Endpoint
	resolver OwnerResolver

	mu       sync.Mutex
	active   int
	idle     *time.Timer
	sessions sync.WaitGroup
	idleHit  atomic.Bool
}

// Option customizes a Service.
type Option func(*Service)

// WithEndpoint overrides the endpoint derived from the configuration.
func WithEndpoint(endpoint ipc.Endpoint) Option {
	return func(s *Service) {
		s.endpoint = endpoint
	}
}

// New constructs a Service answering queries with resolver.
func New(cfg config.Config, resolver OwnerResolver, opts ...Option) (*Service, error) {
	if resolver == nil {
		return nil, errors.New("service: nil resolver")
	}
	srv := &Service{cfg: cfg, resolver: resolver}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.endpoint.Path == "" {
		endpoint, err := ipc.ForService(cfg.ServiceName, cfg.SocketDir)
		if err != nil {
			return nil, fmt.Errorf("resolve endpoint: %w", err)
		}
		srv.endpoint = endpoint
	}
	return srv, nil
}

// Endpoint exposes the listening endpoint for logging and diagnostics.
func (s *Service) Endpoint() string {
	return s.endpoint.String()
}

// Run serves connections until ctx is canceled or the idle timeout expires.
// Cancellation returns ctx's error once every session has drained. An idle
// exit returns nil.
func (s *Service) Run(ctx context.Context) error {
	listener, err := s.endpoint.Acquire(ctx, probeTimeout, acquireRetries)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.endpoint.String(), err)
	}
	defer os.Remove(s.endpoint.Path)
	defer listener.Close()

	log.Printf("service: listening on %s", s.endpoint.String())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.armIdle(cancel)

	go func() {
		<-runCtx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-runCtx.Done():
				s.sessions.Wait()
				if s.idleHit.Load() && ctx.Err() == nil {
					log.Printf("service: idle for %s, exiting", s.cfg.IdleTimeout)
					return nil
				}
				log.Println("service: shutting down")
				return ctx.Err()
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				log.Printf("service: temporary accept error: %v", err)
				time.Sleep(250 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept connection: %w", err)
		}

		s.sessions.Add(1)
		s.connOpened()
		go func() {
			defer s.sessions.Done()
			defer s.connClosed()
			s.handleConnection(runCtx, conn)
		}()
	}
}

func (s *Service) handleConnection(ctx context.Context, conn net.Conn) {
	if err := ipc.CheckPeer(conn); err != nil {
		log.Printf("service: %v", err)
		conn.Close()
		return
	}

	session := NewSession(conn, s.resolver, SessionOptions{
		GracePeriod:   s.cfg.GracePeriod,
		MaxConcurrent: s.cfg.MaxConcurrent,
	})
	logging.Debugf("service: session opened")
	if err := session.Run(ctx); err != nil {
		log.Printf("service: session ended: %v", err)
		return
	}
	logging.Debugf("service: session closed")
}

func (s *Service) armIdle(cancel context.CancelFunc) {
	if s.cfg.IdleTimeout <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idle = time.AfterFunc(s.cfg.IdleTimeout, func() {
		s.idleHit.Store(true)
		cancel()
	})
}

func (s *Service) connOpened() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active++
	if s.idle != nil {
		s.idle.Stop()
	}
}

func (s *Service) connClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
	if s.active == 0 && s.idle != nil {
		s.idle.Reset(s.cfg.IdleTimeout)
	}
}
