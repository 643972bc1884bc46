package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/example/thaw/internal/logging"
	"github.com/example/thaw/internal/protocol"
)

// OwnerResolver answers ownership queries for a session.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, info protocol.WindowInfo) (protocol.Owner, error)
}

// SessionOptions tunes a session.
type SessionOptions struct {
	// GracePeriod bounds how long in-flight resolutions may finish after the
	// client goes away.
	GracePeriod time.Duration
	// MaxConcurrent bounds parallel resolver calls. Zero means one.
	MaxConcurrent int
}

// Session serves one client connection.
type Session struct {
	conn     net.Conn
	resolver OwnerResolver
	opts     SessionOptions
	sem      chan struct{}

	mu    sync.Mutex
	state State

	writeMu  sync.Mutex
	inflight sync.WaitGroup
}

// NewSession wraps conn. The session owns conn and closes it when Run returns.
func NewSession(conn net.Conn, resolver OwnerResolver, opts SessionOptions) *Session {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	return &Session{
		conn:     conn,
		resolver: resolver,
		opts:     opts,
		sem:      make(chan struct{}, opts.MaxConcurrent),
		state:    StateAwaitingStart,
	}
}

// State reports the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) fire(ev event) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := transition(s.state, ev)
	if err != nil {
		log.Printf("service: session: %v", err)
		return s.state
	}
	if next != s.state {
		logging.Debugf("service: session %s -> %s", s.state, next)
	}
	s.state = next
	return next
}

// Run reads requests until the client disconnects, ctx ends, or the client
// breaks the protocol. Orderly closes return nil. Protocol violations and
// malformed frames return an error wrapping the matching protocol sentinel.
func (s *Session) Run(ctx context.Context) error {
	// Resolutions outlive ctx by the grace period.
	resolveCtx, cancelResolve := context.WithCancel(context.Background())
	defer cancelResolve()

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		frame, err := protocol.ReadFrame(s.conn)
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedFrame) {
				return s.abort(err)
			}
			if ctx.Err() == nil && !isDisconnect(err) {
				log.Printf("service: read request: %v", err)
			}
			s.drain(cancelResolve)
			return nil
		}

		token, msg, err := protocol.Decode(frame)
		if err != nil {
			return s.abort(err)
		}

		switch m := msg.(type) {
		case protocol.StartRequest:
			s.fire(eventStart)
			s.write(protocol.StartResponse{}, token)
		case protocol.SourcePIDRequest:
			if s.State() != StateActive {
				return s.abort(fmt.Errorf("%w: sourcePID before start", protocol.ErrProtocolViolation))
			}
			s.fire(eventRequest)
			s.dispatch(resolveCtx, m.Window, token)
		default:
			return s.abort(fmt.Errorf("%w: client sent %s", protocol.ErrProtocolViolation, msg.Discriminant()))
		}
	}
}

func (s *Session) dispatch(ctx context.Context, window protocol.WindowInfo, token protocol.Token) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		owner, err := s.resolver.ResolveOwner(ctx, window)
		<-s.sem

		if err != nil {
			log.Printf("service: resolve window %d: %v", window.WindowID, err)
			owner = protocol.Owner{Status: protocol.OwnerUnavailable}
		}
		s.write(protocol.SourcePIDResponse{Owner: owner}, token)
	}()
}

func (s *Session) write(msg protocol.Response, token protocol.Token) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := protocol.WriteFrame(s.conn, msg, token); err != nil {
		logging.Debugf("service: write %s %s: %v", msg.Discriminant(), token, err)
	}
}

// drain waits up to the grace period for in-flight resolutions, then closes.
func (s *Session) drain(cancelResolve context.CancelFunc) {
	if s.fire(eventDisconnect) == StateClosing {
		done := make(chan struct{})
		go func() {
			s.inflight.Wait()
			close(done)
		}()

		timer := time.NewTimer(s.opts.GracePeriod)
		select {
		case <-done:
		case <-timer.C:
			logging.Debugf("service: grace period elapsed with resolutions in flight")
		}
		timer.Stop()
		s.fire(eventDrained)
	}
	cancelResolve()
	s.conn.Close()
}

func (s *Session) abort(err error) error {
	s.fire(eventViolation)
	s.conn.Close()
	log.Printf("service: closing connection: %v", err)
	return err
}

func isDisconnect(err error) bool {
	var ne net.Error
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.As(err, &ne)
}
