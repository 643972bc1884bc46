package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/example/thaw/internal/config"
	"github.com/example/thaw/internal/ipc"
	"github.com/example/thaw/internal/logging"
	"github.com/example/thaw/internal/protocol"
)

const redialInterval = 25 * time.Millisecond

// DialFunc connects to the helper endpoint.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Option customizes a Proxy.
type Option func(*Proxy)

// WithLauncher replaces the function that starts the helper process.
func WithLauncher(fn LaunchFunc) Option {
	return func(p *Proxy) {
		p.launch = fn
	}
}

// WithDialer replaces the function that connects to the helper.
func WithDialer(fn DialFunc) Option {
	return func(p *Proxy) {
		p.dial = fn
	}
}

// WithEndpoint overrides the endpoint derived from the configuration.
func WithEndpoint(endpoint ipc.Endpoint) Option {
	return func(p *Proxy) {
		p.endpoint = endpoint
	}
}

// Proxy is the main process's handle on the helper. It is safe for
// concurrent use.
type Proxy struct {
	cfg      config.Config
	endpoint ipc.Endpoint
	launch   LaunchFunc
	dial     DialFunc

	startMu sync.Mutex

	mu     sync.Mutex
	link   *link
	helper HelperProcess
	closed bool
}

// New returns a proxy for the helper named by cfg. No connection is made
// until Start or the first request.
func New(cfg config.Config, opts ...Option) (*Proxy, error) {
	p := &Proxy{cfg: cfg, launch: launchHelperProcess}
	for _, opt := range opts {
		opt(p)
	}
	if p.endpoint.Path == "" {
		endpoint, err := ipc.ForService(cfg.ServiceName, cfg.SocketDir)
		if err != nil {
			return nil, fmt.Errorf("resolve endpoint: %w", err)
		}
		p.endpoint = endpoint
	}
	if p.dial == nil {
		p.dial = p.endpoint.DialContext
	}
	return p, nil
}

// Endpoint exposes the helper endpoint for logging and diagnostics.
func (p *Proxy) Endpoint() string {
	return p.endpoint.String()
}

// Start connects to the helper, launching it when nothing listens, and
// performs the start handshake. It is a no-op while connected. Failures are
// reported as *LaunchError.
func (p *Proxy) Start(ctx context.Context) error {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return &LaunchError{Err: errors.New("proxy closed")}
	}
	if p.link != nil && p.link.alive() {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.StartTimeout)
	defer cancel()

	conn, helper, err := p.connect(ctx)
	if err != nil {
		return &LaunchError{Err: err}
	}

	l := newLink(conn)
	if err := p.handshake(ctx, l); err != nil {
		l.fail(fmt.Errorf("%w: %v", ErrHelperUnavailable, err))
		stopHelper(helper)
		return &LaunchError{Err: err}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		l.fail(fmt.Errorf("%w: proxy closed", ErrHelperUnavailable))
		stopHelper(helper)
		return &LaunchError{Err: errors.New("proxy closed")}
	}
	p.link = l
	if helper != nil {
		p.helper = helper
	}
	current := p.helper
	p.mu.Unlock()

	if current != nil {
		go p.monitor(current, l)
	}
	log.Printf("client: connected to %s", p.endpoint.String())
	return nil
}

// stopHelper stops a helper launched by a start attempt that did not
// produce a usable link. A detached helper would otherwise outlive us.
func stopHelper(helper HelperProcess) {
	if helper == nil {
		return
	}
	if err := helper.Stop(); err != nil {
		log.Printf("client: stop helper: %v", err)
	}
}

// connect dials the helper, launching it first when nothing listens. The
// returned process is non-nil only when this call launched it.
func (p *Proxy) connect(ctx context.Context) (net.Conn, HelperProcess, error) {
	conn, err := p.dial(ctx)
	if err == nil {
		return conn, nil, nil
	}
	if !ipc.IsNotListening(err) {
		return nil, nil, fmt.Errorf("dial %s: %w", p.endpoint.String(), err)
	}

	spec := HelperSpec{
		Path:       p.cfg.HelperPath,
		Socket:     p.endpoint.Path,
		Name:       p.endpoint.Name,
		Debug:      logging.DebugEnabled(),
		ConfigPath: p.cfg.Source,
	}
	logging.Debugf("client: launching helper %v", spec.Args())
	helper, err := p.launch(ctx, spec)
	if err != nil {
		return nil, nil, err
	}

	if err := ipc.WaitForSocket(ctx, p.endpoint.Path); err != nil {
		stopHelper(helper)
		return nil, nil, err
	}

	// The socket file appears at bind, slightly before the helper accepts.
	for {
		conn, err := p.dial(ctx)
		if err == nil {
			return conn, helper, nil
		}
		if !ipc.IsNotListening(err) {
			stopHelper(helper)
			return nil, nil, fmt.Errorf("dial %s: %w", p.endpoint.String(), err)
		}
		select {
		case <-helper.Done():
			return nil, nil, fmt.Errorf("helper exited: %v", helper.Err())
		case <-ctx.Done():
			stopHelper(helper)
			return nil, nil, fmt.Errorf("wait for helper: %w", ctx.Err())
		case <-time.After(redialInterval):
		}
	}
}

func (p *Proxy) handshake(ctx context.Context, l *link) error {
	_, ch, err := l.send(protocol.StartRequest{})
	if err != nil {
		return err
	}
	select {
	case resp, ok := <-ch:
		if !ok {
			return l.Err()
		}
		if _, ok := resp.(protocol.StartResponse); !ok {
			return fmt.Errorf("%w: start answered with %s", protocol.ErrProtocolViolation, resp.Discriminant())
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("start handshake: %w", ctx.Err())
	}
}

// monitor tears the link down when the helper it talks to exits.
func (p *Proxy) monitor(helper HelperProcess, l *link) {
	select {
	case <-helper.Done():
		log.Printf("client: helper exited: %v", helper.Err())
		l.fail(fmt.Errorf("%w: helper exited", ErrHelperUnavailable))
		p.mu.Lock()
		if p.helper == helper {
			p.helper = nil
		}
		p.mu.Unlock()
	case <-l.done:
	}
}

// current returns a live link, starting one when the previous link was lost
// or none was ever made. Each call makes at most one start attempt.
func (p *Proxy) current(ctx context.Context) (*link, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: proxy closed", ErrHelperUnavailable)
	}
	l := p.link
	p.mu.Unlock()
	if l != nil && l.alive() {
		return l, nil
	}

	if err := p.Start(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHelperUnavailable, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.link == nil {
		return nil, ErrHelperUnavailable
	}
	return p.link, nil
}

// ResolveSourcePID asks the helper which process owns the window described by
// info. A timeout <= 0 uses the configured request timeout.
func (p *Proxy) ResolveSourcePID(ctx context.Context, info protocol.WindowInfo, timeout time.Duration) (protocol.Owner, error) {
	if timeout <= 0 {
		timeout = p.cfg.RequestTimeout
	}

	l, err := p.current(ctx)
	if err != nil {
		return protocol.Owner{}, err
	}

	token, ch, err := l.send(protocol.SourcePIDRequest{Window: info})
	if err != nil {
		return protocol.Owner{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return protocol.Owner{}, l.Err()
		}
		r, ok := resp.(protocol.SourcePIDResponse)
		if !ok {
			return protocol.Owner{}, fmt.Errorf("%w: sourcePID answered with %s", protocol.ErrProtocolViolation, resp.Discriminant())
		}
		return r.Owner, nil
	case <-timer.C:
		l.pending.remove(token)
		logging.Debugf("client: window %d timed out after %s", info.WindowID, timeout)
		return protocol.Owner{}, fmt.Errorf("%w: window %d after %s", ErrTimeout, info.WindowID, timeout)
	case <-ctx.Done():
		l.pending.remove(token)
		return protocol.Owner{}, ctx.Err()
	}
}

// Close drops the connection, fails pending calls and stops a helper this
// proxy launched.
func (p *Proxy) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	l := p.link
	helper := p.helper
	p.link = nil
	p.helper = nil
	p.mu.Unlock()

	if l != nil {
		l.fail(fmt.Errorf("%w: proxy closed", ErrHelperUnavailable))
	}
	if helper != nil {
		if err := helper.Stop(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stop helper: %w", err)
		}
	}
	return nil
}
