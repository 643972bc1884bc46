package client

import (
	"sync"

	"github.com/example/thaw/internal/protocol"
)

type pendingCall struct {
	req protocol.Request
	ch  chan protocol.Response
}

// pendingTable correlates outstanding requests with their responses. Entries
// are added by the issuing caller and removed exactly once, by delivery,
// timeout or connection failure.
type pendingTable struct {
	mu     sync.Mutex
	calls  map[protocol.Token]pendingCall
	failed bool
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[protocol.Token]pendingCall)}
}

// add registers token. It returns false once the table has failed.
func (p *pendingTable) add(token protocol.Token, req protocol.Request) (<-chan protocol.Response, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failed {
		return nil, false
	}
	ch := make(chan protocol.Response, 1)
	p.calls[token] = pendingCall{req: req, ch: ch}
	return ch, true
}

// take removes and returns the call registered under token.
func (p *pendingTable) take(token protocol.Token) (pendingCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	call, ok := p.calls[token]
	if ok {
		delete(p.calls, token)
	}
	return call, ok
}

func (p *pendingTable) remove(token protocol.Token) {
	p.take(token)
}

// failAll closes every outstanding call and refuses new ones.
func (p *pendingTable) failAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = true
	for token, call := range p.calls {
		close(call.ch)
		delete(p.calls, token)
	}
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
