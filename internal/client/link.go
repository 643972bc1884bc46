package client

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"github.com/example/thaw/internal/logging"
	"github.com/example/thaw/internal/protocol"
)

// link is one connection to the helper. It fails as a whole: after the first
// error every pending and future call on it reports that error.
type link struct {
	conn    net.Conn
	pending *pendingTable
	writeMu sync.Mutex

	once sync.Once
	done chan struct{}
	err  error
}

func newLink(conn net.Conn) *link {
	l := &link{
		conn:    conn,
		pending: newPendingTable(),
		done:    make(chan struct{}),
	}
	go l.readLoop()
	return l
}

func (l *link) alive() bool {
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// Err returns the failure that closed the link.
func (l *link) Err() error {
	<-l.done
	return l.err
}

func (l *link) fail(err error) {
	l.once.Do(func() {
		l.err = err
		l.conn.Close()
		l.pending.failAll()
		close(l.done)
	})
}

// send registers req under a fresh token and writes it.
func (l *link) send(req protocol.Request) (protocol.Token, <-chan protocol.Response, error) {
	token := protocol.NewToken()
	ch, ok := l.pending.add(token, req)
	if !ok {
		return token, nil, l.Err()
	}

	l.writeMu.Lock()
	err := protocol.WriteFrame(l.conn, req, token)
	l.writeMu.Unlock()
	if err != nil {
		l.fail(fmt.Errorf("%w: write %s: %v", ErrHelperUnavailable, req.Discriminant(), err))
		return token, nil, l.Err()
	}
	return token, ch, nil
}

func (l *link) readLoop() {
	for {
		frame, err := protocol.ReadFrame(l.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Printf("client: read response: %v", err)
			}
			l.fail(fmt.Errorf("%w: %v", ErrHelperUnavailable, err))
			return
		}

		token, msg, err := protocol.Decode(frame)
		if err != nil {
			log.Printf("client: %v", err)
			l.fail(fmt.Errorf("%w: %w", ErrHelperUnavailable, err))
			return
		}

		resp, ok := msg.(protocol.Response)
		if !ok {
			l.fail(fmt.Errorf("%w: helper sent %s", protocol.ErrProtocolViolation, msg.Discriminant()))
			return
		}

		call, ok := l.pending.take(token)
		if !ok {
			logging.Debugf("client: discarding %s for unknown token %s", msg.Discriminant(), token)
			continue
		}
		if !protocol.Matches(call.req, resp) {
			call.ch <- resp
			l.fail(fmt.Errorf("%w: %s answered with %s", protocol.ErrProtocolViolation, call.req.Discriminant(), resp.Discriminant()))
			return
		}
		call.ch <- resp
	}
}
