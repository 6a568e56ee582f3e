package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives the inbound traffic that is not a reply to one of our
// own requests. Handlers run on the peer's reader goroutine, in line order;
// they may Send over the peer but must not wait on a Request.
type Handler interface {
	// HandleRequest is called for process-issued requests. The handler is
	// responsible for replying.
	HandleRequest(peer *Peer, req Request)

	// HandleNotification is called for notifications. Returning true ends
	// the session: the reader loop stops.
	HandleNotification(peer *Peer, n Notification) (finished bool)

	// HandleNonJSON is called for lines that are not JSON-RPC messages.
	HandleNonJSON(line string)
}

// Direction tells a Tap whether a line was read or written.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

// Config tunes a Peer.
type Config struct {
	Logger zerolog.Logger
	// Tap, when set, observes every non-empty line read from or written to
	// the process, before it is handled.
	Tap func(dir Direction, line []byte)
}

// Reply is what a pending request is resolved with: the raw result, or the
// error object of an error response.
type Reply struct {
	Result json.RawMessage
	Error  *ErrorObject
}

// RemoteError is a JSON-RPC error response to one of our requests.
type RemoteError struct {
	Label   string
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s request failed: %s", e.Label, e.Message)
}

// Peer is one end of a JSON-RPC session over a pair of pipes.
type Peer struct {
	logger  zerolog.Logger
	tap     func(Direction, []byte)
	handler Handler
	pending *Correlator[Reply]

	writeMu sync.Mutex
	writer  *bufio.Writer

	writeErr error // guarded by writeMu

	done     chan struct{}
	doneOnce sync.Once
	readErr  error
	drained  chan struct{}
}

// NewPeer starts a peer reading from r (the child's stdout) and writing to
// w (the child's stdin). The session runs until r reports EOF or an error,
// or until the handler signals that it finished. The reader goroutine keeps
// reading r to EOF after the session, passing lines to the tap only.
func NewPeer(r io.Reader, w io.Writer, handler Handler, cfg Config) *Peer {
	p := &Peer{
		logger:  cfg.Logger.With().Str("component", "rpc").Logger(),
		tap:     cfg.Tap,
		handler: handler,
		pending: NewCorrelator[Reply](),
		writer:  bufio.NewWriter(w),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
	go p.readLoop(r)
	return p
}

// NextRequestID allocates a request id.
func (p *Peer) NextRequestID() ID {
	return p.pending.NextID()
}

// Register creates the reply channel for id ahead of sending the request.
func (p *Peer) Register(id ID) <-chan Outcome[Reply] {
	return p.pending.Register(id)
}

// Send writes msg as one line and flushes it. A failed write is fatal:
// every pending request resolves with a shutdown error and later sends
// return the same error.
func (p *Peer) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.writeErr != nil {
		return p.writeErr
	}

	if p.tap != nil {
		p.tap(Outbound, data)
	}

	if _, err := p.writer.Write(data); err != nil {
		return p.failWrite(fmt.Errorf("failed to write message: %w", err))
	}
	if err := p.writer.WriteByte('\n'); err != nil {
		return p.failWrite(fmt.Errorf("failed to write message: %w", err))
	}
	if err := p.writer.Flush(); err != nil {
		return p.failWrite(fmt.Errorf("failed to flush message: %w", err))
	}
	return nil
}

// failWrite records err and releases every pending request. Callers hold
// writeMu.
func (p *Peer) failWrite(err error) error {
	p.writeErr = err
	p.logger.Warn().Err(err).Msg("writer stopped")
	p.pending.Shutdown()
	return err
}

// Request registers req.ID, sends req and waits for the reply, decoding a
// successful result into out when out is non-nil. label names the request
// in errors.
func (p *Peer) Request(ctx context.Context, req Request, label string, out any) error {
	ch := p.Register(req.ID)
	if err := p.Send(req); err != nil {
		p.pending.Forget(req.ID)
		return fmt.Errorf("failed to send %s request: %w", label, err)
	}

	r, err := Await(ctx, ch, label)
	if err != nil {
		if ctx.Err() != nil {
			p.pending.Forget(req.ID)
		}
		return err
	}
	if r.Error != nil {
		return &RemoteError{Label: label, Code: r.Error.Code, Message: r.Error.Message, Data: r.Error.Data}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", label, err)
	}
	return nil
}

// Call sends method with params under a fresh id and decodes the result.
func (p *Peer) Call(ctx context.Context, method string, params, out any) error {
	req, err := NewRequest(p.NextRequestID(), method, params)
	if err != nil {
		return err
	}
	return p.Request(ctx, req, method, out)
}

// Notify sends a notification.
func (p *Peer) Notify(method string, params any) error {
	n, err := NewNotification(method, params)
	if err != nil {
		return err
	}
	return p.Send(n)
}

// Respond answers a process-issued request.
func (p *Peer) Respond(id ID, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return p.Send(Response{JSONRPC: Version, ID: id, Result: raw})
}

// RespondError answers a process-issued request with an error.
func (p *Peer) RespondError(id ID, code int, message string) error {
	return p.Send(ErrorResponse{JSONRPC: Version, ID: id, Error: ErrorObject{Code: code, Message: message}})
}

// Done is closed once the reader loop has exited and every pending request
// has been resolved.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Drained is closed once the reader has consumed r to EOF or a read error,
// which may be after Done when the handler ended the session.
func (p *Peer) Drained() <-chan struct{} { return p.drained }

// Err returns the read error that ended the loop, or nil for EOF and
// handler-signalled completion. Only meaningful after Done is closed.
func (p *Peer) Err() error {
	<-p.done
	return p.readErr
}

func (p *Peer) readLoop(r io.Reader) {
	defer close(p.drained)
	defer p.finish()

	finished := false
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			switch {
			case finished:
				if p.tap != nil {
					p.tap(Inbound, trimmed)
				}
			case p.dispatch(trimmed):
				p.logger.Debug().Msg("session finished")
				finished = true
				p.finish()
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				if !finished {
					p.readErr = fmt.Errorf("failed to read from process: %w", err)
				}
				p.logger.Warn().Err(err).Msg("reader stopped")
			}
			return
		}
	}
}

// dispatch handles one line and reports whether the session finished.
func (p *Peer) dispatch(line []byte) bool {
	if p.tap != nil {
		p.tap(Inbound, line)
	}

	env, kind := classify(line)
	switch kind {
	case kindResponse:
		if !p.pending.Resolve(*env.ID, Reply{Result: env.Result}) {
			p.logger.Debug().Stringer("id", *env.ID).Msg("discarding response with no pending request")
		}
	case kindError:
		if !p.pending.Resolve(*env.ID, Reply{Error: env.Error}) {
			p.logger.Debug().Stringer("id", *env.ID).Msg("discarding error with no pending request")
		}
	case kindRequest:
		p.handler.HandleRequest(p, Request{JSONRPC: env.JSONRPC, ID: *env.ID, Method: *env.Method, Params: env.Params})
	case kindNotification:
		return p.handler.HandleNotification(p, Notification{JSONRPC: env.JSONRPC, Method: *env.Method, Params: env.Params})
	default:
		p.handler.HandleNonJSON(string(line))
	}
	return false
}

func (p *Peer) finish() {
	p.doneOnce.Do(func() {
		p.pending.Shutdown()
		close(p.done)
	})
}
