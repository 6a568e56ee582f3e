package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testTimeout = 5 * time.Second

// fakeProcess plays the child process side of a peer.
type fakeProcess struct {
	t      *testing.T
	stdin  *bufio.Reader  // what the peer wrote
	stdout *io.PipeWriter // what the peer reads
}

func newFakeProcess(t *testing.T) (*fakeProcess, io.Reader, io.Writer) {
	t.Helper()
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	t.Cleanup(func() {
		stdinR.Close()
		stdoutW.Close()
	})
	return &fakeProcess{t: t, stdin: bufio.NewReader(stdinR), stdout: stdoutW}, stdoutR, stdinW
}

func (f *fakeProcess) readRequest() Request {
	f.t.Helper()
	line, err := f.stdin.ReadBytes('\n')
	if err != nil {
		f.t.Fatalf("failed to read from peer: %v", err)
	}
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		f.t.Fatalf("peer wrote invalid request %q: %v", line, err)
	}
	return req
}

func (f *fakeProcess) readLine() string {
	f.t.Helper()
	line, err := f.stdin.ReadString('\n')
	if err != nil {
		f.t.Fatalf("failed to read from peer: %v", err)
	}
	return line
}

func (f *fakeProcess) writeLine(line string) {
	f.t.Helper()
	if _, err := io.WriteString(f.stdout, line+"\n"); err != nil {
		f.t.Fatalf("failed to write to peer: %v", err)
	}
}

func (f *fakeProcess) write(v any) {
	f.t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		f.t.Fatalf("failed to encode: %v", err)
	}
	f.writeLine(string(data))
}

// recordingHandler records callbacks; finishOn ends the session when a
// notification with that method arrives.
type recordingHandler struct {
	mu            sync.Mutex
	requests      []Request
	notifications []Notification
	nonJSON       []string
	finishOn      string
	respond       bool
}

func (h *recordingHandler) HandleRequest(peer *Peer, req Request) {
	h.mu.Lock()
	h.requests = append(h.requests, req)
	h.mu.Unlock()
	if h.respond {
		_ = peer.Respond(req.ID, map[string]string{"decision": "approved"})
	}
}

func (h *recordingHandler) HandleNotification(peer *Peer, n Notification) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifications = append(h.notifications, n)
	return h.finishOn != "" && n.Method == h.finishOn
}

func (h *recordingHandler) HandleNonJSON(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nonJSON = append(h.nonJSON, line)
}

func (h *recordingHandler) snapshot() ([]Request, []Notification, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Request(nil), h.requests...), append([]Notification(nil), h.notifications...), append([]string(nil), h.nonJSON...)
}

func requireDone(t *testing.T, p *Peer) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for peer to finish")
	}
}

type callResult struct {
	value string
	err   error
}

func TestPeer_ConcurrentRequestsResolveOwnCaller(t *testing.T) {
	proc, r, w := newFakeProcess(t)
	peer := NewPeer(r, w, &recordingHandler{}, Config{Logger: zerolog.Nop()})
	ctx := context.Background()

	results := map[string]chan callResult{
		"alpha": make(chan callResult, 1),
		"beta":  make(chan callResult, 1),
	}
	for method, ch := range results {
		go func(method string, ch chan callResult) {
			var out struct {
				Echo string `json:"echo"`
			}
			err := peer.Call(ctx, method, nil, &out)
			ch <- callResult{value: out.Echo, err: err}
		}(method, ch)
	}

	first := proc.readRequest()
	second := proc.readRequest()
	if first.ID == second.ID {
		t.Fatalf("expected distinct ids, got %s twice", first.ID)
	}

	// Answer out of order.
	for _, req := range []Request{second, first} {
		proc.write(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": map[string]string{"echo": req.Method}})
	}

	for method, ch := range results {
		select {
		case res := <-ch:
			if res.err != nil {
				t.Fatalf("%s failed: %v", method, res.err)
			}
			if res.value != method {
				t.Errorf("caller %s received %s's response", method, res.value)
			}
		case <-time.After(testTimeout):
			t.Fatalf("timed out waiting for %s", method)
		}
	}
}

func TestPeer_ShutdownDrainsPendingRequests(t *testing.T) {
	proc, r, w := newFakeProcess(t)
	peer := NewPeer(r, w, &recordingHandler{}, Config{Logger: zerolog.Nop()})
	ctx := context.Background()

	errs := make(chan error, 2)
	for _, method := range []string{"initialize", "newConversation"} {
		go func(method string) {
			errs <- peer.Call(ctx, method, nil, nil)
		}(method)
	}
	proc.readRequest()
	proc.readRequest()

	proc.stdout.Close()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			if !errors.Is(err, ErrShutdown) {
				t.Fatalf("expected shutdown error, got %v", err)
			}
			if !strings.Contains(err.Error(), "server was shutdown while waiting for") {
				t.Errorf("unexpected message %q", err.Error())
			}
		case <-time.After(testTimeout):
			t.Fatal("pending request hung after stdout closed")
		}
	}
	requireDone(t, peer)
	if err := peer.Err(); err != nil {
		t.Errorf("expected clean EOF, got %v", err)
	}
}

func TestPeer_RemoteErrorSurfacesToCaller(t *testing.T) {
	proc, r, w := newFakeProcess(t)
	peer := NewPeer(r, w, &recordingHandler{}, Config{Logger: zerolog.Nop()})

	errs := make(chan error, 1)
	go func() { errs <- peer.Call(context.Background(), "sendUserMessage", map[string]string{"text": "hi"}, nil) }()

	req := proc.readRequest()
	if string(req.Params) != `{"text":"hi"}` {
		t.Errorf("unexpected params %s", req.Params)
	}
	proc.write(map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": -32000, "message": "conversation not found"}})

	err := <-errs
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.Code != -32000 || !strings.Contains(err.Error(), "conversation not found") {
		t.Errorf("unexpected remote error %+v", remote)
	}
}

func TestPeer_ProcessRequestIsAnswered(t *testing.T) {
	proc, r, w := newFakeProcess(t)
	handler := &recordingHandler{respond: true}
	NewPeer(r, w, handler, Config{Logger: zerolog.Nop()})

	proc.writeLine(`{"jsonrpc":"2.0","id":"approve-1","method":"execCommandApproval","params":{"command":["ls"]}}`)

	var resp struct {
		ID     ID                `json:"id"`
		Result map[string]string `json:"result"`
	}
	if err := json.Unmarshal([]byte(proc.readLine()), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.ID != StringID("approve-1") {
		t.Errorf("expected id \"approve-1\", got %s", resp.ID)
	}
	if resp.Result["decision"] != "approved" {
		t.Errorf("unexpected result %v", resp.Result)
	}

	requests, _, _ := handler.snapshot()
	if len(requests) != 1 || requests[0].Method != "execCommandApproval" {
		t.Errorf("unexpected requests %+v", requests)
	}
}

func TestPeer_FinishedNotificationEndsSession(t *testing.T) {
	proc, r, w := newFakeProcess(t)
	handler := &recordingHandler{finishOn: "codex/event/task_complete"}
	peer := NewPeer(r, w, handler, Config{Logger: zerolog.Nop()})

	proc.writeLine(`{"jsonrpc":"2.0","method":"codex/event","params":{}}`)
	proc.writeLine(`{"jsonrpc":"2.0","method":"codex/event/task_complete"}`)
	requireDone(t, peer)

	_, notifications, _ := handler.snapshot()
	if len(notifications) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notifications))
	}

	ch := peer.Register(peer.NextRequestID())
	if _, err := Await(context.Background(), ch, "late"); !errors.Is(err, ErrShutdown) {
		t.Errorf("expected registration after exit to resolve with shutdown, got %v", err)
	}
}

func TestPeer_KeepsDrainingAfterSession(t *testing.T) {
	proc, r, w := newFakeProcess(t)
	handler := &recordingHandler{finishOn: "codex/event/task_complete"}
	var tapMu sync.Mutex
	var tapped []string
	peer := NewPeer(r, w, handler, Config{
		Logger: zerolog.Nop(),
		Tap: func(dir Direction, line []byte) {
			tapMu.Lock()
			defer tapMu.Unlock()
			if dir == Inbound {
				tapped = append(tapped, string(line))
			}
		},
	})

	proc.writeLine(`{"jsonrpc":"2.0","method":"codex/event/task_complete"}`)
	requireDone(t, peer)
	proc.writeLine("shutting down")
	proc.writeLine(`{"jsonrpc":"2.0","method":"codex/event","params":{}}`)

	select {
	case <-peer.Drained():
		t.Fatal("drained before stdout closed")
	default:
	}
	proc.stdout.Close()
	select {
	case <-peer.Drained():
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for drain")
	}

	_, notifications, nonJSON := handler.snapshot()
	if len(notifications) != 1 || len(nonJSON) != 0 {
		t.Errorf("handler saw traffic after the session: %d notifications, %q", len(notifications), nonJSON)
	}
	tapMu.Lock()
	defer tapMu.Unlock()
	if len(tapped) != 3 || tapped[1] != "shutting down" {
		t.Errorf("expected every line tapped, got %q", tapped)
	}
	if err := peer.Err(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

var errBrokenPipe = errors.New("broken pipe")

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errBrokenPipe }

func TestPeer_WriteFailureReleasesPendingRequests(t *testing.T) {
	stdoutR, stdoutW := io.Pipe()
	t.Cleanup(func() { stdoutW.Close() })
	peer := NewPeer(stdoutR, brokenWriter{}, &recordingHandler{}, Config{Logger: zerolog.Nop()})

	waiting := peer.Register(peer.NextRequestID())

	err := peer.Call(context.Background(), "sendUserMessage", nil, nil)
	if !errors.Is(err, errBrokenPipe) {
		t.Fatalf("expected write error, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if _, err := Await(ctx, waiting, "newConversation"); !errors.Is(err, ErrShutdown) {
		t.Errorf("expected pending request to resolve with shutdown, got %v", err)
	}
	if err := peer.Notify("codex/event", nil); !errors.Is(err, errBrokenPipe) {
		t.Errorf("expected later sends to fail, got %v", err)
	}
	if n := peer.pending.Pending(); n != 0 {
		t.Errorf("expected no pending requests, got %d", n)
	}
}

func TestPeer_NonJSONLinesAreNotFatal(t *testing.T) {
	proc, r, w := newFakeProcess(t)
	handler := &recordingHandler{}
	var tapped []string
	var tapMu sync.Mutex
	peer := NewPeer(r, w, handler, Config{
		Logger: zerolog.Nop(),
		Tap: func(dir Direction, line []byte) {
			tapMu.Lock()
			defer tapMu.Unlock()
			if dir == Inbound {
				tapped = append(tapped, string(line))
			}
		},
	})

	proc.writeLine("warning: starting up")
	proc.writeLine(`{"unrelated":true}`)
	proc.writeLine(`{"jsonrpc":"2.0","id":99,"result":{}}`)
	proc.writeLine(`{"jsonrpc":"2.0","method":"ready"}`)
	proc.stdout.Close()
	requireDone(t, peer)

	_, notifications, nonJSON := handler.snapshot()
	if len(nonJSON) != 2 || nonJSON[0] != "warning: starting up" {
		t.Errorf("unexpected non-JSON lines %q", nonJSON)
	}
	if len(notifications) != 1 || notifications[0].Method != "ready" {
		t.Errorf("expected reader to continue after bad lines, got %+v", notifications)
	}
	tapMu.Lock()
	defer tapMu.Unlock()
	if len(tapped) != 4 {
		t.Errorf("expected 4 tapped lines, got %d", len(tapped))
	}
}

func TestPeer_ContextCancelForgetsRequest(t *testing.T) {
	proc, r, w := newFakeProcess(t)
	peer := NewPeer(r, w, &recordingHandler{}, Config{Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- peer.Call(ctx, "slow", nil, nil) }()
	proc.readRequest()
	cancel()

	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := peer.pending.Pending(); n != 0 {
		t.Errorf("expected no pending requests, got %d", n)
	}
}

func TestCorrelator_ForgetDropsRequest(t *testing.T) {
	c := NewCorrelator[string]()
	id := c.NextID()
	ch := c.Register(id)
	c.Forget(id)

	if _, err := Await(context.Background(), ch, "x"); !errors.Is(err, ErrRequestDropped) {
		t.Errorf("expected ErrRequestDropped, got %v", err)
	}
	if c.Resolve(id, "late") {
		t.Error("expected resolve of forgotten id to report false")
	}
}

func TestCorrelator_IDsIncrease(t *testing.T) {
	c := NewCorrelator[int]()
	a, b := c.NextID(), c.NextID()
	if a != NumberID(1) || b != NumberID(2) {
		t.Errorf("expected ids 1 and 2, got %s and %s", a, b)
	}
}

func TestCorrelator_ShutdownLabelsError(t *testing.T) {
	c := NewCorrelator[int]()
	ch := c.Register(c.NextID())
	c.Shutdown()

	_, err := Await(context.Background(), ch, "initialize")
	if err == nil || err.Error() != "server was shutdown while waiting for initialize response" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestID_JSON(t *testing.T) {
	tests := []struct {
		input    string
		expected ID
	}{
		{input: `7`, expected: NumberID(7)},
		{input: `"abc"`, expected: StringID("abc")},
	}
	for _, tt := range tests {
		var id ID
		if err := json.Unmarshal([]byte(tt.input), &id); err != nil {
			t.Fatalf("unmarshal %s failed: %v", tt.input, err)
		}
		if id != tt.expected {
			t.Errorf("expected %s, got %s", tt.expected, id)
		}
		data, _ := json.Marshal(id)
		if string(data) != tt.input {
			t.Errorf("expected %s, got %s", tt.input, data)
		}
	}

	var id ID
	if err := json.Unmarshal([]byte(`1.5`), &id); err == nil {
		t.Error("expected fractional id to be rejected")
	}
}
