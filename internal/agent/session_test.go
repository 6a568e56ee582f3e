package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/kanband/internal/msgstore"
	"github.com/example/kanband/internal/patch"
	"github.com/example/kanband/internal/rpc"
)

// fakeAppServer plays the agent side of the pipes.
type fakeAppServer struct {
	t      *testing.T
	in     *bufio.Reader
	out    *io.PipeWriter
	errors chan error
}

type wireMessage struct {
	ID     *rpc.ID         `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
}

func startFakeAppServer(t *testing.T) (*fakeAppServer, io.Reader, io.Writer) {
	t.Helper()
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	t.Cleanup(func() {
		stdinR.Close()
		stdoutW.Close()
	})
	return &fakeAppServer{t: t, in: bufio.NewReader(stdinR), out: stdoutW, errors: make(chan error, 16)}, stdoutR, stdinW
}

func (s *fakeAppServer) fail(err error) {
	s.errors <- err
}

func (s *fakeAppServer) read() (wireMessage, bool) {
	line, err := s.in.ReadBytes('\n')
	if err != nil {
		s.fail(err)
		return wireMessage{}, false
	}
	var msg wireMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		s.fail(err)
		return wireMessage{}, false
	}
	return msg, true
}

func (s *fakeAppServer) writeLine(line string) {
	if _, err := io.WriteString(s.out, line+"\n"); err != nil {
		s.fail(err)
	}
}

func (s *fakeAppServer) write(v any) {
	data, _ := json.Marshal(v)
	s.writeLine(string(data))
}

// expect reads a request for method and answers it with result.
func (s *fakeAppServer) expect(method string, result any) (wireMessage, bool) {
	msg, ok := s.read()
	if !ok {
		return msg, false
	}
	if msg.Method != method || msg.ID == nil {
		s.fail(errors.New("expected request " + method + ", got " + msg.Method))
		return msg, false
	}
	s.write(map[string]any{"jsonrpc": "2.0", "id": msg.ID, "result": result})
	return msg, true
}

func (s *fakeAppServer) event(msg map[string]any) {
	s.write(map[string]any{"jsonrpc": "2.0", "method": MethodEvent, "params": map[string]any{"msg": msg}})
}

func (s *fakeAppServer) handshake() bool {
	if _, ok := s.expect(MethodInitialize, map[string]any{}); !ok {
		return false
	}
	conv, ok := s.expect(MethodNewConversation, map[string]any{"conversationId": "conv-1", "model": "gpt-test"})
	if !ok {
		return false
	}
	var params newConversationParams
	json.Unmarshal(conv.Params, &params)
	if params.Cwd != "/repo" {
		s.fail(errors.New("unexpected cwd " + params.Cwd))
		return false
	}
	send, ok := s.expect(MethodSendUserMessage, map[string]any{})
	if !ok {
		return false
	}
	var sent sendUserMessageParams
	json.Unmarshal(send.Params, &sent)
	if sent.ConversationID != "conv-1" || len(sent.Items) != 1 || sent.Items[0].Data.Text != "add a README" {
		s.fail(errors.New("unexpected sendUserMessage params " + string(send.Params)))
		return false
	}
	return true
}

func runSession(t *testing.T, ctx context.Context, stdout io.Reader, stdin io.Writer, store *msgstore.Store, approval string) (Result, string, error) {
	t.Helper()
	var sessionID string
	result, err := Run(ctx, stdout, stdin, store, Options{
		Cwd:         "/repo",
		Prompt:      "add a README",
		Approval:    approval,
		Logger:      zerolog.Nop(),
		OnSessionID: func(id string) { sessionID = id },
	})
	return result, sessionID, err
}

func TestRun_CompletesConversation(t *testing.T) {
	server, stdout, stdin := startFakeAppServer(t)
	store := msgstore.New(msgstore.DefaultConfig())

	go func() {
		if !server.handshake() {
			return
		}
		server.writeLine("booting sandbox")
		server.event(map[string]any{"type": MsgAgentMessageDelta, "delta": "Hi"})
		server.writeLine(`{"jsonrpc":"2.0","id":"a1","method":"execCommandApproval","params":{"callId":"c1","command":["ls","-la"]}}`)
		resp, ok := server.read()
		if !ok {
			return
		}
		var result map[string]string
		json.Unmarshal(resp.Result, &result)
		if resp.ID == nil || *resp.ID != rpc.StringID("a1") || result["decision"] != DecisionApproved {
			server.fail(errors.New("unexpected approval response " + string(resp.Result)))
			return
		}
		server.event(map[string]any{"type": MsgAgentMessage, "message": "Hi there"})
		server.event(map[string]any{"type": MsgTaskComplete})
	}()

	result, sessionID, err := runSession(t, context.Background(), stdout, stdin, store, DecisionApproved)
	select {
	case serr := <-server.errors:
		t.Fatalf("fake server: %v", serr)
	default:
	}
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.ConversationID != "conv-1" || !result.Completed || sessionID != "conv-1" {
		t.Errorf("unexpected result %+v (session %q)", result, sessionID)
	}

	var stdoutLines, sessionIDs int
	for _, msg := range store.History() {
		switch msg.Kind {
		case msgstore.KindStdout:
			stdoutLines++
			if !strings.HasSuffix(msg.Text, "\n") {
				t.Errorf("expected raw line with newline, got %q", msg.Text)
			}
		case msgstore.KindSessionID:
			sessionIDs++
			if msg.Text != "conv-1" {
				t.Errorf("unexpected session id %q", msg.Text)
			}
		case msgstore.KindFinished:
			t.Error("Run must not push Finished")
		}
	}
	if stdoutLines != 8 {
		t.Errorf("expected every inbound line as stdout (8), got %d", stdoutLines)
	}
	if sessionIDs != 1 {
		t.Errorf("expected one session id message, got %d", sessionIDs)
	}

	entries := normalizedEntries(t, store)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %+v", entries)
	}
	if entries[0].EntryType != patch.EntryUserMessage || entries[1].Content != "Hi there" || entries[2].Content != "approved: ls -la" {
		t.Errorf("unexpected entries %+v", entries)
	}
}

func TestRun_CompletesBeforeSendUserMessageReply(t *testing.T) {
	server, stdout, stdin := startFakeAppServer(t)
	store := msgstore.New(msgstore.DefaultConfig())

	go func() {
		if _, ok := server.expect(MethodInitialize, map[string]any{}); !ok {
			return
		}
		if _, ok := server.expect(MethodNewConversation, map[string]any{"conversationId": "conv-1"}); !ok {
			return
		}
		send, ok := server.read()
		if !ok {
			return
		}
		server.event(map[string]any{"type": MsgAgentMessage, "message": "Done already"})
		server.event(map[string]any{"type": MsgTaskComplete})
		server.write(map[string]any{"jsonrpc": "2.0", "id": send.ID, "result": map[string]any{}})
	}()

	result, _, err := runSession(t, context.Background(), stdout, stdin, store, "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Completed || result.ConversationID != "conv-1" {
		t.Errorf("unexpected result %+v", result)
	}

	entries := normalizedEntries(t, store)
	if len(entries) != 2 || entries[1].Content != "Done already" {
		t.Errorf("unexpected entries %+v", entries)
	}
}

func TestRun_DeniesByDefault(t *testing.T) {
	server, stdout, stdin := startFakeAppServer(t)
	store := msgstore.New(msgstore.DefaultConfig())

	decisions := make(chan string, 1)
	go func() {
		if !server.handshake() {
			return
		}
		server.writeLine(`{"jsonrpc":"2.0","id":7,"method":"applyPatchApproval","params":{"callId":"p1"}}`)
		resp, ok := server.read()
		if !ok {
			return
		}
		var result map[string]string
		json.Unmarshal(resp.Result, &result)
		decisions <- result["decision"]
		server.write(map[string]any{"jsonrpc": "2.0", "method": MethodEvent + "/" + MsgShutdownComplete})
	}()

	if _, _, err := runSession(t, context.Background(), stdout, stdin, store, ""); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	select {
	case d := <-decisions:
		if d != DecisionDenied {
			t.Errorf("expected denied, got %s", d)
		}
	case serr := <-server.errors:
		t.Fatalf("fake server: %v", serr)
	}
}

func TestRun_OutputEndsBeforeCompletion(t *testing.T) {
	server, stdout, stdin := startFakeAppServer(t)
	store := msgstore.New(msgstore.DefaultConfig())

	go func() {
		if server.handshake() {
			server.out.Close()
		}
	}()

	result, _, err := runSession(t, context.Background(), stdout, stdin, store, "")
	if !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted, got %v", err)
	}
	if result.ConversationID != "conv-1" || result.Completed {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestRun_ProcessExitsDuringHandshake(t *testing.T) {
	server, stdout, stdin := startFakeAppServer(t)
	store := msgstore.New(msgstore.DefaultConfig())

	go func() {
		if _, ok := server.read(); ok {
			server.out.Close()
		}
	}()

	_, _, err := runSession(t, context.Background(), stdout, stdin, store, "")
	if !errors.Is(err, rpc.ErrShutdown) {
		t.Fatalf("expected shutdown error, got %v", err)
	}
	if !strings.Contains(err.Error(), "initialize") {
		t.Errorf("expected error to name the request, got %v", err)
	}
}

func TestRun_RemoteErrorOnNewConversation(t *testing.T) {
	server, stdout, stdin := startFakeAppServer(t)
	store := msgstore.New(msgstore.DefaultConfig())

	go func() {
		if _, ok := server.expect(MethodInitialize, map[string]any{}); !ok {
			return
		}
		msg, ok := server.read()
		if !ok {
			return
		}
		server.write(map[string]any{"jsonrpc": "2.0", "id": msg.ID, "error": map[string]any{"code": -32600, "message": "model not available"}})
	}()

	_, _, err := runSession(t, context.Background(), stdout, stdin, store, "")
	var remote *rpc.RemoteError
	if !errors.As(err, &remote) || remote.Message != "model not available" {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	server, stdout, stdin := startFakeAppServer(t)
	store := msgstore.New(msgstore.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if server.handshake() {
			cancel()
		}
	}()

	done := make(chan error, 1)
	go func() {
		_, _, err := runSession(t, ctx, stdout, stdin, store, "")
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
