// Package agent drives a codex-style app-server over JSON-RPC on stdio and
// mirrors its activity into a message store: every line read from the agent
// is kept as raw stdout, and the events it reports are normalized into
// structured entries.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/kanband/internal/msgstore"
	"github.com/example/kanband/internal/rpc"
	"github.com/example/kanband/internal/version"
)

// Methods spoken with the app-server.
const (
	MethodInitialize         = "initialize"
	MethodNewConversation    = "newConversation"
	MethodSendUserMessage    = "sendUserMessage"
	MethodEvent              = "codex/event"
	MethodExecCommandApprove = "execCommandApproval"
	MethodApplyPatchApprove  = "applyPatchApproval"
)

// Approval decisions.
const (
	DecisionApproved = "approved"
	DecisionDenied   = "denied"
)

// Options configures a session.
type Options struct {
	Cwd      string
	Model    string
	Prompt   string
	Approval string // DecisionApproved or DecisionDenied; anything else denies
	Logger   zerolog.Logger

	// OnSessionID is called once the conversation id is known.
	OnSessionID func(id string)
}

// Result describes how a session ended.
type Result struct {
	ConversationID string
	// Completed is true when the agent reported task_complete or
	// shutdown_complete, false when its output simply ended.
	Completed bool
	// Drained is closed once the agent's stdout has been read to the end
	// and every line is in the store. The caller must not read stdout.
	Drained <-chan struct{}
}

// ErrNotCompleted is returned when the agent's stdout closed before it
// reported completion.
var ErrNotCompleted = errors.New("agent exited before completing the task")

type newConversationParams struct {
	Cwd   string `json:"cwd,omitempty"`
	Model string `json:"model,omitempty"`
}

type newConversationResult struct {
	ConversationID string `json:"conversationId"`
	Model          string `json:"model,omitempty"`
}

type inputItem struct {
	Type string `json:"type"`
	Data struct {
		Text string `json:"text"`
	} `json:"data"`
}

type sendUserMessageParams struct {
	ConversationID string      `json:"conversationId"`
	Items          []inputItem `json:"items"`
}

type eventParams struct {
	Msg EventMsg `json:"msg"`
}

type approvalParams struct {
	CallID  string   `json:"callId,omitempty"`
	Command []string `json:"command,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// session is the rpc.Handler for one conversation.
type session struct {
	store      *msgstore.Store
	normalizer *Normalizer
	decision   string
	logger     zerolog.Logger
	completed  bool
}

// Run runs one conversation: it initializes the app-server reading from
// stdout and writing to stdin, starts a conversation, sends the prompt and
// waits until the agent completes, its output ends, or ctx is done. Run
// does not push Finished; the caller owns the process and the store's
// lifetime. Run owns stdout: it is read to the end, also after Run returns,
// and Result.Drained reports when that is done.
func Run(ctx context.Context, stdout io.Reader, stdin io.Writer, store *msgstore.Store, opts Options) (Result, error) {
	s := &session{
		store:      store,
		normalizer: NewNormalizer(store),
		decision:   DecisionDenied,
		logger:     opts.Logger.With().Str("component", "agent").Logger(),
	}
	if opts.Approval == DecisionApproved {
		s.decision = DecisionApproved
	}

	peer := rpc.NewPeer(stdout, stdin, s, rpc.Config{
		Logger: opts.Logger,
		Tap: func(dir rpc.Direction, line []byte) {
			if dir == rpc.Inbound {
				store.PushStdout(string(line) + "\n")
			}
		},
	})

	result := Result{Drained: peer.Drained()}

	initParams := map[string]any{
		"clientInfo": map[string]string{"name": "kanband", "version": version.Version},
	}
	if err := peer.Call(ctx, MethodInitialize, initParams, nil); err != nil {
		return result, err
	}

	var conv newConversationResult
	if err := peer.Call(ctx, MethodNewConversation, newConversationParams{Cwd: opts.Cwd, Model: opts.Model}, &conv); err != nil {
		return result, err
	}
	if conv.ConversationID == "" {
		return result, fmt.Errorf("%s returned no conversation id", MethodNewConversation)
	}
	result.ConversationID = conv.ConversationID
	store.PushSessionID(conv.ConversationID)
	if opts.OnSessionID != nil {
		opts.OnSessionID(conv.ConversationID)
	}
	s.logger.Info().Str("conversation", conv.ConversationID).Str("model", conv.Model).Msg("conversation started")

	msg := sendUserMessageParams{ConversationID: conv.ConversationID}
	item := inputItem{Type: "text"}
	item.Data.Text = opts.Prompt
	msg.Items = []inputItem{item}

	s.normalizer.UserMessage(opts.Prompt)
	if err := peer.Call(ctx, MethodSendUserMessage, msg, nil); err != nil {
		// The agent may finish the task before answering; completion is
		// decided once the peer is done.
		if !errors.Is(err, rpc.ErrShutdown) {
			return result, err
		}
		s.logger.Debug().Err(err).Msg("session ended before sendUserMessage reply")
	}

	select {
	case <-peer.Done():
	case <-ctx.Done():
		return result, ctx.Err()
	}

	if err := peer.Err(); err != nil {
		return result, err
	}
	result.Completed = s.completed
	if !result.Completed {
		return result, ErrNotCompleted
	}
	return result, nil
}

// HandleRequest answers approval requests with the configured decision.
func (s *session) HandleRequest(peer *rpc.Peer, req rpc.Request) {
	switch req.Method {
	case MethodExecCommandApprove, MethodApplyPatchApprove:
		var params approvalParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				s.logger.Warn().Err(err).Str("method", req.Method).Msg("malformed approval params")
			}
		}

		subject := strings.Join(params.Command, " ")
		if req.Method == MethodApplyPatchApprove {
			subject = "apply patch"
		}
		s.normalizer.System(fmt.Sprintf("%s: %s", s.decision, subject), map[string]string{
			"call_id": params.CallID,
			"reason":  params.Reason,
		})

		if err := peer.Respond(req.ID, map[string]string{"decision": s.decision}); err != nil {
			s.logger.Error().Err(err).Str("method", req.Method).Msg("failed to answer approval")
		}
	default:
		s.logger.Warn().Str("method", req.Method).Msg("unsupported request from agent")
		if err := peer.RespondError(req.ID, rpc.CodeMethodNotFound, "method not found: "+req.Method); err != nil {
			s.logger.Error().Err(err).Msg("failed to reject request")
		}
	}
}

// HandleNotification normalizes codex/event notifications. The event type
// may also be appended to the method, as in "codex/event/task_complete".
func (s *session) HandleNotification(_ *rpc.Peer, n rpc.Notification) bool {
	if n.Method != MethodEvent && !strings.HasPrefix(n.Method, MethodEvent+"/") {
		s.logger.Debug().Str("method", n.Method).Msg("ignoring notification")
		return false
	}

	var params eventParams
	if len(n.Params) > 0 {
		if err := json.Unmarshal(n.Params, &params); err != nil {
			s.logger.Warn().Err(err).Msg("malformed event")
			return false
		}
	}
	if params.Msg.Type == "" {
		params.Msg.Type = strings.TrimPrefix(strings.TrimPrefix(n.Method, MethodEvent), "/")
	}

	if s.normalizer.Handle(params.Msg) {
		s.completed = true
		return true
	}
	return false
}

// HandleNonJSON leaves the line to the raw stdout tap.
func (s *session) HandleNonJSON(line string) {
	s.logger.Debug().Str("line", line).Msg("non-JSON output from agent")
}
