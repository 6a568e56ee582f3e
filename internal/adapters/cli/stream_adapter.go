package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/example/kanband/internal/ledger"
	"github.com/example/kanband/internal/msgstore"
	"github.com/example/kanband/internal/patch"
	"github.com/example/kanband/internal/ports/primary"
)

// StreamAdapter prints message store contents for terminal consumers.
type StreamAdapter struct {
	service primary.StreamService
	out     io.Writer
}

// NewStreamAdapter creates a new StreamAdapter with the given service.
func NewStreamAdapter(service primary.StreamService, out io.Writer) *StreamAdapter {
	return &StreamAdapter{
		service: service,
		out:     out,
	}
}

// Follow prints a store's messages until it finishes or ctx is done.
func (a *StreamAdapter) Follow(ctx context.Context, storeKey string) error {
	messages, err := a.service.Follow(ctx, storeKey)
	if err != nil {
		return err
	}
	for msg := range messages {
		a.printMessage(msg)
	}
	return nil
}

// FollowRaw prints the newest raw output and then live output.
func (a *StreamAdapter) FollowRaw(ctx context.Context, storeKey string, limit int) error {
	events, err := a.service.FollowRaw(ctx, storeKey, limit)
	if err != nil {
		return err
	}
	for ev := range events {
		if ev.Type == ledger.EventFinished {
			return nil
		}
		a.printRaw(ev.Entry)
	}
	return nil
}

// FollowNormalized prints normalized entries as they are added. Replaced
// entries are printed again in full.
func (a *StreamAdapter) FollowNormalized(ctx context.Context, storeKey string, limit int) error {
	events, err := a.service.FollowNormalized(ctx, storeKey, limit)
	if err != nil {
		return err
	}
	for ev := range events {
		if ev.Type == ledger.EventFinished {
			return nil
		}
		a.printNormalized(ev)
	}
	return nil
}

// History prints one page of a store's raw or normalized history.
func (a *StreamAdapter) History(ctx context.Context, req primary.HistoryRequest, normalized bool) (*primary.HistoryPage, error) {
	var (
		page *primary.HistoryPage
		err  error
	)
	if normalized {
		page, err = a.service.NormalizedHistory(ctx, req)
	} else {
		page, err = a.service.RawHistory(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	for _, e := range page.Entries {
		if normalized {
			a.printNormalized(ledger.Event{Type: ledger.EventAppend, EntryIndex: e.Index, Entry: e.Payload})
		} else {
			a.printRaw(e.Payload)
		}
	}
	if page.HistoryTruncated {
		fmt.Fprintln(a.out, color.New(color.FgYellow).Sprint("(older history was evicted)"))
	}
	if page.NextCursor != nil {
		fmt.Fprintf(a.out, "(more: --cursor %d)\n", *page.NextCursor)
	}
	return page, nil
}

// Stores lists the in-memory stores with their sizes.
func (a *StreamAdapter) Stores(ctx context.Context) []primary.StoreSummary {
	summaries := a.service.ListStores(ctx)
	if len(summaries) == 0 {
		fmt.Fprintln(a.out, "No stores.")
		return summaries
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tMESSAGES\tHISTORY\tRAW\tNORMALIZED\tSTATE")
	for _, s := range summaries {
		state := "live"
		if s.Stats.Finished {
			state = "finished"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%d (%s)\t%d (%s)\t%s\n",
			s.Key,
			s.Stats.Messages,
			humanize.Bytes(uint64(s.Stats.HistoryBytes)),
			s.Stats.RawEntries, humanize.Bytes(uint64(s.Stats.RawBytes)),
			s.Stats.NormalizedEntries, humanize.Bytes(uint64(s.Stats.NormalizedBytes)),
			state,
		)
	}
	w.Flush()
	return summaries
}

func (a *StreamAdapter) printMessage(msg msgstore.Message) {
	switch msg.Kind {
	case msgstore.KindStdout:
		fmt.Fprint(a.out, msg.Text)
	case msgstore.KindStderr:
		fmt.Fprint(a.out, color.New(color.FgRed).Sprint(msg.Text))
	case msgstore.KindSessionID:
		fmt.Fprintf(a.out, "%s %s\n", color.New(color.FgBlue).Sprint("session"), msg.Text)
	case msgstore.KindPatch:
		for _, op := range msg.Patch {
			line := fmt.Sprintf("%-7s %s", op.Op, op.Path)
			if len(op.Value) > 0 {
				line += " " + string(op.Value)
			}
			fmt.Fprintln(a.out, color.New(color.FgCyan).Sprint(line))
		}
	case msgstore.KindFinished:
		fmt.Fprintln(a.out, color.New(color.FgGreen).Sprint("finished"))
	}
}

// printRaw prints the content of a STDOUT/STDERR ledger payload.
func (a *StreamAdapter) printRaw(payload json.RawMessage) {
	var tagged struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(payload, &tagged); err != nil {
		fmt.Fprintln(a.out, string(payload))
		return
	}
	if tagged.Type == patch.TypeStderr {
		fmt.Fprint(a.out, color.New(color.FgRed).Sprint(tagged.Content))
		return
	}
	fmt.Fprint(a.out, tagged.Content)
}

func (a *StreamAdapter) printNormalized(ev ledger.Event) {
	var tagged patch.Tagged
	var entry patch.NormalizedEntry
	if err := json.Unmarshal(ev.Entry, &tagged); err != nil || json.Unmarshal(tagged.Content, &entry) != nil {
		fmt.Fprintln(a.out, string(ev.Entry))
		return
	}

	label := strings.TrimSuffix(string(entry.EntryType), "_message")
	marker := ""
	if ev.Type == ledger.EventReplace {
		marker = "~"
	}
	fmt.Fprintf(a.out, "%s %s\n", entryColor(entry.EntryType).Sprintf("[%d%s %s]", ev.EntryIndex, marker, label), entry.Content)
}

func entryColor(t patch.EntryType) *color.Color {
	switch t {
	case patch.EntryUserMessage:
		return color.New(color.FgBlue)
	case patch.EntryAssistantMessage:
		return color.New(color.FgGreen)
	case patch.EntryToolUse:
		return color.New(color.FgCyan)
	case patch.EntryErrorMessage:
		return color.New(color.FgRed)
	case patch.EntryThinking:
		return color.New(color.FgMagenta)
	default:
		return color.New(color.FgYellow)
	}
}
