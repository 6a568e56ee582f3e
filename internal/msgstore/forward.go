package msgstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
)

// ForwardLines reads r line by line and pushes each line, newline included,
// as a message of kind (KindStdout or KindStderr). A read error other than
// EOF is pushed as a stderr message and returned.
func (s *Store) ForwardLines(ctx context.Context, r io.Reader, kind Kind) error {
	if kind != KindStdout && kind != KindStderr {
		return fmt.Errorf("cannot forward lines as %s", kind)
	}
	reader := bufio.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := reader.ReadString('\n')
		if line != "" {
			s.Push(Message{Kind: kind, Text: line})
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			s.PushStderr(fmt.Sprintf("stream error: %v\n", err))
			return fmt.Errorf("failed to read %s: %w", kind, err)
		}
	}
}
