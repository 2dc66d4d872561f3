package publish

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rickgao/quotefeed/internal/model"
)

// Stdout writes each event as a single JSON line.
type Stdout struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdout creates a line writer over w.
func NewStdout(w io.Writer) *Stdout {
	return &Stdout{w: w}
}

// Name implements router.Publisher.
func (s *Stdout) Name() string { return "stdout" }

// Publish implements router.Publisher.
func (s *Stdout) Publish(ctx context.Context, ev model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := ev.JSON()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
