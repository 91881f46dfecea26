package transport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// WriterPresenter prints messages as plain text.
type WriterPresenter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterPresenter returns a presenter writing to w.
func NewWriterPresenter(w io.Writer) *WriterPresenter {
	return &WriterPresenter{w: w}
}

// Present writes m followed by a separator line.
func (p *WriterPresenter) Present(_ context.Context, m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := io.WriteString(p.w, FormatText(m)+"\n\n"); err != nil {
		return fmt.Errorf("present %s: %w", m.Item.ID, err)
	}
	return nil
}

// FormatText renders m as plain text: hint, title, author, body.
func FormatText(m Message) string {
	var b strings.Builder
	if m.Hint != "" {
		b.WriteString("(")
		b.WriteString(m.Hint)
		b.WriteString(")\n\n")
	}
	b.WriteString(m.Item.Title)
	b.WriteString("\n")
	if m.Item.Author != "" {
		b.WriteString(m.Item.Author)
		if m.Item.Year > 0 {
			fmt.Fprintf(&b, ", %d", m.Item.Year)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(m.Item.Body))
	return b.String()
}
