package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/roach88/sometimes/internal/transport"
)

// ErrNoChat is returned when no chat ID is configured.
var ErrNoChat = errors.New("telegram chat id not configured")

// Presenter sends each message to one chat.
type Presenter struct {
	sender Sender
	chatID int64
	policy *bluemonday.Policy
}

var _ transport.Presenter = (*Presenter)(nil)

// NewPresenter returns a presenter sending to chatID through s.
func NewPresenter(s Sender, chatID int64) *Presenter {
	return &Presenter{sender: s, chatID: chatID, policy: bodyPolicy()}
}

// bodyPolicy keeps the inline markup Telegram's HTML mode accepts and
// strips everything else from item bodies.
func bodyPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "strong", "i", "em", "u", "s", "code", "pre", "blockquote")
	return p
}

// Present sends m as an HTML message.
func (p *Presenter) Present(ctx context.Context, m transport.Message) error {
	if p.chatID == 0 {
		return ErrNoChat
	}
	id, err := p.sender.SendHTML(ctx, p.chatID, p.Format(m))
	if err != nil {
		return fmt.Errorf("telegram send %s: %w", m.Item.ID, err)
	}
	slog.Debug("telegram message sent", "item_id", m.Item.ID, "message_id", id)
	return nil
}

// Format renders m with HTML formatting. Title, author and hint are
// escaped; the body keeps its allowed inline markup.
func (p *Presenter) Format(m transport.Message) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(m.Item.Title))
	b.WriteString("</b>\n")
	if m.Item.Author != "" {
		b.WriteString("<i>")
		b.WriteString(html.EscapeString(m.Item.Author))
		if m.Item.Year > 0 {
			fmt.Fprintf(&b, ", %d", m.Item.Year)
		}
		b.WriteString("</i>\n")
	}
	b.WriteString("\n")
	b.WriteString(p.policy.Sanitize(strings.TrimSpace(m.Item.Body)))
	if m.Hint != "" {
		b.WriteString("\n\n<i>")
		b.WriteString(html.EscapeString(m.Hint))
		b.WriteString("</i>")
	}
	return b.String()
}
