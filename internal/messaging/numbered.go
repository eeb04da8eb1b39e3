package messaging

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

var htmlTag = regexp.MustCompile(`<[^>]+>`)

// numberedMenus renders buttons as a numbered list for transports without native buttons.
// Only the latest list per chat is live; a reply that is exactly one of its numbers becomes
// a button press.
type numberedMenus struct {
	mu      sync.Mutex
	seq     uint64
	pending map[string]menu
}

type menu struct {
	ref    string
	tokens []string
}

func newNumberedMenus() *numberedMenus {
	return &numberedMenus{pending: make(map[string]menu)}
}

// render returns the text to send and the message ref. Messages without buttons get a
// ref too, but leave the live list of the chat untouched.
func (n *numberedMenus) render(msg models.OutgoingMessage) (string, string) {
	text := msg.Text
	if msg.HTML {
		text = html.UnescapeString(htmlTag.ReplaceAllString(text, ""))
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	ref := strconv.FormatUint(n.seq, 10)
	if !msg.HasButtons() {
		return text, ref
	}

	var sb strings.Builder
	sb.WriteString(text)
	sb.WriteString("\n")
	var tokens []string
	for _, row := range msg.Buttons {
		for _, b := range row {
			tokens = append(tokens, b.Token)
			fmt.Fprintf(&sb, "\n%d. %s", len(tokens), b.Label)
		}
	}
	n.pending[msg.To] = menu{ref: ref, tokens: tokens}
	return sb.String(), ref
}

// resolve maps a numeric reply to the matching button of the live list.
func (n *numberedMenus) resolve(from, text string) (*models.Callback, bool) {
	choice, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return nil, false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	m, ok := n.pending[from]
	if !ok || choice < 1 || choice > len(m.tokens) {
		return nil, false
	}
	return &models.Callback{Data: m.tokens[choice-1], MessageRef: m.ref}, true
}

// forget drops the live list of to if it is still the one sent as ref.
func (n *numberedMenus) forget(to, ref string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if m, ok := n.pending[to]; ok && m.ref == ref {
		delete(n.pending, to)
	}
}

// inbound builds the event for a text reply, turning a listed number into a button press.
func (n *numberedMenus) inbound(id, from string, contact models.Contact, text string, at time.Time) models.InboundEvent {
	evt := models.InboundEvent{ID: id, From: from, Contact: contact, Time: at}
	if cb, ok := n.resolve(from, text); ok {
		evt.Callback = cb
		return evt
	}
	evt.Text = text
	return evt
}
