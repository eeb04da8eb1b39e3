// Package messaging connects chat transports to the conversation engine.
package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

const (
	// DefaultChannelBufferSize defines the buffer size of the inbound event channel
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long a transport waits on a full event channel
	DefaultChannelTimeout = 1 * time.Second
)

// Service defines a pluggable chat transport.
type Service interface {
	// Name identifies the transport in logs and configuration.
	Name() string

	// Start begins any background processing (e.g., polling for updates).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the event channel.
	Stop() error

	// Send delivers a message and returns a reference to it, used to remove its buttons later.
	Send(ctx context.Context, msg models.OutgoingMessage) (string, error)

	// RemoveButtons detaches the buttons from a previously sent message.
	RemoveButtons(ctx context.Context, to, messageRef string) error

	// AnswerCallback acknowledges a button press. An empty text is a silent acknowledgement.
	AnswerCallback(ctx context.Context, callbackID, text string) error

	// Events returns the channel of inbound messages and button presses.
	Events() <-chan models.InboundEvent
}

// inbox is the inbound event channel shared by the transports. It is closed once, by Stop.
type inbox struct {
	name    string
	mu      sync.RWMutex
	events  chan models.InboundEvent
	stopped bool
}

func newInbox(name string) *inbox {
	return &inbox{name: name, events: make(chan models.InboundEvent, DefaultChannelBufferSize)}
}

// emit queues evt, dropping it when the service is stopped or the channel stays full.
func (b *inbox) emit(evt models.InboundEvent) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		slog.Warn("inbox.emit: dropping event, service stopped", "service", b.name, "from", evt.From)
		return false
	}
	select {
	case b.events <- evt:
		slog.Debug("inbox.emit: event queued", "service", b.name, "from", evt.From, "callback", evt.IsCallback())
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("inbox.emit: events channel blocked, dropping event", "service", b.name, "from", evt.From, "timeout", DefaultChannelTimeout)
		return false
	}
}

func (b *inbox) isStopped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stopped
}

// close reports false when the inbox was already closed.
func (b *inbox) close() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return false
	}
	b.stopped = true
	close(b.events)
	return true
}
