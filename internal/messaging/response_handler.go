package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
)

// Handler processes one inbound event.
type Handler interface {
	Handle(ctx context.Context, evt models.InboundEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, evt models.InboundEvent) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, evt models.InboundEvent) error {
	return f(ctx, evt)
}

// ResponseHandler consumes the events of a Service and feeds them to a Handler. Events of
// one prospect are handled strictly in arrival order; different prospects run concurrently.
type ResponseHandler struct {
	svc     Service
	handler Handler
	dedup   store.DedupRepo // optional

	mu     sync.Mutex
	queues map[string]chan models.InboundEvent
	wg     sync.WaitGroup
}

// NewResponseHandler creates a ResponseHandler. dedup may be nil.
func NewResponseHandler(svc Service, handler Handler, dedup store.DedupRepo) *ResponseHandler {
	return &ResponseHandler{
		svc:     svc,
		handler: handler,
		dedup:   dedup,
		queues:  make(map[string]chan models.InboundEvent),
	}
}

// ProcessEvent handles one event, skipping event ids that were already recorded.
func (rh *ResponseHandler) ProcessEvent(ctx context.Context, evt models.InboundEvent) error {
	if rh.dedup != nil && evt.ID != "" {
		fresh, err := rh.dedup.RecordInbound(ctx, evt.ID, evt.From)
		if err != nil {
			slog.Warn("ResponseHandler.ProcessEvent: dedup record failed, processing anyway", "error", err, "eventID", evt.ID)
		} else if !fresh {
			slog.Debug("ResponseHandler.ProcessEvent: duplicate event dropped", "eventID", evt.ID, "from", evt.From)
			return nil
		}
	}

	if err := rh.handler.Handle(ctx, evt); err != nil {
		return fmt.Errorf("handle event %s from %s: %w", evt.ID, evt.From, err)
	}

	if rh.dedup != nil && evt.ID != "" {
		if err := rh.dedup.MarkProcessed(ctx, evt.ID); err != nil {
			slog.Warn("ResponseHandler.ProcessEvent: mark processed failed", "error", err, "eventID", evt.ID)
		}
	}
	return nil
}

// Start consumes the service events until ctx is cancelled or the channel closes.
func (rh *ResponseHandler) Start(ctx context.Context) {
	rh.wg.Add(1)
	go func() {
		defer rh.wg.Done()
		events := rh.svc.Events()
		for {
			select {
			case <-ctx.Done():
				slog.Info("ResponseHandler.Start: stopping", "service", rh.svc.Name())
				return
			case evt, ok := <-events:
				if !ok {
					slog.Info("ResponseHandler.Start: events channel closed", "service", rh.svc.Name())
					return
				}
				rh.dispatch(ctx, evt)
			}
		}
	}()
}

// Wait blocks until the consumer loop and every per-prospect worker have returned.
func (rh *ResponseHandler) Wait() {
	rh.wg.Wait()
}

// dispatch appends evt to the queue of its prospect, starting a worker when none runs.
// It never blocks: when the prospect's queue is full the event is dropped, so one busy
// prospect cannot stall the intake of the others.
func (rh *ResponseHandler) dispatch(ctx context.Context, evt models.InboundEvent) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	q, ok := rh.queues[evt.From]
	if !ok {
		q = make(chan models.InboundEvent, DefaultChannelBufferSize)
		rh.queues[evt.From] = q
		rh.wg.Add(1)
		go rh.drain(ctx, evt.From, q)
	}
	select {
	case q <- evt:
	default:
		slog.Warn("ResponseHandler.dispatch: prospect queue full, event dropped", "eventID", evt.ID, "from", evt.From)
	}
}

// drain handles the queue of one prospect and exits once it is empty.
func (rh *ResponseHandler) drain(ctx context.Context, from string, q chan models.InboundEvent) {
	defer rh.wg.Done()
	for {
		select {
		case evt := <-q:
			if ctx.Err() != nil {
				slog.Warn("ResponseHandler.drain: shutting down, event dropped", "eventID", evt.ID, "from", from)
				continue
			}
			if err := rh.ProcessEvent(ctx, evt); err != nil {
				slog.Error("ResponseHandler.drain: event failed", "error", err, "from", from)
			}
		default:
			rh.mu.Lock()
			if len(q) == 0 {
				delete(rh.queues, from)
				rh.mu.Unlock()
				return
			}
			rh.mu.Unlock()
		}
	}
}
