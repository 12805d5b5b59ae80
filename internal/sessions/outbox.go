package sessions

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const outboxBuffer = 1024

type outboundEvent struct {
	sessionID uuid.UUID
	event     string
	payload   interface{}
}

// outbox hands dashboard events to a Broadcaster from its own goroutine, so a
// slow Redis publish never holds up a session loop. Events are dropped with a
// warning when the buffer is full.
type outbox struct {
	hub    Broadcaster
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	events chan outboundEvent
	done   chan struct{}
}

func newOutbox(hub Broadcaster, logger *zap.Logger, buffer int) *outbox {
	if buffer <= 0 {
		buffer = outboxBuffer
	}
	o := &outbox{
		hub:    hub,
		logger: logger,
		events: make(chan outboundEvent, buffer),
		done:   make(chan struct{}),
	}
	go o.run()
	return o
}

// BroadcastToSessionAndPublish implements Broadcaster without blocking.
func (o *outbox) BroadcastToSessionAndPublish(sessionID uuid.UUID, event string, payload interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.events <- outboundEvent{sessionID: sessionID, event: event, payload: payload}:
	default:
		o.logger.Warn("broadcast buffer full, dropping event",
			zap.String("session_id", sessionID.String()), zap.String("event", event))
	}
}

func (o *outbox) run() {
	defer close(o.done)
	for e := range o.events {
		o.hub.BroadcastToSessionAndPublish(e.sessionID, e.event, e.payload)
	}
}

// close stops accepting events and waits for the buffered ones to be delivered.
func (o *outbox) close(ctx context.Context) {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.events)
	}
	o.mu.Unlock()
	select {
	case <-o.done:
	case <-ctx.Done():
	}
}
