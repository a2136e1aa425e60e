package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	notification "esante-monitoring/internal/notification/domain"
	"esante-monitoring/internal/observability/metrics"

	"go.uber.org/zap"
)

const (
	// EventInit names the handshake sent when a stream opens.
	EventInit = "INIT"
	// EventNotification names a pushed notification.
	EventNotification = "notification"

	defaultBuffer  = 16
	reconnectDelay = 3 * time.Second
)

var (
	// ErrEmptyRecipient is returned when subscribing without a recipient.
	ErrEmptyRecipient = errors.New("broadcast: empty recipient")
	// ErrClosed is returned when subscribing to a closed hub.
	ErrClosed = errors.New("broadcast: hub closed")
)

// Event is one server-sent message.
type Event struct {
	ID    string
	Name  string
	Data  []byte
	Retry time.Duration
}

// Stream is one live subscriber connection.
// Its event channel is never closed; Done signals removal.
type Stream struct {
	recipientID string
	events      chan Event
	done        chan struct{}
	closeOnce   sync.Once
}

// RecipientID returns the recipient the stream listens for.
func (s *Stream) RecipientID() string { return s.recipientID }

// Events yields queued events.
func (s *Stream) Events() <-chan Event { return s.events }

// Done is closed once the stream has been unsubscribed.
func (s *Stream) Done() <-chan struct{} { return s.done }

func (s *Stream) close() bool {
	closed := false
	s.closeOnce.Do(func() {
		close(s.done)
		closed = true
	})
	return closed
}

// Hub fans notifications out to the live streams of their recipient.
// Delivery is best effort: nothing is queued for recipients without streams.
type Hub struct {
	mu          sync.Mutex
	streams     map[string]map[*Stream]struct{}
	closed      bool
	buffer      int
	sendTimeout time.Duration
	logger      *zap.Logger
}

// Option configures a hub.
type Option func(*Hub)

// WithBuffer sets the per-stream event queue size.
func WithBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.buffer = size
		}
	}
}

// WithSendTimeout bounds how long Broadcast waits on a full stream queue.
// Zero drops the stream immediately when its queue is full.
func WithSendTimeout(timeout time.Duration) Option {
	return func(h *Hub) {
		if timeout >= 0 {
			h.sendTimeout = timeout
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub constructs an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		streams: make(map[string]map[*Stream]struct{}),
		buffer:  defaultBuffer,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe opens a stream for recipientID. The handshake event is already queued.
func (h *Hub) Subscribe(recipientID string) (*Stream, error) {
	if h == nil {
		return nil, errors.New("broadcast: nil hub")
	}
	if recipientID == "" {
		return nil, ErrEmptyRecipient
	}
	stream := &Stream{
		recipientID: recipientID,
		events:      make(chan Event, h.buffer),
		done:        make(chan struct{}),
	}
	stream.events <- Event{ID: "init", Name: EventInit, Data: []byte("subscribed"), Retry: reconnectDelay}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	set, ok := h.streams[recipientID]
	if !ok {
		set = make(map[*Stream]struct{})
		h.streams[recipientID] = set
	}
	set[stream] = struct{}{}
	h.mu.Unlock()

	metrics.AddStreamSubscribers(1)
	h.logger.Debug("stream subscribed", zap.String("recipient_id", recipientID))
	return stream, nil
}

// Unsubscribe removes a stream. Safe to call more than once.
func (h *Hub) Unsubscribe(stream *Stream) {
	if h == nil || stream == nil {
		return
	}
	h.mu.Lock()
	if set, ok := h.streams[stream.recipientID]; ok {
		delete(set, stream)
		if len(set) == 0 {
			delete(h.streams, stream.recipientID)
		}
	}
	h.mu.Unlock()

	if stream.close() {
		metrics.AddStreamSubscribers(-1)
		h.logger.Debug("stream unsubscribed", zap.String("recipient_id", stream.recipientID))
	}
}

// Broadcast pushes n to every open stream of recipientID. Streams that cannot
// take the event are removed. Without streams this is a no-op.
func (h *Hub) Broadcast(ctx context.Context, recipientID string, n notification.Notification) {
	if h == nil || recipientID == "" {
		return
	}
	streams := h.snapshot(recipientID)
	if len(streams) == 0 {
		return
	}
	payload, err := json.Marshal(n)
	if err != nil {
		h.logger.Warn("broadcast encode failed", zap.String("notification_id", n.ID), zap.Error(err))
		return
	}
	event := Event{ID: n.ID, Name: EventNotification, Data: payload}
	for _, stream := range streams {
		switch h.offer(ctx, stream, event) {
		case offerDelivered:
			continue
		case offerSkipped:
			h.logger.Debug("broadcast abandoned by publisher",
				zap.String("recipient_id", recipientID),
				zap.String("notification_id", n.ID),
			)
			continue
		}
		metrics.IncBroadcastDropped()
		h.logger.Info("dropping slow stream",
			zap.String("recipient_id", recipientID),
			zap.String("notification_id", n.ID),
		)
		h.Unsubscribe(stream)
	}
}

// Close ends every open stream and refuses new subscriptions.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.closed = true
	var all []*Stream
	for _, set := range h.streams {
		for stream := range set {
			all = append(all, stream)
		}
	}
	h.mu.Unlock()

	for _, stream := range all {
		h.Unsubscribe(stream)
	}
	h.logger.Info("broadcast hub closed", zap.Int("streams", len(all)))
}

// Subscribers returns the number of open streams for recipientID.
func (h *Hub) Subscribers(recipientID string) int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams[recipientID])
}

func (h *Hub) snapshot(recipientID string) []*Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.streams[recipientID]
	streams := make([]*Stream, 0, len(set))
	for stream := range set {
		streams = append(streams, stream)
	}
	return streams
}

type offerResult int

const (
	offerDelivered offerResult = iota
	// offerSkipped means the publisher gave up; the stream itself is fine.
	offerSkipped
	offerFailed
)

func (h *Hub) offer(ctx context.Context, stream *Stream, event Event) offerResult {
	select {
	case <-stream.done:
		return offerFailed
	default:
	}
	select {
	case stream.events <- event:
		return offerDelivered
	default:
	}
	if h.sendTimeout <= 0 {
		return offerFailed
	}
	timer := time.NewTimer(h.sendTimeout)
	defer timer.Stop()
	select {
	case stream.events <- event:
		return offerDelivered
	case <-stream.done:
		return offerFailed
	case <-ctx.Done():
		return offerSkipped
	case <-timer.C:
		return offerFailed
	}
}
