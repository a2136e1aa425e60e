package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"esante-monitoring/internal/notification/channel"
	notification "esante-monitoring/internal/notification/domain"
	"esante-monitoring/internal/observability/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ChannelLookup resolves channel implementations by name.
type ChannelLookup interface {
	Lookup(name notification.Channel) (channel.Channel, bool)
}

// Broadcaster pushes a dispatched notification to live subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, recipientID string, n notification.Notification)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Request asks for a notification to be created and sent.
type Request struct {
	RecipientID   string
	Title         string
	Content       string
	Severity      notification.Severity
	Channels      []notification.Channel
	CorrelationID string
}

// Dispatcher creates notifications and delivers them across channels.
type Dispatcher struct {
	repo        notification.Repository
	channels    ChannelLookup
	broadcaster Broadcaster
	clock       Clock
	newID       func() string
	sendTimeout time.Duration
	logger      *zap.Logger
}

// Option customizes the dispatcher.
type Option func(*Dispatcher)

// WithBroadcaster assigns the live fan-out.
func WithBroadcaster(b Broadcaster) Option {
	return func(d *Dispatcher) {
		d.broadcaster = b
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(newID func() string) Option {
	return func(d *Dispatcher) {
		if newID != nil {
			d.newID = newID
		}
	}
}

// WithSendTimeout bounds each channel attempt. Zero leaves attempts unbounded.
func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout >= 0 {
			d.sendTimeout = timeout
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(repo notification.Repository, channels ChannelLookup, opts ...Option) (*Dispatcher, error) {
	if repo == nil {
		return nil, errors.New("dispatcher: nil repository")
	}
	if channels == nil {
		return nil, errors.New("dispatcher: nil channel registry")
	}
	d := &Dispatcher{
		repo:     repo,
		channels: channels,
		clock:    systemClock{},
		newID:    uuid.NewString,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// CreateAndSend creates the notification and attempts each channel once, in order.
// A request whose correlation id is already known returns the existing notification
// without sending anything. Channel failures are recorded on the deliveries; only
// invalid input and persistence errors are returned.
//
// Once the request is valid the dispatch runs to completion even if ctx is
// cancelled. If the outcome cannot be stored the notification is removed again,
// so a retry with the same correlation id dispatches afresh.
func (d *Dispatcher) CreateAndSend(ctx context.Context, req Request) (*notification.Notification, error) {
	if d == nil {
		return nil, errors.New("dispatcher: nil dispatcher")
	}
	start := time.Now()
	draft, err := notification.New(d.newID(), notification.Draft{
		RecipientID:   req.RecipientID,
		Title:         req.Title,
		Content:       req.Content,
		Severity:      req.Severity,
		Channels:      req.Channels,
		CorrelationID: req.CorrelationID,
	}, d.newID, d.clock.Now())
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	stored, created, err := d.repo.Create(ctx, *draft)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: create: %w", err)
	}
	if !created {
		metrics.IncIdempotentHit()
		d.logger.Info("idempotent request matched existing notification",
			zap.String("correlation_id", stored.CorrelationID),
			zap.String("notification_id", stored.ID),
		)
		return &stored, nil
	}

	n := stored
	for i := range n.Deliveries {
		d.attempt(ctx, n, &n.Deliveries[i])
	}
	n.Finalize(d.clock.Now())

	if err := d.repo.SaveDispatch(ctx, n); err != nil {
		d.discard(ctx, n.ID)
		return nil, fmt.Errorf("dispatcher: save dispatch: %w", err)
	}
	metrics.ObserveDispatch(string(n.Status), time.Since(start))
	d.logger.Debug("notification dispatched",
		zap.String("notification_id", n.ID),
		zap.String("recipient_id", n.RecipientID),
		zap.String("status", string(n.Status)),
	)

	if d.broadcaster != nil {
		d.broadcaster.Broadcast(ctx, n.RecipientID, n)
	}
	return &n, nil
}

// discard drops a notification whose dispatch outcome was not stored, releasing
// its correlation id.
func (d *Dispatcher) discard(ctx context.Context, id string) {
	err := d.repo.Delete(ctx, id)
	if err == nil || errors.Is(err, notification.ErrNotFound) {
		return
	}
	d.logger.Error("discard undispatched notification failed",
		zap.String("notification_id", id),
		zap.Error(err),
	)
}

func (d *Dispatcher) attempt(ctx context.Context, n notification.Notification, delivery *notification.Delivery) {
	if err := delivery.BeginAttempt(); err != nil {
		d.logger.Warn("delivery not attemptable", zap.String("delivery_id", delivery.ID), zap.Error(err))
		return
	}
	ch, ok := d.channels.Lookup(delivery.Channel)
	if !ok {
		reason := fmt.Sprintf("channel %s is not configured", delivery.Channel)
		d.logger.Warn(reason, zap.String("notification_id", n.ID))
		_ = delivery.MarkFailed(reason)
		metrics.IncDelivery(string(delivery.Channel), string(delivery.Status))
		return
	}
	if err := d.send(ctx, ch, n); err != nil {
		d.logger.Warn("channel send failed",
			zap.String("notification_id", n.ID),
			zap.String("channel", string(delivery.Channel)),
			zap.Error(err),
		)
		_ = delivery.MarkFailed(err.Error())
	} else {
		_ = delivery.MarkSent(d.clock.Now())
	}
	metrics.IncDelivery(string(delivery.Channel), string(delivery.Status))
}

func (d *Dispatcher) send(ctx context.Context, ch channel.Channel, n notification.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel %s panicked: %v", ch.Name(), r)
		}
	}()
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}
	return ch.Send(ctx, n)
}

// Get returns one notification.
func (d *Dispatcher) Get(ctx context.Context, id string) (*notification.Notification, error) {
	n, err := d.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, notification.ErrNotFound
	}
	return n, nil
}

// List returns a recipient's notifications, newest first.
func (d *Dispatcher) List(ctx context.Context, recipientID string, status notification.Status, page, size int) ([]notification.Notification, error) {
	if recipientID == "" {
		return nil, fmt.Errorf("%w: recipientId is required", notification.ErrValidation)
	}
	limit, offset := Page(page, size)
	list, err := d.repo.List(ctx, notification.Query{
		RecipientID: recipientID,
		Status:      status,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []notification.Notification{}
	}
	return list, nil
}

// MarkRead flags a notification as read.
func (d *Dispatcher) MarkRead(ctx context.Context, id string) error {
	return d.repo.MarkRead(ctx, id, d.clock.Now())
}

// Delete removes a notification and its deliveries.
func (d *Dispatcher) Delete(ctx context.Context, id string) error {
	return d.repo.Delete(ctx, id)
}

// Page clamps page to >= 0 and size to 1..100 (20 when unset) and returns limit and offset.
// Pages past the addressable range are clamped so the offset never overflows.
func Page(page, size int) (limit, offset int) {
	if page < 0 {
		page = 0
	}
	switch {
	case size == 0:
		size = defaultPageSize
	case size < 1:
		size = 1
	case size > maxPageSize:
		size = maxPageSize
	}
	if page > math.MaxInt32/size {
		page = math.MaxInt32 / size
	}
	return size, page * size
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
