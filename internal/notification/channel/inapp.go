package channel

import (
	"context"

	notification "esante-monitoring/internal/notification/domain"
)

// InApp records in-app delivery. Live pushes go through the broadcast hub,
// so the persisted notification is the in-app message itself.
type InApp struct{}

// Name implements Channel.
func (InApp) Name() notification.Channel { return notification.ChannelInApp }

// Send implements Channel.
func (InApp) Send(ctx context.Context, _ notification.Notification) error {
	return ctx.Err()
}
