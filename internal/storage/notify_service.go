// Dispatches Web Push notifications when tables change.

package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// NotifyService sends Web Push messages to every endpoint subscribed to
// a table. Delivery is fire-and-forget: failures are logged, expired
// subscriptions are removed.
type NotifyService struct {
	vapid VAPIDKeys
	subs  *SubscriptionService
}

// NewNotifyService creates a notify service. With empty VAPID keys the
// service is inert and EmitChange does nothing.
func NewNotifyService(vapid VAPIDKeys, subs *SubscriptionService) *NotifyService {
	return &NotifyService{vapid: vapid, subs: subs}
}

// EmitChange asynchronously notifies subscribers of table that a
// mutation happened. It never blocks or returns errors.
func (n *NotifyService) EmitChange(ctx context.Context, m Mutation) {
	if n.vapid.PublicKey == "" || n.subs == nil {
		return
	}
	subs, err := n.subs.ListByTable(m.Table)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list push subscriptions", "err", err, "table", m.Table)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, _ := json.Marshal(map[string]string{
		"table":  m.Table,
		"op":     m.Op,
		"detail": m.Detail,
		"at":     time.Now().UTC().Format(time.RFC3339),
	})

	// Detach from the request context so deliveries survive the response.
	ctx = context.WithoutCancel(ctx)
	go func() {
		for _, sub := range subs {
			resp, err := webpush.SendNotification(payload, &webpush.Subscription{
				Endpoint: sub.Endpoint,
				Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
			}, &webpush.Options{
				VAPIDPublicKey:  n.vapid.PublicKey,
				VAPIDPrivateKey: n.vapid.PrivateKey,
				TTL:             86400,
			})
			if err != nil {
				slog.ErrorContext(ctx, "Web push send failed", "err", err, "endpoint", sub.Endpoint)
				continue
			}
			_ = resp.Body.Close()
			// 410 Gone means the subscription is invalid — auto-delete.
			if resp.StatusCode == http.StatusGone {
				if err := n.subs.Delete(ctx, sub.ID); err != nil {
					slog.ErrorContext(ctx, "Failed to delete expired push subscription", "err", err, "sub_id", sub.ID)
				}
			}
		}
	}()
}

// Observer returns a mutation observer that emits change notifications
// for user table writes.
func (n *NotifyService) Observer() func(context.Context, Mutation) {
	return n.EmitChange
}
