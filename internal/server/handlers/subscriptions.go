package handlers

import (
	"context"

	"github.com/maruel/tabdb/internal/models"
	"github.com/maruel/tabdb/internal/storage"
)

// SubscriptionHandler registers Web Push subscriptions for table change
// notifications.
type SubscriptionHandler struct {
	subs           *storage.SubscriptionService
	vapidPublicKey string
}

// NewSubscriptionHandler creates a new subscription handler.
func NewSubscriptionHandler(subs *storage.SubscriptionService, vapidPublicKey string) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs, vapidPublicKey: vapidPublicKey}
}

// SubscribeRequest mirrors the JSON a browser's PushSubscription serializes
// to, plus the table from the path.
type SubscribeRequest struct {
	Table    string           `path:"table" json:"-"`
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`
}

// SubscriptionKeys is the keys field of the browser PushSubscription JSON.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscribe registers a push endpoint for the table's change notifications.
func (h *SubscriptionHandler) Subscribe(ctx context.Context, req SubscribeRequest) (*models.PushSubscription, error) {
	return h.subs.Subscribe(ctx, req.Table, req.Endpoint, req.Keys.P256dh, req.Keys.Auth)
}

// VAPIDKeyRequest is a request for the server's VAPID public key (empty).
type VAPIDKeyRequest struct{}

// VAPIDKeyResponse carries the public key browsers need to subscribe.
type VAPIDKeyResponse struct {
	Key string `json:"key"`
}

// VAPIDKey returns the server's VAPID public key.
func (h *SubscriptionHandler) VAPIDKey(ctx context.Context, req VAPIDKeyRequest) (*VAPIDKeyResponse, error) {
	return &VAPIDKeyResponse{Key: h.vapidPublicKey}, nil
}
