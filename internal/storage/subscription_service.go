// Web Push subscription bookkeeping in the _subscriptions system table.

package storage

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/maruel/ksid"
	taberrors "github.com/maruel/tabdb/internal/errors"
	"github.com/maruel/tabdb/internal/models"
	"github.com/maruel/tabdb/internal/tabfile"
)

const subscriptionsTable = "_subscriptions"

// SubscriptionService stores Web Push subscriptions, one row per
// (table, endpoint) registration.
type SubscriptionService struct {
	path    string
	columns []string
	store   *Store
}

// NewSubscriptionService opens or creates the _subscriptions table.
func NewSubscriptionService(ctx context.Context, store *Store) (*SubscriptionService, error) {
	columns, err := tabfile.ColumnsOf[models.PushSubscription]()
	if err != nil {
		return nil, err
	}
	path := store.systemTablePath(subscriptionsTable)
	if err := tabfile.Create(ctx, path, columns); err != nil {
		if taberrors.CodeOf(err) != taberrors.CodeAlreadyExists {
			return nil, err
		}
	}
	return &SubscriptionService{path: path, columns: columns, store: store}, nil
}

// Subscribe registers a push endpoint for change notifications on table.
// The table must exist.
func (s *SubscriptionService) Subscribe(ctx context.Context, table, endpoint, p256dh, auth string) (*models.PushSubscription, error) {
	if endpoint == "" {
		return nil, taberrors.BadValue("endpoint is required")
	}
	if _, err := s.store.Header(table); err != nil {
		return nil, err
	}

	sub := &models.PushSubscription{
		ID:       ksid.NewID().String(),
		Table:    table,
		Endpoint: endpoint,
		P256dh:   p256dh,
		Auth:     auth,
		Created:  time.Now().UTC(),
	}
	if err := tabfile.Insert(ctx, s.path, map[string]string{
		"id":       sub.ID,
		"table":    sub.Table,
		"endpoint": sub.Endpoint,
		"p256dh":   sub.P256dh,
		"auth":     sub.Auth,
		"created":  sub.Created.Format(time.RFC3339Nano),
	}); err != nil {
		return nil, err
	}
	return sub, nil
}

// ListByTable returns all subscriptions registered for table.
func (s *SubscriptionService) ListByTable(table string) ([]models.PushSubscription, error) {
	rows, err := tabfile.Select(s.path, nil, "table="+table)
	if err != nil {
		return nil, err
	}
	return s.decode(rows)
}

// List returns all subscriptions.
func (s *SubscriptionService) List() ([]models.PushSubscription, error) {
	rows, err := tabfile.Select(s.path, nil, "")
	if err != nil {
		return nil, err
	}
	return s.decode(rows)
}

func (s *SubscriptionService) decode(rows iter.Seq2[string, error]) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	first := true
	for line, err := range rows {
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			continue
		}
		f := strings.Split(line, "\t")
		for len(f) < len(s.columns) {
			f = append(f, "")
		}
		created, _ := time.Parse(time.RFC3339Nano, f[5])
		subs = append(subs, models.PushSubscription{
			ID: f[0], Table: f[1], Endpoint: f[2], P256dh: f[3], Auth: f[4], Created: created,
		})
	}
	return subs, nil
}

// Delete removes a subscription by ID.
func (s *SubscriptionService) Delete(ctx context.Context, id string) error {
	n, err := tabfile.Delete(ctx, s.path, "id="+id)
	if err != nil {
		return err
	}
	if n == 0 {
		return taberrors.New(taberrors.CodeNotFound, "subscription not found")
	}
	return nil
}
