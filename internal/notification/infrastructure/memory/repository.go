package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	notification "esante-monitoring/internal/notification/domain"
)

// Repository is an in-memory notification store for tests and single-node demos.
type Repository struct {
	mu            sync.RWMutex
	data          map[string]notification.Notification
	byCorrelation map[string]string
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{
		data:          make(map[string]notification.Notification),
		byCorrelation: make(map[string]string),
	}
}

// Create implements notification.Repository.
func (r *Repository) Create(ctx context.Context, n notification.Notification) (notification.Notification, bool, error) {
	_ = ctx
	if n.ID == "" {
		return notification.Notification{}, false, errors.New("notification memory repo: empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.CorrelationID != "" {
		if id, ok := r.byCorrelation[n.CorrelationID]; ok {
			return clone(r.data[id]), false, nil
		}
	}
	if _, exists := r.data[n.ID]; exists {
		return notification.Notification{}, false, errors.New("notification memory repo: duplicate id")
	}
	r.data[n.ID] = clone(n)
	if n.CorrelationID != "" {
		r.byCorrelation[n.CorrelationID] = n.ID
	}
	return clone(n), true, nil
}

// SaveDispatch implements notification.Repository.
func (r *Repository) SaveDispatch(ctx context.Context, n notification.Notification) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[n.ID]; !ok {
		return notification.ErrNotFound
	}
	r.data[n.ID] = clone(n)
	return nil
}

// Get implements notification.Repository. A missing id yields nil, nil.
func (r *Repository) Get(ctx context.Context, id string) (*notification.Notification, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.data[id]
	if !ok {
		return nil, nil
	}
	out := clone(n)
	return &out, nil
}

// List implements notification.Repository.
func (r *Repository) List(ctx context.Context, query notification.Query) ([]notification.Notification, error) {
	_ = ctx
	r.mu.RLock()
	matched := make([]notification.Notification, 0)
	for _, n := range r.data {
		if n.RecipientID != query.RecipientID {
			continue
		}
		if query.Status != "" && n.Status != query.Status {
			continue
		}
		matched = append(matched, clone(n))
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return window(matched, query.Offset, query.Limit), nil
}

// MarkRead implements notification.Repository.
func (r *Repository) MarkRead(ctx context.Context, id string, at time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.data[id]
	if !ok {
		return notification.ErrNotFound
	}
	n.MarkRead(at)
	r.data[id] = n
	return nil
}

// Delete implements notification.Repository.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.data[id]
	if !ok {
		return notification.ErrNotFound
	}
	delete(r.data, id)
	if n.CorrelationID != "" {
		delete(r.byCorrelation, n.CorrelationID)
	}
	return nil
}

func clone(n notification.Notification) notification.Notification {
	if n.Deliveries != nil {
		n.Deliveries = append([]notification.Delivery(nil), n.Deliveries...)
	}
	return n
}

func window(list []notification.Notification, offset, limit int) []notification.Notification {
	if offset >= len(list) {
		return []notification.Notification{}
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}
