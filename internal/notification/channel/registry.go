package channel

import (
	"fmt"
	"sort"
	"sync"

	notification "esante-monitoring/internal/notification/domain"
)

// Registry maps channel names to their implementations.
type Registry struct {
	mu       sync.RWMutex
	channels map[notification.Channel]Channel
}

// NewRegistry builds a registry from channels.
func NewRegistry(channels ...Channel) (*Registry, error) {
	r := &Registry{channels: make(map[notification.Channel]Channel, len(channels))}
	for _, ch := range channels {
		if err := r.Register(ch); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds ch under its name. Names are unique.
func (r *Registry) Register(ch Channel) error {
	if ch == nil {
		return fmt.Errorf("channel registry: nil channel")
	}
	name := ch.Name()
	if _, err := notification.ParseChannel(string(name)); err != nil {
		return fmt.Errorf("channel registry: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.channels[name]; exists {
		return fmt.Errorf("channel registry: %s already registered", name)
	}
	r.channels[name] = ch
	return nil
}

// Lookup returns the channel registered under name.
func (r *Registry) Lookup(name notification.Channel) (Channel, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// Names lists registered channel names, sorted.
func (r *Registry) Names() []notification.Channel {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]notification.Channel, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
