package ui

import (
	"sync"
	"time"
)

// StateEvent is broadcast for every StateStore update.
type StateEvent struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// StateStore is a global observable key/value store.
type StateStore struct {
	mutex       sync.RWMutex
	values      map[string]interface{}
	broadcaster *Broadcaster[StateEvent]
	now         func() time.Time
}

func NewStateStore() *StateStore {
	return &StateStore{
		values:      make(map[string]interface{}),
		broadcaster: NewBroadcaster[StateEvent](),
		now:         time.Now,
	}
}

// Update records the value and notifies observers.
func (store *StateStore) Update(key string, value interface{}) {
	store.mutex.Lock()
	store.values[key] = value
	store.mutex.Unlock()

	store.broadcaster.Broadcast(StateEvent{Key: key, Value: value, UpdatedAt: store.now().UTC()})
}

func (store *StateStore) Get(key string) (interface{}, bool) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	value, found := store.values[key]
	return value, found
}

// Snapshot copies the current values.
func (store *StateStore) Snapshot() map[string]interface{} {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	snapshot := make(map[string]interface{}, len(store.values))
	for key, value := range store.values {
		snapshot[key] = value
	}
	return snapshot
}

func (store *StateStore) Subscribe() *Subscription[StateEvent] {
	return store.broadcaster.Subscribe()
}

func (store *StateStore) Close() {
	store.broadcaster.Close()
}
