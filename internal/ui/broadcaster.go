package ui

import "sync"

const broadcasterDefaultBuffer = 8

// Broadcaster fan-outs events to subscribed clients. Slow subscribers drop events.
type Broadcaster[T any] struct {
	mutex        sync.Mutex
	nextID       int64
	subscribers  map[int64]chan T
	closed       bool
	bufferLength int
}

// NewBroadcaster constructs a broadcaster with the default per-subscriber buffer.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		subscribers:  make(map[int64]chan T),
		bufferLength: broadcasterDefaultBuffer,
	}
}

// Subscribe returns a subscription, or nil once the broadcaster is closed.
func (broadcaster *Broadcaster[T]) Subscribe() *Subscription[T] {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	if broadcaster.closed {
		return nil
	}
	subscriptionID := broadcaster.nextID
	broadcaster.nextID++
	eventChannel := make(chan T, broadcaster.bufferLength)
	broadcaster.subscribers[subscriptionID] = eventChannel
	return &Subscription[T]{
		broadcaster: broadcaster,
		identifier:  subscriptionID,
		events:      eventChannel,
	}
}

// Broadcast delivers the event to all active subscribers.
func (broadcaster *Broadcaster[T]) Broadcast(event T) {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	if broadcaster.closed || len(broadcaster.subscribers) == 0 {
		return
	}
	for _, channel := range broadcaster.subscribers {
		select {
		case channel <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (broadcaster *Broadcaster[T]) SubscriberCount() int {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	return len(broadcaster.subscribers)
}

// Close stops the broadcaster and closes all subscriber channels.
func (broadcaster *Broadcaster[T]) Close() {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	if broadcaster.closed {
		return
	}
	broadcaster.closed = true
	for identifier, channel := range broadcaster.subscribers {
		close(channel)
		delete(broadcaster.subscribers, identifier)
	}
}

func (broadcaster *Broadcaster[T]) remove(identifier int64) {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	channel, exists := broadcaster.subscribers[identifier]
	if exists {
		delete(broadcaster.subscribers, identifier)
		close(channel)
	}
}

// Subscription represents a single subscriber.
type Subscription[T any] struct {
	broadcaster *Broadcaster[T]
	identifier  int64
	events      chan T
	once        sync.Once
}

// Events exposes the receive-only event channel.
func (subscription *Subscription[T]) Events() <-chan T {
	if subscription == nil {
		return nil
	}
	return subscription.events
}

// Close unregisters the subscription and closes its channel.
func (subscription *Subscription[T]) Close() {
	if subscription == nil {
		return
	}
	subscription.once.Do(func() {
		if subscription.broadcaster != nil {
			subscription.broadcaster.remove(subscription.identifier)
		}
	})
}
