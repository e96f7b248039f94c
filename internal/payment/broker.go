package payment

import "sync"

// subscriberBufferSize is the channel buffer for each status subscriber.
// Updates are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 8

// StatusBroker fans payment status changes out to subscribers. It is safe
// for concurrent use. A topic exists only while it has subscribers; callers
// that subscribe after a payment completed must detect that from the stored
// status, which is committed before Close is called.
type StatusBroker struct {
	mu     sync.Mutex
	topics map[string]*statusTopic
}

type statusTopic struct {
	subs   map[int]chan string
	nextID int
}

// NewStatusBroker creates an empty broker.
func NewStatusBroker() *StatusBroker {
	return &StatusBroker{topics: make(map[string]*statusTopic)}
}

// Subscribe returns a channel receiving status values for paymentID and a
// function that cancels the subscription.
func (b *StatusBroker) Subscribe(paymentID string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[paymentID]
	if !ok {
		t = &statusTopic{subs: make(map[int]chan string)}
		b.topics[paymentID] = t
	}

	ch := make(chan string, subscriberBufferSize)
	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
		if len(t.subs) == 0 && b.topics[paymentID] == t {
			delete(b.topics, paymentID)
		}
	}
}

// Publish delivers status to every subscriber of paymentID.
func (b *StatusBroker) Publish(paymentID, status string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[paymentID]
	if !ok {
		return
	}
	for _, ch := range t.subs {
		select {
		case ch <- status:
		default:
		}
	}
}

// Close ends the stream for paymentID: current subscribers see their channel
// closed and the topic is dropped.
func (b *StatusBroker) Close(paymentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[paymentID]
	if !ok {
		return
	}
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
	delete(b.topics, paymentID)
}
