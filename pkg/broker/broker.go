package broker

/*
Usage:
	caster := broker.New()
	go caster.Start()

	reader := caster.Subscribe()
	for {
		fmt.Println(<-reader)
	}
*/

const subscriberBuffer = 8

// Broker relays published messages to every subscriber. A subscriber that
// falls behind misses messages rather than slowing the publisher down.
type Broker struct {
	stopCh    chan struct{}
	publishCh chan interface{}
	subCh     chan chan interface{}
	unsubCh   chan chan interface{}
}

// New creates a Broker. Start must be called before use.
func New() *Broker {
	return &Broker{
		stopCh:    make(chan struct{}),
		publishCh: make(chan interface{}, 1),
		subCh:     make(chan chan interface{}),
		unsubCh:   make(chan chan interface{}),
	}
}

// Start runs the relay loop until Stop is called.
func (b *Broker) Start() {
	subs := map[chan interface{}]struct{}{}
	for {
		select {
		case <-b.stopCh:
			return
		case ch := <-b.subCh:
			subs[ch] = struct{}{}
		case ch := <-b.unsubCh:
			delete(subs, ch)
		case msg := <-b.publishCh:
			for ch := range subs {
				select {
				case ch <- msg:
				default: // subscriber not keeping up
				}
			}
		}
	}
}

// Stop terminates the relay loop.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe registers a new reader channel.
func (b *Broker) Subscribe() chan interface{} {
	ch := make(chan interface{}, subscriberBuffer)
	b.subCh <- ch
	return ch
}

// Unsubscribe removes a reader channel.
func (b *Broker) Unsubscribe(ch chan interface{}) {
	b.unsubCh <- ch
}

// Publish hands msg to the relay loop without blocking the caller.
func (b *Broker) Publish(msg interface{}) {
	select {
	case b.publishCh <- msg:
	case <-b.stopCh:
	}
}
