package broker

import (
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	caster := New()
	go caster.Start()
	defer caster.Stop()

	reader := caster.Subscribe()
	caster.Publish([]byte("event"))

	select {
	case msg := <-reader:
		if string(msg.([]byte)) != "event" {
			t.Errorf("unexpected message: %v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	caster := New()
	go caster.Start()
	defer caster.Stop()

	caster.Subscribe() // never read

	done := make(chan bool)
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			caster.Publish(i)
		}
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	caster := New()
	go caster.Start()
	defer caster.Stop()

	reader := caster.Subscribe()
	caster.Unsubscribe(reader)
	caster.Publish("late")

	select {
	case msg := <-reader:
		t.Fatalf("received message after unsubscribe: %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
