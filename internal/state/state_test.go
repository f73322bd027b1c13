package state_test

import (
	"sync"
	"testing"

	"github.com/primarycredit/workspace/internal/state"
)

type counter struct {
	Value int
}

func TestUpdatePublishesNewSnapshot(t *testing.T) {
	c := state.New(counter{Value: 1})

	got := c.Update(func(prev counter) counter {
		prev.Value++
		return prev
	})

	if got.Value != 2 {
		t.Errorf("Update() returned Value = %d, want 2", got.Value)
	}
	if c.Get().Value != 2 {
		t.Errorf("Get().Value = %d, want 2", c.Get().Value)
	}
}

func TestUpdateSerializesConcurrentWriters(t *testing.T) {
	c := state.New(counter{})

	const writers = 50
	const perWriter = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				c.Update(func(prev counter) counter {
					prev.Value++
					return prev
				})
			}
		}()
	}
	wg.Wait()

	if got := c.Get().Value; got != writers*perWriter {
		t.Errorf("after %d increments, Value = %d", writers*perWriter, got)
	}
}

func TestSubscribeReceivesPublishedSnapshots(t *testing.T) {
	c := state.New(counter{})
	ch := c.Subscribe()
	defer c.Unsubscribe(ch)

	c.Update(func(prev counter) counter {
		prev.Value = 7
		return prev
	})

	got := <-ch
	if got.Value != 7 {
		t.Errorf("subscriber received Value = %d, want 7", got.Value)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	c := state.New(counter{})
	ch := c.Subscribe()
	c.Unsubscribe(ch)

	if _, open := <-ch; open {
		t.Error("channel still open after Unsubscribe")
	}
}

func TestSlowSubscriberDoesNotBlockUpdates(t *testing.T) {
	c := state.New(counter{})
	ch := c.Subscribe()
	defer c.Unsubscribe(ch)

	// Overflow the subscriber buffer; Update must not block.
	for i := 0; i < 100; i++ {
		c.Update(func(prev counter) counter {
			prev.Value++
			return prev
		})
	}

	if got := c.Get().Value; got != 100 {
		t.Errorf("Value = %d, want 100", got)
	}
}
