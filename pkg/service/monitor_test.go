package service

import (
	"testing"
	"time"

	"github.com/shankarkarande/farmvibes-ai/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestMonitorPublishToSubscribers(t *testing.T) {
	m := NewMonitor(nopLogger{})

	ch1, cancel1 := m.Subscribe("run-1")
	defer cancel1()
	ch2, cancel2 := m.Subscribe("run-1")
	defer cancel2()
	other, cancelOther := m.Subscribe("run-2")
	defer cancelOther()

	m.publish(TaskEvent{RunID: "run-1", Task: "t1", Status: models.DoneTaskStatus})

	for _, ch := range []<-chan TaskEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, "t1", ev.Task)
			assert.Equal(t, models.DoneTaskStatus, ev.Status)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}

	select {
	case <-other:
		t.Fatal("subscriber of another run received the event")
	default:
	}
}

func TestMonitorUnsubscribeClosesChannel(t *testing.T) {
	m := NewMonitor(nopLogger{})

	ch, cancel := m.Subscribe("run-1")
	cancel()
	cancel() // safe to call twice

	_, open := <-ch
	assert.False(t, open)

	// publishing after unsubscribe must not panic
	m.publish(TaskEvent{RunID: "run-1", Task: "t1"})
}

func TestMonitorSlowSubscriberDropsEvents(t *testing.T) {
	m := NewMonitor(nopLogger{})

	ch, cancel := m.Subscribe("run-1")
	defer cancel()

	// overflow the buffer; publish must never block
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			m.publish(TaskEvent{RunID: "run-1", Task: "t"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, ch, subscriberBuffer)
}
