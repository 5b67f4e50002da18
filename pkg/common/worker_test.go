package common_test

import (
	"testing"
	"time"

	"github.com/pionsfu/forwarder/pkg/common"
	"github.com/stretchr/testify/assert"
)

func TestWorkerDeliversTasks(t *testing.T) {
	received := make(chan int, 4)
	w := common.StartWorker(common.WorkerConfig[int]{
		ChannelSize: 4,
		Timeout:     time.Second,
		OnTimeout:   func() {},
		OnTask:      func(task int) { received <- task },
	})
	defer w.Stop()

	for i := 0; i < 3; i++ {
		assert.NoError(t, w.Send(i))
	}

	for i := 0; i < 3; i++ {
		select {
		case <-received:
		case <-time.After(time.Second):
			t.Fatal("task was not delivered")
		}
	}
}

func TestWorkerRejectsAfterStop(t *testing.T) {
	w := common.StartWorker(common.WorkerConfig[int]{
		ChannelSize: 1,
		Timeout:     time.Second,
		OnTimeout:   func() {},
		OnTask:      func(int) {},
	})

	w.Stop()
	assert.ErrorIs(t, w.Send(1), common.ErrWorkerClosed)
}

func TestWorkerTooBusy(t *testing.T) {
	block := make(chan struct{})
	w := common.StartWorker(common.WorkerConfig[int]{
		ChannelSize: 1,
		Timeout:     time.Minute,
		OnTimeout:   func() {},
		OnTask:      func(int) { <-block },
	})
	defer func() {
		close(block)
		w.Stop()
	}()

	assert.NoError(t, w.Send(1))
	time.Sleep(50 * time.Millisecond) // let the worker goroutine pick up task 1 and block on it
	assert.NoError(t, w.Send(2))
	assert.ErrorIs(t, w.Send(3), common.ErrWorkerTooBusy)
}

func BenchmarkWorkerSend(b *testing.B) {
	w := common.StartWorker(common.WorkerConfig[struct{}]{
		ChannelSize: 1,
		Timeout:     2 * time.Second,
		OnTimeout:   func() {},
		OnTask:      func(struct{}) {},
	})
	defer w.Stop()

	for n := 0; n < b.N; n++ {
		w.Send(struct{}{})
	}
}
