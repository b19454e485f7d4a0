package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/facegate/internal/adapters/mq/queue"
	worker "github.com/okian/facegate/internal/adapters/mq/worker"
	model "github.com/okian/facegate/internal/domain/model"
	logging "github.com/okian/facegate/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	eventChan chan queue.Event
	closeOnce sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		eventChan: make(chan queue.Event, 10),
	}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Event {
	return mq.eventChan
}

func (mq *mockQueue) Close() error {
	mq.closeOnce.Do(func() { close(mq.eventChan) })
	return nil
}

func (mq *mockQueue) addEvent(event queue.Event) { //nolint:gocritic // hugeParam: Event must be passed by value for channel semantics
	mq.eventChan <- event
}

type mockPublisher struct {
	mu        sync.Mutex
	published []string
	errors    map[string]error
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{errors: make(map[string]error)}
}

func (mp *mockPublisher) Publish(_ context.Context, ev queue.Event) error { //nolint:gocritic // hugeParam
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if err, ok := mp.errors[ev.Identity]; ok {
		return err
	}
	mp.published = append(mp.published, ev.ID)
	return nil
}

func (mp *mockPublisher) setError(identity string, err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.errors[identity] = err
}

func (mp *mockPublisher) count() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return len(mp.published)
}

func event(id, identity string) queue.Event {
	return model.AttendanceEvent{ID: id, Identity: identity, Channel: model.Entry, Date: "2026-03-02", Time: "09:00:00", At: time.Now()}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		pub := newMockPublisher()

		convey.Convey("When creating a worker with custom options", func() {
			w := worker.NewInMemoryWorker(q, pub, worker.WithName("test-worker"))

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(q, pub)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go w.Run(ctx)

			convey.Convey("And when processing events", func() {
				q.addEvent(event("event-1", "alice"))
				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then it should publish them", func() {
					convey.So(pub.count(), convey.ShouldEqual, 1)
				})
			})

			convey.Convey("And when publishing fails", func() {
				pub.setError("bob", errors.New("broker down"))
				q.addEvent(event("event-2", "bob"))
				q.addEvent(event("event-3", "carol"))
				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then the worker should keep going", func() {
					convey.So(pub.count(), convey.ShouldEqual, 1)
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()

				err := w.Shutdown(shutdownCtx)

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(err, convey.ShouldBeNil)
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When the queue closes", func() {
			w := worker.NewInMemoryWorker(q, pub)
			go w.Run(context.Background())
			_ = q.Close()

			convey.Convey("Then the worker should stop", func() {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					t.Fatal("worker did not stop")
				}
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over a real queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		pub := newMockPublisher()
		pool := worker.NewPool(3, q, pub)
		pool.Start(context.Background())

		convey.Convey("When events are enqueued and the pool shuts down", func() {
			for i := 0; i < 20; i++ {
				q.Enqueue(context.Background(), event("e", "alice"))
			}
			err := pool.Shutdown(context.Background())

			convey.Convey("Then every buffered event should be published", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(pub.count(), convey.ShouldEqual, 20)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.So(pool.Size(), convey.ShouldEqual, 3)
	})

	convey.Convey("Given a pool with no worker count", t, func() {
		_ = logging.Init()
		pool := worker.NewPool(0, newMockQueue(), newMockPublisher())
		convey.So(pool.Size(), convey.ShouldEqual, 2)
	})
}
