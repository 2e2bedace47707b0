package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/periodrank/internal/adapters/mq/queue"
	"github.com/okian/periodrank/internal/adapters/mq/worker"
	"github.com/okian/periodrank/internal/domain/model"
	logging "github.com/okian/periodrank/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs chan worker.Job
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan worker.Job, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan worker.Job { return mq.jobs }
func (mq *mockQueue) add(id string) { mq.jobs <- model.PeriodJob{ID: id, Received: time.Now()} }
func (mq *mockQueue) close() { close(mq.jobs) }

// recorder applies jobs by remembering their ids, failing for ids in fail.
type recorder struct {
	mu      sync.Mutex
	applied []string
	fail    map[string]error
	active  int
	maxSeen int
}

func (r *recorder) ApplyJob(_ context.Context, j worker.Job) error {
	r.mu.Lock()
	r.active++
	if r.active > r.maxSeen {
		r.maxSeen = r.active
	}
	r.mu.Unlock()

	time.Sleep(time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.active--
	if err := r.fail[j.ID]; err != nil {
		return err
	}
	r.applied = append(r.applied, j.ID)
	return nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.applied...)
}

func TestWorker(t *testing.T) {
	convey.Convey("Given a worker over a queue", t, func() {
		ctx := context.Background()
		mq := newMockQueue()
		rec := &recorder{fail: map[string]error{}}

		convey.Convey("When jobs are queued and the queue is closed", func() {
			w := worker.NewInMemoryWorker(mq, rec, worker.WithName("periods"), worker.WithLogger(logging.Nop()))
			for _, id := range []string{"jan", "feb", "mar"} {
				mq.add(id)
			}
			mq.close()
			go w.Run(ctx)

			waitCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			err := w.Wait(waitCtx)

			convey.Convey("Then every job is applied in order, one at a time", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.snapshot(), convey.ShouldResemble, []string{"jan", "feb", "mar"})
				convey.So(rec.maxSeen, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When a job fails", func() {
			rec.fail["feb"] = errors.New("store down")

			var (
				mu      sync.Mutex
				results = map[string]error{}
			)
			w := worker.NewInMemoryWorker(mq, rec,
				worker.WithLogger(logging.Nop()),
				worker.WithOnDone(func(_ context.Context, j worker.Job, err error) {
					mu.Lock()
					defer mu.Unlock()
					results[j.ID] = err
				}),
			)
			for _, id := range []string{"jan", "feb", "mar"} {
				mq.add(id)
			}
			mq.close()
			go w.Run(ctx)

			waitCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			convey.So(w.Wait(waitCtx), convey.ShouldBeNil)

			convey.Convey("Then the worker keeps going and reports each outcome", func() {
				convey.So(rec.snapshot(), convey.ShouldResemble, []string{"jan", "mar"})
				mu.Lock()
				defer mu.Unlock()
				convey.So(results, convey.ShouldContainKey, "jan")
				convey.So(results["jan"], convey.ShouldBeNil)
				convey.So(results["feb"], convey.ShouldNotBeNil)
				convey.So(results["feb"].Error(), convey.ShouldContainSubstring, "store down")
				convey.So(results["mar"], convey.ShouldBeNil)
			})
		})

		convey.Convey("When the worker is shut down while idle", func() {
			w := worker.NewInMemoryWorker(mq, rec, worker.WithLogger(logging.Nop()))
			go w.Run(ctx)

			shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()

			convey.Convey("Then Shutdown returns promptly and is idempotent", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the worker never started", func() {
			w := worker.NewInMemoryWorker(mq, rec, worker.WithLogger(logging.Nop()))
			shutdownCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()

			convey.Convey("Then Wait times out", func() {
				err := w.Wait(shutdownCtx)
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When fed by the real in-memory queue", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(4))
			w := worker.NewInMemoryWorker(q, worker.ApplierFunc(rec.ApplyJob), worker.WithLogger(logging.Nop()))
			go w.Run(ctx)

			for _, id := range []string{"a", "b"} {
				convey.So(q.Enqueue(ctx, model.PeriodJob{ID: id}), convey.ShouldBeNil)
			}
			convey.So(q.Close(), convey.ShouldBeNil)

			waitCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()

			convey.Convey("Then the worker drains it and exits", func() {
				convey.So(w.Wait(waitCtx), convey.ShouldBeNil)
				convey.So(rec.snapshot(), convey.ShouldResemble, []string{"a", "b"})
			})
		})
	})
}
