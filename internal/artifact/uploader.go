package artifact

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is reported when a task is dropped because the queue is full
var ErrQueueFull = errors.New("artifact upload queue is full")

// ErrUploaderClosed is reported when a task arrives after Close
var ErrUploaderClosed = errors.New("artifact uploader is closed")

// Task is one best-effort upload
type Task struct {
	Key         string
	Data        []byte
	ContentType string
	UserID      string

	// Done is called from the worker once the upload finished or was dropped
	Done func(err error)
}

// Uploader stores artifacts in the background. Uploads are best-effort:
// failures are logged and reported to the result hook, never to the caller.
type Uploader struct {
	store   Store
	tasks   chan Task
	timeout time.Duration
	onDone  func(Task, error)

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// UploaderOption configures an Uploader
type UploaderOption func(*Uploader)

// WithTimeout bounds each upload
func WithTimeout(d time.Duration) UploaderOption {
	return func(u *Uploader) { u.timeout = d }
}

// WithResultHook is called after every task, including dropped ones
func WithResultHook(fn func(Task, error)) UploaderOption {
	return func(u *Uploader) { u.onDone = fn }
}

// NewUploader starts a single worker draining a queue of queueSize tasks
func NewUploader(store Store, queueSize int, opts ...UploaderOption) *Uploader {
	if queueSize <= 0 {
		queueSize = 64
	}
	u := &Uploader{
		store:   store,
		tasks:   make(chan Task, queueSize),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(u)
	}

	u.wg.Add(1)
	go u.run()
	return u
}

// Enqueue schedules a task without blocking. It reports false when the
// task was dropped.
func (u *Uploader) Enqueue(task Task) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if u.closed {
		u.finish(task, ErrUploaderClosed)
		return false
	}

	select {
	case u.tasks <- task:
		return true
	default:
		u.finish(task, ErrQueueFull)
		return false
	}
}

// Close stops accepting tasks and waits for queued ones, or for ctx to end
func (u *Uploader) Close(ctx context.Context) error {
	u.mu.Lock()
	if !u.closed {
		u.closed = true
		close(u.tasks)
	}
	u.mu.Unlock()

	done := make(chan struct{})
	go func() {
		u.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *Uploader) run() {
	defer u.wg.Done()
	for task := range u.tasks {
		u.finish(task, u.upload(task))
	}
}

func (u *Uploader) upload(task Task) error {
	ctx := context.Background()
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}
	return u.store.Put(ctx, task.Key, task.Data, task.ContentType)
}

func (u *Uploader) finish(task Task, err error) {
	if err != nil {
		slog.Warn("Failed to store original image",
			"user_id", task.UserID,
			"key", task.Key,
			"size", len(task.Data),
			"error", err,
		)
	}
	if u.onDone != nil {
		u.onDone(task, err)
	}
	if task.Done != nil {
		task.Done(err)
	}
}
