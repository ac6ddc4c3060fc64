package artifact

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockStore records puts and can block or fail them
type mockStore struct {
	mu      sync.Mutex
	puts    map[string][]byte
	putErr  error
	release chan struct{}
}

func newMockStore() *mockStore {
	return &mockStore{puts: map[string][]byte{}}
}

func (m *mockStore) Put(ctx context.Context, key string, data []byte, _ string) error {
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.putErr != nil {
		return m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts[key] = data
	return nil
}

func (m *mockStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.puts[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (m *mockStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.puts, key)
	return nil
}

func (m *mockStore) stored(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.puts[key]
	return ok
}

var _ = Describe("Uploader", func() {
	var (
		store    *mockStore
		uploader *Uploader
		mu       sync.Mutex
		results  map[string]error
	)

	record := func(task Task, err error) {
		mu.Lock()
		defer mu.Unlock()
		results[task.Key] = err
	}

	resultFor := func(key string) func() (error, bool) {
		return func() (error, bool) {
			mu.Lock()
			defer mu.Unlock()
			err, ok := results[key]
			return err, ok
		}
	}

	BeforeEach(func() {
		store = newMockStore()
		results = map[string]error{}
	})

	AfterEach(func() {
		if store.release != nil {
			close(store.release)
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(uploader.Close(ctx)).To(Succeed())
	})

	When("the store accepts the upload", func() {
		BeforeEach(func() {
			uploader = NewUploader(store, 4, WithResultHook(record))
		})

		It("stores the data in the background", func() {
			Expect(uploader.Enqueue(Task{Key: "u/1.jpg", Data: []byte("img")})).To(BeTrue())
			Eventually(func() bool { return store.stored("u/1.jpg") }).Should(BeTrue())
		})

		It("calls the task's Done callback with nil", func() {
			done := make(chan error, 1)
			uploader.Enqueue(Task{Key: "u/2.jpg", Data: []byte("img"), Done: func(err error) { done <- err }})
			Eventually(done).Should(Receive(BeNil()))
		})
	})

	When("the store fails", func() {
		BeforeEach(func() {
			store.putErr = errors.New("disk full")
			uploader = NewUploader(store, 4, WithResultHook(record))
		})

		It("reports the failure to the hook only", func() {
			Expect(uploader.Enqueue(Task{Key: "u/1.jpg"})).To(BeTrue())
			Eventually(func() error {
				err, _ := resultFor("u/1.jpg")()
				return err
			}).Should(MatchError("disk full"))
		})
	})

	When("the queue is full", func() {
		BeforeEach(func() {
			store.release = make(chan struct{})
			uploader = NewUploader(store, 1, WithResultHook(record))
		})

		It("drops tasks without blocking", func() {
			Expect(uploader.Enqueue(Task{Key: "u/1.jpg"})).To(BeTrue())
			// the worker may or may not have taken the first task yet
			accepted := 0
			for _, key := range []string{"u/2.jpg", "u/3.jpg", "u/4.jpg"} {
				if uploader.Enqueue(Task{Key: key}) {
					accepted++
				}
			}
			Expect(accepted).To(BeNumerically("<=", 1))
			Eventually(func() error {
				err, _ := resultFor("u/4.jpg")()
				return err
			}).Should(MatchError(ErrQueueFull))
		})
	})

	When("the uploader is closed", func() {
		BeforeEach(func() {
			uploader = NewUploader(store, 4, WithResultHook(record))
		})

		It("drains queued tasks and rejects new ones", func() {
			Expect(uploader.Enqueue(Task{Key: "u/1.jpg", Data: []byte("img")})).To(BeTrue())
			Expect(uploader.Close(context.Background())).To(Succeed())
			Expect(store.stored("u/1.jpg")).To(BeTrue())

			Expect(uploader.Enqueue(Task{Key: "u/2.jpg"})).To(BeFalse())
			err, ok := resultFor("u/2.jpg")()
			Expect(ok).To(BeTrue())
			Expect(err).To(MatchError(ErrUploaderClosed))
		})
	})
})
