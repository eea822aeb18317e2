package repo

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/oziev02/pixelflex/internal/domain"
)

// BlobRepository stores immutable byte buffers addressed by handle. Every
// handle returned by Put is owned by the caller until Release.
type BlobRepository interface {
	Put(ctx context.Context, data []byte) (domain.Handle, error)
	Get(ctx context.Context, h domain.Handle) ([]byte, error)
	Release(ctx context.Context, h domain.Handle) error
	Exists(ctx context.Context, h domain.Handle) (bool, error)
	// Purge releases every handle still held by the repository.
	Purge(ctx context.Context) error
}

type memoryRepo struct {
	mu    sync.RWMutex
	blobs map[domain.Handle][]byte
}

func NewMemoryRepository() BlobRepository {
	return &memoryRepo{blobs: make(map[domain.Handle][]byte)}
}

func (r *memoryRepo) Put(ctx context.Context, data []byte) (domain.Handle, error) {
	h := domain.Handle(GenerateID())
	buf := make([]byte, len(data))
	copy(buf, data)

	r.mu.Lock()
	r.blobs[h] = buf
	r.mu.Unlock()
	return h, nil
}

func (r *memoryRepo) Get(ctx context.Context, h domain.Handle) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.blobs[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrHandleNotFound, h)
	}
	return data, nil
}

func (r *memoryRepo) Release(ctx context.Context, h domain.Handle) error {
	r.mu.Lock()
	delete(r.blobs, h)
	r.mu.Unlock()
	return nil
}

func (r *memoryRepo) Exists(ctx context.Context, h domain.Handle) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.blobs[h]
	return ok, nil
}

func (r *memoryRepo) Purge(ctx context.Context) error {
	r.mu.Lock()
	r.blobs = make(map[domain.Handle][]byte)
	r.mu.Unlock()
	return nil
}

// Len is used by tests to assert that nothing leaked.
func (r *memoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

func GenerateID() string {
	return uuid.New().String()
}

func validHandle(h domain.Handle) bool {
	_, err := uuid.Parse(string(h))
	return err == nil
}
