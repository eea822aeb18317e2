package repo

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/oziev02/pixelflex/internal/domain"
)

// Requires a reachable redis, e.g. REDIS_TEST_ADDR=localhost:6379.
func TestRedisRepository(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, "", 0)
	if err != nil {
		t.Fatalf("NewRedisClient failed: %v", err)
	}
	defer client.Close()

	r := NewRedisRepository(client, "pixelflex-test-"+GenerateID(), time.Minute)
	defer r.Purge(ctx)

	h, err := r.Put(ctx, []byte("blob"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := r.Get(ctx, h)
	if err != nil || !bytes.Equal(got, []byte("blob")) {
		t.Fatalf("Get = %q, %v", got, err)
	}

	if _, err := r.Put(ctx, []byte("other")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := r.Purge(ctx); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if _, err := r.Get(ctx, h); !errors.Is(err, domain.ErrHandleNotFound) {
		t.Errorf("Get after purge error = %v, want ErrHandleNotFound", err)
	}
}

func TestRedisPurgeSpansBatches(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, "", 0)
	if err != nil {
		t.Fatalf("NewRedisClient failed: %v", err)
	}
	defer client.Close()

	ns := "pixelflex-test-" + GenerateID()
	r := NewRedisRepository(client, ns, time.Minute)
	neighbour := NewRedisRepository(client, ns+"-other", time.Minute)
	defer neighbour.Purge(ctx)

	handles := make([]domain.Handle, 0, purgeBatch*2+3)
	for i := 0; i < cap(handles); i++ {
		h, err := r.Put(ctx, []byte("x"))
		if err != nil {
			t.Fatalf("Put %d failed: %v", i, err)
		}
		handles = append(handles, h)
	}
	kept, err := neighbour.Put(ctx, []byte("keep"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := r.Purge(ctx); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}

	for _, h := range []domain.Handle{handles[0], handles[purgeBatch], handles[len(handles)-1]} {
		if ok, err := r.Exists(ctx, h); err != nil || ok {
			t.Errorf("Exists(%s) = %v, %v after purge", h, ok, err)
		}
	}
	if ok, err := neighbour.Exists(ctx, kept); err != nil || !ok {
		t.Errorf("neighbour namespace blob purged: %v, %v", ok, err)
	}
}
