package callsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNoopGuard_AdmitsOverlappingRuns(t *testing.T) {
	g := NoopGuard{}
	r1, err := g.Acquire(context.Background(), "all")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	r2, err := g.Acquire(context.Background(), "all")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	r1()
	r2()
}

func TestRedisGuard_UnreachableIsNotInProgress(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisGuard(rdb, time.Minute).Acquire(ctx, "all")
	if err == nil {
		t.Fatalf("expected connection error")
	}
	if errors.Is(err, ErrRunInProgress) {
		t.Fatalf("a redis outage must not look like a held lease")
	}
}

func TestNewRedisGuard_DefaultTTL(t *testing.T) {
	g := NewRedisGuard(nil, 0)
	if g.ttl != 15*time.Minute {
		t.Fatalf("expected default ttl, got %v", g.ttl)
	}
}
