package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisStoreAppendAndHistory(t *testing.T) {
	fake := newFakeRedis()
	store := NewRedisStore(fake, time.Hour)
	ctx := context.Background()

	if _, err := store.Append(ctx, "s1", Turn{User: "show female reviewers", Bot: "Twelve."}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	history, err := store.Append(ctx, "s1", Turn{User: "show male instead", Bot: "Twenty-eight.", TableName: "reviews"})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if len(history) != 2 || history[1].TableName != "reviews" {
		t.Fatalf("history = %+v", history)
	}
	if fake.ttls["tabletalk:session:s1:turns"] != time.Hour {
		t.Fatalf("ttl = %s", fake.ttls["tabletalk:session:s1:turns"])
	}

	if _, err := store.Append(ctx, "a0", Turn{User: "x"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	sessions, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 2 || sessions[0] != "a0" || sessions[1] != "s1" {
		t.Fatalf("sessions = %v", sessions)
	}
}

func TestRedisStoreSurfacesErrors(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	store := NewRedisStore(fake, 0)

	if _, err := store.Append(context.Background(), "s1", Turn{User: "q"}); err == nil {
		t.Fatal("expected append error")
	}
	if _, err := store.History(context.Background(), "s1"); err == nil {
		t.Fatal("expected history error")
	}
	if err := store.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check error")
	}
}

func TestRedisStoreRejectsCorruptTurns(t *testing.T) {
	fake := newFakeRedis()
	fake.lists["tabletalk:session:s1:turns"] = []string{"{not json"}
	store := NewRedisStore(fake, 0)
	if _, err := store.History(context.Background(), "s1"); err == nil {
		t.Fatal("expected decode error")
	}
}

// fakeRedis implements the handful of commands the store issues. Any other
// command panics through the nil embedded interface.
type fakeRedis struct {
	redis.Cmdable
	lists map[string][]string
	sets  map[string]map[string]struct{}
	ttls  map[string]time.Duration
	err   error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		lists: map[string][]string{},
		sets:  map[string]map[string]struct{}{},
		ttls:  map[string]time.Duration{},
	}
}

func (f *fakeRedis) RPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	for _, value := range values {
		f.lists[key] = append(f.lists[key], value.(string))
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) SAdd(_ context.Context, key string, members ...interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	if f.sets[key] == nil {
		f.sets[key] = map[string]struct{}{}
	}
	for _, member := range members {
		f.sets[key][member.(string)] = struct{}{}
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeRedis) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	if f.err != nil {
		return redis.NewStringSliceResult(nil, f.err)
	}
	out := make([]string, 0, len(f.sets[key]))
	for member := range f.sets[key] {
		out = append(out, member)
	}
	return redis.NewStringSliceResult(out, nil)
}

func (f *fakeRedis) LRange(_ context.Context, key string, _, _ int64) *redis.StringSliceCmd {
	if f.err != nil {
		return redis.NewStringSliceResult(nil, f.err)
	}
	return redis.NewStringSliceResult(append([]string(nil), f.lists[key]...), nil)
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	return redis.NewStatusResult("PONG", nil)
}
