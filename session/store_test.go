package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewStore(rdb, Options{UserSetTTL: 30 * 24 * time.Hour}), mr, rdb
}

func testSession(id string, created time.Time) *Session {
	return &Session{
		SessionID:    id,
		UserID:       "u-1",
		Email:        "a@x.com",
		CreatedAt:    created,
		LastActivity: created,
	}
}

func saveN(t *testing.T, store *Store, n int) []string {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("sid-%d", i)
		if err := store.Save(context.Background(), testSession(ids[i], base.Add(time.Duration(i)*time.Second)), time.Hour); err != nil {
			t.Fatalf("save session %d: %v", i, err)
		}
	}
	return ids
}

func TestSaveGetDelete(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()
	sess := testSession("sid-1", time.Now())
	sess.RememberMe = true

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("session:sid-1") {
		t.Fatal("expected session key under session: prefix")
	}
	if ttl := mr.TTL("user_sessions:u-1"); ttl != 30*24*time.Hour {
		t.Fatalf("expected user index TTL 30d, got %v", ttl)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SessionID != "sid-1" || got.UserID != "u-1" || !got.RememberMe {
		t.Fatalf("unexpected session: %+v", got)
	}

	if err := store.Delete(ctx, "u-1", "sid-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ids, err := store.ListForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty index, got %v", ids)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()
	saveN(t, store, 1)

	if err := store.Delete(ctx, "u-1", "sid-0"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, "u-1", "sid-0"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestListForUserOldestFirst(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()
	ids := saveN(t, store, 3)

	// Re-adding an existing member must not move it to the end.
	if err := store.AddToUser(ctx, "u-1", ids[0], time.Now()); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	got, err := store.ListForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 || got[0] != ids[0] || got[1] != ids[1] || got[2] != ids[2] {
		t.Fatalf("unexpected order: %v", got)
	}

	if err := store.RemoveFromUser(ctx, "u-1", ids[1]); err != nil {
		t.Fatalf("remove from user: %v", err)
	}
	got, _ = store.ListForUser(ctx, "u-1")
	if len(got) != 2 || got[1] != ids[2] {
		t.Fatalf("unexpected list after removal: %v", got)
	}
}

func TestPutAndRemove(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()
	sess := testSession("sid-p", time.Now())

	if err := store.Put(ctx, sess, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ttl := mr.TTL("session:sid-p"); ttl != time.Minute {
		t.Fatalf("expected 1m TTL, got %v", ttl)
	}
	if err := store.Remove(ctx, "sid-p"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if mr.Exists("session:sid-p") {
		t.Fatal("expected session key removed")
	}
}

func TestTerminateAll(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()
	ids := saveN(t, store, 4)

	other := testSession("other", time.Now())
	other.UserID = "u-2"
	if err := store.Save(ctx, other, time.Hour); err != nil {
		t.Fatalf("save other: %v", err)
	}

	n, err := store.TerminateAll(ctx, "u-1")
	if err != nil {
		t.Fatalf("terminate all: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 terminated, got %d", n)
	}
	for _, id := range ids {
		if mr.Exists("session:" + id) {
			t.Fatalf("session %s survived terminate all", id)
		}
	}
	if mr.Exists("user_sessions:u-1") {
		t.Fatal("expected user index removed")
	}
	if !mr.Exists("session:other") {
		t.Fatal("another user's session must survive")
	}

	n, err = store.TerminateAll(ctx, "u-1")
	if err != nil || n != 0 {
		t.Fatalf("expected no-op second terminate, got n=%d err=%v", n, err)
	}
}

func TestEnforceMaxEvictsOldest(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()
	ids := saveN(t, store, 5)

	evicted, err := store.EnforceMax(ctx, "u-1", 3)
	if err != nil {
		t.Fatalf("enforce max: %v", err)
	}
	if len(evicted) != 3 || evicted[0] != ids[0] || evicted[1] != ids[1] || evicted[2] != ids[2] {
		t.Fatalf("unexpected evicted set: %v", evicted)
	}
	for _, id := range evicted {
		if mr.Exists("session:" + id) {
			t.Fatalf("evicted session %s still stored", id)
		}
	}

	remaining, _ := store.ListForUser(ctx, "u-1")
	if len(remaining) != 2 || remaining[0] != ids[3] {
		t.Fatalf("unexpected remaining: %v", remaining)
	}
}

func TestSameInstantSessionsKeepCreationOrder(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()
	created := time.Now()
	ids := make([]string, 6)
	for i := range ids {
		// Ids sort in reverse of creation so member order cannot mask score ties.
		ids[i] = fmt.Sprintf("sid-%c", 'z'-i)
		if err := store.Save(ctx, testSession(ids[i], created), time.Hour); err != nil {
			t.Fatalf("save session %d: %v", i, err)
		}
	}

	got, err := store.ListForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i := range ids {
		if got[i] != ids[i] {
			t.Fatalf("expected creation order %v, got %v", ids, got)
		}
	}

	evicted, err := store.EnforceMax(ctx, "u-1", 5)
	if err != nil {
		t.Fatalf("enforce max: %v", err)
	}
	if len(evicted) != 2 || evicted[0] != ids[0] || evicted[1] != ids[1] {
		t.Fatalf("expected the two earliest evicted, got %v", evicted)
	}
}

func TestEnforceMaxBelowCapNoop(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	saveN(t, store, 2)

	evicted, err := store.EnforceMax(context.Background(), "u-1", 3)
	if err != nil {
		t.Fatalf("enforce max: %v", err)
	}
	if len(evicted) != 0 {
		t.Fatalf("expected nothing evicted, got %v", evicted)
	}
}

func TestEnforceMaxPrunesExpiredMembers(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()
	ids := saveN(t, store, 3)

	// The oldest session expires on its own but stays indexed.
	mr.Del("session:" + ids[0])

	evicted, err := store.EnforceMax(ctx, "u-1", 3)
	if err != nil {
		t.Fatalf("enforce max: %v", err)
	}
	if len(evicted) != 0 {
		t.Fatalf("expected pruning alone to make room, got evicted %v", evicted)
	}
	remaining, _ := store.ListForUser(ctx, "u-1")
	if len(remaining) != 2 || remaining[0] != ids[1] {
		t.Fatalf("expected stale member pruned, got %v", remaining)
	}
}

func TestTouchRenewsOnlyLiveSessions(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	ctx := context.Background()
	sess := testSession("sid-t", time.Now().Add(-time.Minute))
	if err := store.Save(ctx, sess, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}

	mr.FastForward(30 * time.Second)
	at := time.Now().Truncate(time.Second)
	ok, err := store.Touch(ctx, sess, at, time.Hour)
	if err != nil || !ok {
		t.Fatalf("touch live session: ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL("session:sid-t"); ttl != time.Hour {
		t.Fatalf("expected renewed TTL 1h, got %v", ttl)
	}
	got, err := store.Get(ctx, "sid-t")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.LastActivity.Equal(at) {
		t.Fatalf("expected last activity %v, got %v", at, got.LastActivity)
	}

	mr.FastForward(2 * time.Hour)
	ok, err = store.Touch(ctx, sess, time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("touch expired session: %v", err)
	}
	if ok {
		t.Fatal("expected touch on expired session to report false")
	}
	if mr.Exists("session:sid-t") {
		t.Fatal("touch must not resurrect an expired session")
	}
}

func TestRedisUnavailable(t *testing.T) {
	store, mr, _ := newSessionStoreTest(t)
	mr.Close()

	_, err := store.Get(context.Background(), "sid")
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := store.EnforceMax(context.Background(), "u-1", 1); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from EnforceMax, got %v", err)
	}
}
