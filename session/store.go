package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every transport-level Redis failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when a session key does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// ErrCorrupt is returned when a stored session document cannot be decoded.
var ErrCorrupt = errors.New("session corrupt")

const (
	DefaultSessionPrefix = "session:"
	DefaultUserPrefix    = "user_sessions:"
)

const terminateAllScript = `
local ids = redis.call("ZRANGE", KEYS[1], 0, -1)
for _, id in ipairs(ids) do
  redis.call("DEL", ARGV[1] .. id)
end
redis.call("DEL", KEYS[1])
return #ids
`

var terminateAllLua = redis.NewScript(terminateAllScript)

// indexScript adds ARGV[1] to the user index KEYS[1] unless it is already a
// member. The score is the creation time in milliseconds, bumped past the
// current newest member so index order is strictly creation order even when
// several sessions share a millisecond.
const indexScript = `
if redis.call("ZSCORE", KEYS[1], ARGV[1]) == false then
  local score = tonumber(ARGV[2])
  local top = redis.call("ZRANGE", KEYS[1], -1, -1, "WITHSCORES")
  if top[2] ~= nil and tonumber(top[2]) >= score then
    score = tonumber(top[2]) + 1
  end
  redis.call("ZADD", KEYS[1], string.format("%.0f", score), ARGV[1])
end
if tonumber(ARGV[3]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
`

var addToUserLua = redis.NewScript(indexScript + "return 1\n")

// saveLua writes the session document KEYS[2] (ARGV[4], PX ARGV[5]) and
// then indexes it like indexScript.
var saveLua = redis.NewScript(`
if tonumber(ARGV[5]) > 0 then
  redis.call("SET", KEYS[2], ARGV[4], "PX", ARGV[5])
else
  redis.call("SET", KEYS[2], ARGV[4])
end
` + indexScript + "return 1\n")

// Options configures key prefixes and the lifetime of the per-user index.
type Options struct {
	SessionPrefix string
	UserPrefix    string
	// UserSetTTL is applied to the per-user index on every add or touch. It
	// should be at least the longest session lifetime.
	UserSetTTL time.Duration
}

// Store is the Redis-backed session registry. It is safe for concurrent use.
type Store struct {
	redis         redis.UniversalClient
	sessionPrefix string
	userPrefix    string
	userSetTTL    time.Duration
}

// NewStore creates a [Store] on the given client. Empty prefixes fall back to
// DefaultSessionPrefix and DefaultUserPrefix.
func NewStore(rdb redis.UniversalClient, opts Options) *Store {
	if opts.SessionPrefix == "" {
		opts.SessionPrefix = DefaultSessionPrefix
	}
	if opts.UserPrefix == "" {
		opts.UserPrefix = DefaultUserPrefix
	}
	return &Store{
		redis:         rdb,
		sessionPrefix: opts.SessionPrefix,
		userPrefix:    opts.UserPrefix,
		userSetTTL:    opts.UserSetTTL,
	}
}

func (s *Store) key(sessionID string) string {
	return s.sessionPrefix + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.userPrefix + userID
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

// Put upserts the session document with the given TTL.
func (s *Store) Put(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(sess.SessionID), data, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Get loads a session. It returns ErrNotFound when the key is absent.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	sess.SessionID = sessionID
	return &sess, nil
}

// Remove deletes the session document only.
func (s *Store) Remove(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// AddToUser records sessionID in the user's index. Existing members keep
// their original position.
func (s *Store) AddToUser(ctx context.Context, userID, sessionID string, createdAt time.Time) error {
	err := addToUserLua.Run(ctx, s.redis, []string{s.userKey(userID)}, s.indexArgs(sessionID, createdAt)...).Err()
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) indexArgs(sessionID string, createdAt time.Time) []interface{} {
	return []interface{}{sessionID, createdAt.UnixMilli(), s.userSetTTL.Milliseconds()}
}

// RemoveFromUser drops sessionID from the user's index.
func (s *Store) RemoveFromUser(ctx context.Context, userID, sessionID string) error {
	if err := s.redis.ZRem(ctx, s.userKey(userID), sessionID).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// ListForUser returns the user's session ids, oldest first.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.ZRange(ctx, s.userKey(userID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, unavailable(err)
	}
	return ids, nil
}

// Save writes the session document and its index membership in one
// server-side script.
//
//	Performance: 1 round trip (SET + ZADD + PEXPIRE).
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	args := append(s.indexArgs(sess.SessionID, sess.CreatedAt), data, ttl.Milliseconds())
	err = saveLua.Run(ctx, s.redis, []string{s.userKey(sess.UserID), s.key(sess.SessionID)}, args...).Err()
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Delete removes the session document and its index membership in one
// MULTI/EXEC. Deleting an absent session is not an error.
func (s *Store) Delete(ctx context.Context, userID, sessionID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		pipe.ZRem(ctx, s.userKey(userID), sessionID)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// TerminateAll removes every session of userID and the index itself in a
// single server-side script, so no session key outlives the index. It
// returns the number of indexed sessions.
func (s *Store) TerminateAll(ctx context.Context, userID string) (int, error) {
	n, err := terminateAllLua.Run(ctx, s.redis, []string{s.userKey(userID)}, s.sessionPrefix).Int()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// EnforceMax makes room for one more session under maxSessions. Index members
// whose document has already expired are pruned first; then, if the live
// count is still >= maxSessions, the oldest count-maxSessions+1 sessions are
// evicted. It returns the evicted session ids.
//
// Concurrent logins may overshoot the cap momentarily; the next call
// converges back to the limit.
func (s *Store) EnforceMax(ctx context.Context, userID string, maxSessions int) ([]string, error) {
	if maxSessions <= 0 {
		return nil, nil
	}

	ids, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) < maxSessions {
		return nil, nil
	}

	live, err := s.pruneStale(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	if len(live) < maxSessions {
		return nil, nil
	}

	evicted := live[:len(live)-maxSessions+1]
	userKey := s.userKey(userID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		keys := make([]string, len(evicted))
		members := make([]interface{}, len(evicted))
		for i, id := range evicted {
			keys[i] = s.key(id)
			members[i] = id
		}
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, userKey, members...)
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}

	return append([]string(nil), evicted...), nil
}

func (s *Store) pruneStale(ctx context.Context, userID string, ids []string) ([]string, error) {
	pipe := s.redis.Pipeline()
	existsCmds := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		existsCmds[i] = pipe.Exists(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable(err)
	}

	live := make([]string, 0, len(ids))
	var stale []interface{}
	for i, cmd := range existsCmds {
		v, err := cmd.Result()
		if err != nil {
			return nil, unavailable(err)
		}
		if v == 0 {
			stale = append(stale, ids[i])
			continue
		}
		live = append(live, ids[i])
	}

	if len(stale) > 0 {
		if err := s.redis.ZRem(ctx, s.userKey(userID), stale...).Err(); err != nil {
			return nil, unavailable(err)
		}
	}
	return live, nil
}

// Touch stamps LastActivity and renews the TTL, but only while the session
// still exists. It reports whether the session was live.
func (s *Store) Touch(ctx context.Context, sess *Session, at time.Time, ttl time.Duration) (bool, error) {
	next := *sess
	next.LastActivity = at
	data, err := json.Marshal(&next)
	if err != nil {
		return false, err
	}

	err = s.redis.SetArgs(ctx, s.key(sess.SessionID), data, redis.SetArgs{Mode: "XX", TTL: ttl}).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, unavailable(err)
	}
	if s.userSetTTL > 0 {
		if err := s.redis.Expire(ctx, s.userKey(sess.UserID), s.userSetTTL).Err(); err != nil {
			return false, unavailable(err)
		}
	}

	sess.LastActivity = at
	return true, nil
}
