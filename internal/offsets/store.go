// Package offsets implements a Redis-backed store for committed bus
// offsets, so the pipeline only advances past a record once every sink
// derived from it has acknowledged the write.
package offsets

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Store tracks, per partition, the highest bus offset that has been fully
// processed and safely persisted downstream.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// New connects to the Redis instance at addr/db and scopes all keys under
// keyPrefix (normally the consumer group name, so multiple groups reading
// the same topic don't clobber each other's committed offsets).
func New(addr string, db int, keyPrefix string) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return &Store{client: client, keyPrefix: keyPrefix}, nil
}

func (s *Store) key(partition int) string {
	return fmt.Sprintf("%s:offset:%d", s.keyPrefix, partition)
}

// Commit records that every record up to and including offset on partition
// has been processed. It is a monotonic set: a Commit for an offset lower
// than what's already stored is a no-op, so out-of-order acks (e.g. from a
// late pane flushing before an earlier in-flight on-time pane) never move
// the committed position backwards.
func (s *Store) Commit(ctx context.Context, partition int, offset uint64) error {
	key := s.key(partition)
	for {
		current, err := s.client.Get(ctx, key).Uint64()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("read committed offset for partition %d: %w", partition, err)
		}
		if err == nil && current >= offset {
			return nil
		}

		set, err := s.client.Eval(ctx, compareAndSetScript, []string{key}, offset).Int()
		if err != nil {
			return fmt.Errorf("commit offset for partition %d: %w", partition, err)
		}
		if set == 1 {
			return nil
		}
		// Someone else advanced the offset between our read and write; retry.
	}
}

// compareAndSetScript sets key to the given offset only if no offset is
// stored yet or the stored value is strictly less than it, keeping Commit monotonic
// under concurrent callers. It always returns an integer reply (1 set, 0
// lost the race) rather than a Lua boolean, since a Lua false round-trips
// through Redis as a nil bulk reply that go-redis surfaces as redis.Nil,
// which would otherwise be indistinguishable from a real error.
const compareAndSetScript = `
local current = redis.call("GET", KEYS[1])
if current == false or tonumber(current) < tonumber(ARGV[1]) then
  redis.call("SET", KEYS[1], ARGV[1])
  return 1
end
return 0
`

// Committed returns the last committed offset for partition, and false if
// nothing has ever been committed for it.
func (s *Store) Committed(ctx context.Context, partition int) (uint64, bool, error) {
	val, err := s.client.Get(ctx, s.key(partition)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read committed offset for partition %d: %w", partition, err)
	}
	offset, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse committed offset %q: %w", val, err)
	}
	return offset, true, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
