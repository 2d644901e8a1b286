package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const eventsChannel = "events"

// setScript writes every key and publishes one event per changed value.
// KEYS: prefixed keys. ARGV: channel, origin, ttl ms, values..., plain keys...
var setScript = redis.NewScript(`
local n = #KEYS
local ttl = tonumber(ARGV[3])
for i = 1, n do
  local v = ARGV[3 + i]
  local old = redis.call('GET', KEYS[i])
  if ttl > 0 then
    redis.call('SET', KEYS[i], v, 'PX', ttl)
  else
    redis.call('SET', KEYS[i], v)
  end
  if old ~= v then
    redis.call('PUBLISH', ARGV[1], cjson.encode({key = ARGV[3 + n + i], origin = ARGV[2], removed = false}))
  end
end
return n
`)

// removeScript deletes every key and publishes one event per deleted key.
// KEYS: prefixed keys. ARGV: channel, origin, plain keys...
var removeScript = redis.NewScript(`
for i = 1, #KEYS do
  if redis.call('DEL', KEYS[i]) == 1 then
    redis.call('PUBLISH', ARGV[1], cjson.encode({key = ARGV[2 + i], origin = ARGV[2], removed = true}))
  end
end
return #KEYS
`)

// RedisArea stores items in Redis under a key prefix and carries change events
// over a pub/sub channel, so tabs in different processes stay in sync.
type RedisArea struct {
	client *redis.Client
	prefix string
	tabID  string
	keyTTL time.Duration

	mu     sync.Mutex
	subs   map[*redis.PubSub]struct{}
	closed bool
}

// RedisAreaOption configures a RedisArea.
type RedisAreaOption func(*RedisArea)

// WithKeyTTL expires stored items after ttl so credential material does not
// outlive the longest allowed session.
func WithKeyTTL(ttl time.Duration) RedisAreaOption {
	return func(a *RedisArea) {
		a.keyTTL = ttl
	}
}

// WithTabID sets the tab ID instead of generating one.
func WithTabID(tabID string) RedisAreaOption {
	return func(a *RedisArea) {
		a.tabID = tabID
	}
}

var _ Area = (*RedisArea)(nil)

// NewRedisArea constructs a Redis-backed area for one tab.
func NewRedisArea(client *redis.Client, prefix string, opts ...RedisAreaOption) *RedisArea {
	a := &RedisArea{
		client: client,
		prefix: prefix,
		tabID:  uuid.NewString(),
		subs:   make(map[*redis.PubSub]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// NewRedisClient parses url and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, apperrors.Wrapf(err, "parse redis URL")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.Wrapf(err, "redis ping failed")
	}
	return client, nil
}

func (a *RedisArea) TabID() string {
	return a.tabID
}

func (a *RedisArea) channel() string {
	return a.prefix + eventsChannel
}

func (a *RedisArea) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := a.client.Get(ctx, a.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.Wrapf(err, "[RedisArea.Get] %s", key)
	}
	return v, true, nil
}

// GetItems reads every key with a single MGET.
func (a *RedisArea) GetItems(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, a.prefix+k)
	}
	values, err := a.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, apperrors.Wrapf(err, "[RedisArea.GetItems]")
	}
	for i, v := range values {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

func (a *RedisArea) SetItems(ctx context.Context, items map[string]string) error {
	if len(items) == 0 {
		return nil
	}
	keys := make([]string, 0, len(items))
	values := make([]any, 0, len(items))
	plain := make([]any, 0, len(items))
	for k, v := range items {
		keys = append(keys, a.prefix+k)
		values = append(values, v)
		plain = append(plain, k)
	}
	args := append([]any{a.channel(), a.tabID, a.keyTTL.Milliseconds()}, values...)
	args = append(args, plain...)
	if err := setScript.Run(ctx, a.client, keys, args...).Err(); err != nil {
		return apperrors.Wrapf(err, "[RedisArea.SetItems]")
	}
	return nil
}

func (a *RedisArea) RemoveItems(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	args := []any{a.channel(), a.tabID}
	for _, k := range keys {
		full = append(full, a.prefix+k)
		args = append(args, k)
	}
	if err := removeScript.Run(ctx, a.client, full, args...).Err(); err != nil {
		return apperrors.Wrapf(err, "[RedisArea.RemoveItems]")
	}
	return nil
}

// Watch subscribes to the events channel. It returns once the subscription
// is confirmed, so writes made afterwards are never missed.
func (a *RedisArea) Watch(ctx context.Context, fn func(Event)) (func(), error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, apperrors.ErrStorageClosed
	}
	a.mu.Unlock()

	sub := a.client.Subscribe(ctx, a.channel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, apperrors.Wrapf(err, "[RedisArea.Watch] subscribe")
	}

	a.mu.Lock()
	a.subs[sub] = struct{}{}
	a.mu.Unlock()

	go func() {
		for msg := range sub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Err(err).Str("channel", msg.Channel).Msg("Dropping malformed storage event")
				continue
			}
			if ev.Origin == a.tabID {
				continue
			}
			fn(ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, sub)
			a.mu.Unlock()
			_ = sub.Close()
		})
	}, nil
}

func (a *RedisArea) Close() error {
	a.mu.Lock()
	subs := a.subs
	a.subs = make(map[*redis.PubSub]struct{})
	a.closed = true
	a.mu.Unlock()

	var errs []error
	for sub := range subs {
		errs = append(errs, sub.Close())
	}
	return errors.Join(errs...)
}
