// ABOUTME: Valkey-backed Locker for processes sharing one database.
// ABOUTME: SET NX PX with a random token, refreshed while held; release is a compare-and-delete script.
package lock

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

const (
	defaultTTL  = 5 * time.Minute
	pollEvery   = 100 * time.Millisecond
	releaseTime = 2 * time.Second
)

// unlockScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by someone else is never released by us.
var unlockScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the key's expiry only while it still holds our token.
var refreshScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Valkey is a Locker backed by a Valkey (or Redis) server. A held lock is
// refreshed every third of its TTL until released, so the TTL only bounds
// how long a crashed holder blocks others.
type Valkey struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
}

var _ Locker = (*Valkey)(nil)

// NewValkey wraps a client. Keys are stored under prefix; a zero ttl uses
// five minutes.
func NewValkey(client valkey.Client, prefix string, ttl time.Duration) *Valkey {
	if prefix == "" {
		prefix = "vitals:lock"
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Valkey{client: client, prefix: prefix, ttl: ttl}
}

// Dial connects to addr, which may be host:port or a redis:// URL, and
// verifies the server answers.
func Dial(ctx context.Context, addr string) (valkey.Client, error) {
	var (
		opt valkey.ClientOption
		err error
	)
	if strings.Contains(addr, "://") {
		opt, err = valkey.ParseURL(addr)
	} else {
		opt = valkey.ClientOption{InitAddress: []string{addr}}
	}
	if err != nil {
		return nil, fmt.Errorf("parse valkey address: %w", err)
	}

	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping valkey: %w", err)
	}
	return client, nil
}

func (v *Valkey) key(k string) string {
	return v.prefix + ":" + k
}

// Lock polls SET NX until it wins or ctx ends.
func (v *Valkey) Lock(ctx context.Context, key string) (func(), error) {
	k := v.key(key)
	token := uuid.NewString()
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		cmd := v.client.B().Set().Key(k).Value(token).Nx().PxMilliseconds(v.ttl.Milliseconds()).Build()
		err := v.client.Do(ctx, cmd).Error()
		if err == nil {
			break
		}
		if !valkey.IsValkeyNil(err) {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("lock %s: %w: %w", key, ErrLockTimeout, ctx.Err())
			}
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("lock %s: %w: %w", key, ErrLockTimeout, ctx.Err())
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go v.keepAlive(k, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// The caller's ctx may already be cancelled; release on a fresh one.
			rctx, cancel := context.WithTimeout(context.Background(), releaseTime)
			defer cancel()
			_ = unlockScript.Exec(rctx, v.client, []string{k}, []string{token}).Error()
		})
	}, nil
}

// keepAlive extends the lock until stop closes or the token is lost.
func (v *Valkey) keepAlive(k, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(v.ttl / 3)
	defer ticker.Stop()
	ttl := strconv.FormatInt(v.ttl.Milliseconds(), 10)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), releaseTime)
		n, err := refreshScript.Exec(ctx, v.client, []string{k}, []string{token, ttl}).AsInt64()
		cancel()
		if err == nil && n == 0 {
			return
		}
	}
}
