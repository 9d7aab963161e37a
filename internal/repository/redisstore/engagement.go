// Package redisstore implements tracking.EngagementStore on Redis hashes, one
// hash per tracking token. Counter updates run inside MULTI/EXEC so each
// event is applied as a unit.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/service/tracking"
)

const (
	fRecipient      = "recipient"
	fOpenCount      = "open_count"
	fClickCount     = "click_count"
	fFirstOpenedAt  = "first_opened_at"
	fLastOpenedAt   = "last_opened_at"
	fFirstClickedAt = "first_clicked_at"
	fLastClickedAt  = "last_clicked_at"
	fIP             = "last_ip"
	fUserAgent      = "last_user_agent"
	fDevice         = "last_device_type"
	fSeenAt         = "last_seen_at"
	fUpdatedAt      = "updated_at"
)

// raiseScript lifts both counters to at least ARGV[2], ARGV[3].
var raiseScript = redis.NewScript(`
	redis.call("HSETNX", KEYS[1], "recipient", ARGV[1])
	local fields = {"open_count", "click_count"}
	for i, f in ipairs(fields) do
		local want = tonumber(ARGV[i + 1])
		local cur = tonumber(redis.call("HGET", KEYS[1], f) or "0")
		if want > cur then
			redis.call("HSET", KEYS[1], f, ARGV[i + 1])
		end
	end
	redis.call("HSET", KEYS[1], "updated_at", ARGV[4])
	return 1
`)

// EngagementStore keeps engagement records in Redis.
type EngagementStore struct {
	client redis.UniversalClient
	prefix string
}

// NewEngagementStore creates a store. Keys are prefix + token and never
// expire: a recreated hash would restart its counters below the email record.
func NewEngagementStore(client redis.UniversalClient, prefix string) *EngagementStore {
	if prefix == "" {
		prefix = "engagement:"
	}
	return &EngagementStore{client: client, prefix: prefix}
}

func (s *EngagementStore) key(token string) string { return s.prefix + token }

func (s *EngagementStore) Increment(ctx context.Context, token, recipient string, kind domain.EventKind, at time.Time) error {
	var counter, first, last string
	switch kind {
	case domain.EventOpen:
		counter, first, last = fOpenCount, fFirstOpenedAt, fLastOpenedAt
	case domain.EventClick:
		counter, first, last = fClickCount, fFirstClickedAt, fLastClickedAt
	default:
		return tracking.ErrInvalidEventKind
	}

	key := s.key(token)
	ts := formatTime(at)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, counter, 1)
		pipe.HSetNX(ctx, key, fRecipient, recipient)
		pipe.HSetNX(ctx, key, first, ts)
		pipe.HSet(ctx, key, last, ts, fUpdatedAt, formatTime(time.Now()))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis increment %s: %w", kind, err)
	}
	return nil
}

func (s *EngagementStore) SaveClientMetadata(ctx context.Context, token string, meta domain.ClientMetadata) error {
	key := s.key(token)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis exists: %w", err)
	}
	if n == 0 {
		return tracking.ErrEngagementNotFound
	}
	err = s.client.HSet(ctx, key,
		fIP, meta.IPAddress,
		fUserAgent, meta.UserAgent,
		fDevice, meta.DeviceType,
		fSeenAt, formatTime(meta.SeenAt),
	).Err()
	if err != nil {
		return fmt.Errorf("redis save client metadata: %w", err)
	}
	return nil
}

func (s *EngagementStore) Get(ctx context.Context, token string) (*domain.EngagementRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.key(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get engagement: %w", err)
	}
	if len(fields) == 0 {
		return nil, tracking.ErrEngagementNotFound
	}
	return decode(token, fields)
}

func (s *EngagementStore) GetMany(ctx context.Context, tokens []string) (map[string]domain.EngagementRecord, error) {
	out := make(map[string]domain.EngagementRecord, len(tokens))
	if len(tokens) == 0 {
		return out, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(tokens))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, t := range tokens {
			cmds[i] = pipe.HGetAll(ctx, s.key(t))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis get engagements: %w", err)
	}

	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := decode(tokens[i], fields)
		if err != nil {
			return nil, err
		}
		out[tokens[i]] = *rec
	}
	return out, nil
}

func (s *EngagementStore) Raise(ctx context.Context, token, recipient string, opens, clicks int) error {
	err := raiseScript.Run(ctx, s.client, []string{s.key(token)}, recipient, opens, clicks, formatTime(time.Now())).Err()
	if err != nil {
		return fmt.Errorf("redis raise engagement: %w", err)
	}
	return nil
}

func decode(token string, f map[string]string) (*domain.EngagementRecord, error) {
	rec := &domain.EngagementRecord{TrackingToken: token, Recipient: f[fRecipient]}
	var err error
	if rec.OpenCount, err = atoi(f[fOpenCount]); err != nil {
		return nil, fmt.Errorf("decode %s for %s: %w", fOpenCount, token, err)
	}
	if rec.ClickCount, err = atoi(f[fClickCount]); err != nil {
		return nil, fmt.Errorf("decode %s for %s: %w", fClickCount, token, err)
	}
	rec.FirstOpenedAt = parseTime(f[fFirstOpenedAt])
	rec.LastOpenedAt = parseTime(f[fLastOpenedAt])
	rec.FirstClickedAt = parseTime(f[fFirstClickedAt])
	rec.LastClickedAt = parseTime(f[fLastClickedAt])
	rec.LastClient = domain.ClientMetadata{
		IPAddress:  f[fIP],
		UserAgent:  f[fUserAgent],
		DeviceType: f[fDevice],
	}
	if t := parseTime(f[fSeenAt]); t != nil {
		rec.LastClient.SeenAt = *t
	}
	if t := parseTime(f[fUpdatedAt]); t != nil {
		rec.UpdatedAt = *t
	}
	return rec, nil
}

func atoi(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}
