package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Presence tracks who is in which document room. A member stays alive until its ttl runs out;
// joining again refreshes it.
type Presence interface {
	AddMember(ctx context.Context, docID string, m Member, ttl time.Duration) error
	RemoveMember(ctx context.Context, docID, userID string) error
	AliveMembers(ctx context.Context, docID string) ([]Member, error)
	Rooms(ctx context.Context) ([]string, error)
}

type Member struct {
	UserID string
	Name   string
}

type redisPresence struct {
	rdb redis.UniversalClient
	now func() time.Time
}

type PresenceOption func(*redisPresence)

// WithNow replaces the clock used for expiry scores.
func WithNow(now func() time.Time) PresenceOption {
	return func(p *redisPresence) { p.now = now }
}

func NewRedisPresence(rdb redis.UniversalClient, opts ...PresenceOption) Presence {
	p := &redisPresence{rdb: rdb, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *redisPresence) AddMember(ctx context.Context, docID string, m Member, ttl time.Duration) error {
	// score is the logical expiry, unix seconds
	expireAt := p.now().Add(ttl).Unix()
	tx := p.rdb.TxPipeline()
	tx.ZAdd(ctx, roomKey(docID), redis.Z{Score: float64(expireAt), Member: m.UserID})
	tx.HSet(ctx, namesKey(docID), m.UserID, m.Name)
	if _, err := tx.Exec(ctx); err != nil {
		return err
	}
	return p.rdb.SAdd(ctx, docsKey(), docID).Err()
}

func (p *redisPresence) RemoveMember(ctx context.Context, docID, userID string) error {
	tx := p.rdb.TxPipeline()
	tx.ZRem(ctx, roomKey(docID), userID)
	tx.HDel(ctx, namesKey(docID), userID)
	left := tx.ZCard(ctx, roomKey(docID))
	if _, err := tx.Exec(ctx); err != nil {
		return err
	}
	if left.Val() == 0 {
		return p.rdb.SRem(ctx, docsKey(), docID).Err()
	}
	return nil
}

func (p *redisPresence) Rooms(ctx context.Context) ([]string, error) {
	return p.rdb.SMembers(ctx, docsKey()).Result()
}

// KEYS[1] = roomKey, KEYS[2] = namesKey, ARGV[1] = now (unix seconds)
var expireScript = redis.NewScript(`
local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
if #expired > 0 then
	redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	redis.call("HDEL", KEYS[2], unpack(expired))
end
return #expired
`)

// AliveMembers drops expired members and returns the rest with their names.
func (p *redisPresence) AliveMembers(ctx context.Context, docID string) ([]Member, error) {
	now := p.now().Unix()
	err := expireScript.Run(ctx, p.rdb, []string{roomKey(docID), namesKey(docID)}, now).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	ids, err := p.rdb.ZRangeByScore(ctx, roomKey(docID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10),
		Max: "+inf",
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	names, err := p.rdb.HMGet(ctx, namesKey(docID), ids...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	members := make([]Member, 0, len(ids))
	for i, id := range ids {
		name := ""
		if i < len(names) && names[i] != nil {
			name, _ = names[i].(string)
		}
		members = append(members, Member{UserID: id, Name: name})
	}
	return members, nil
}
