package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/domain"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var _ core.CallStore = (*Redis)(nil)

const (
	eventCall    = "call"
	eventDeleted = "deleted"
	eventCandPfx = "cand:"
)

// Redis stores call records as JSON strings and candidates as lists.
// Changes are announced on a per-call pub/sub channel; watchers re-read the
// keys on each notification, so a missed message only delays delivery until
// the next one.
//
// Records written with a ttl expire without any notification, so while a ttl
// is set watchers also poll for the record every expiryCheck and report an
// expired call as deleted.
type Redis struct {
	rdb         *redis.Client
	prefix      string
	ttl         time.Duration
	expiryCheck time.Duration
	logger      zerolog.Logger
}

const defaultExpiryCheck = 15 * time.Second

// NewRedis wraps an existing client. A zero ttl keeps records until deleted.
func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{
		rdb:         rdb,
		prefix:      prefix,
		ttl:         ttl,
		expiryCheck: defaultExpiryCheck,
		logger:      log.With().Str("module", "store.redis").Logger(),
	}
}

// SetExpiryCheck sets how often watchers look for an expired record.
func (r *Redis) SetExpiryCheck(d time.Duration) {
	if d > 0 {
		r.expiryCheck = d
	}
}

// expiryTicks is nil when records never expire.
func (r *Redis) expiryTicks() (<-chan time.Time, func()) {
	if r.ttl <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(r.expiryCheck)
	return t.C, t.Stop
}

func (r *Redis) expired(ctx context.Context, id domain.CallID) bool {
	n, err := r.rdb.Exists(ctx, r.callKey(id)).Result()
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn().Err(err).Str("call_id", string(id)).Msg("expiry check")
		}
		return false
	}
	return n == 0
}

func (r *Redis) callKey(id domain.CallID) string { return r.prefix + "calls:" + string(id) }

func (r *Redis) candKey(id domain.CallID, side domain.CandidateSide) string {
	return r.prefix + "calls:" + string(id) + ":" + string(side)
}

func (r *Redis) eventsChannel(id domain.CallID) string { return r.prefix + "events:" + string(id) }

func (r *Redis) CreateCall(ctx context.Context, call domain.Call) error {
	b, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("marshal call: %w", err)
	}
	ok, err := r.rdb.SetNX(ctx, r.callKey(call.ID), b, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("create %s: %w", call.ID, err)
	}
	if !ok {
		return fmt.Errorf("create %s: %w", call.ID, domain.ErrCallExists)
	}
	r.logger.Info().Str("call_id", string(call.ID)).Msg("call created")
	return nil
}

func (r *Redis) GetCall(ctx context.Context, id domain.CallID) (*domain.Call, error) {
	return r.readCall(ctx, r.rdb, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *Redis) readCall(ctx context.Context, g getter, id domain.CallID) (*domain.Call, error) {
	b, err := g.Get(ctx, r.callKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get %s: %w", id, domain.ErrCallNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	var call domain.Call
	if err := json.Unmarshal(b, &call); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return &call, nil
}

// updateCall runs mutate inside an optimistic WATCH/MULTI transaction and
// announces the change.
func (r *Redis) updateCall(ctx context.Context, id domain.CallID, mutate func(*domain.Call) error) error {
	key := r.callKey(id)
	txf := func(tx *redis.Tx) error {
		call, err := r.readCall(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := mutate(call); err != nil {
			return err
		}
		b, err := json.Marshal(call)
		if err != nil {
			return fmt.Errorf("marshal call: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, redis.KeepTTL)
			pipe.Publish(ctx, r.eventsChannel(id), eventCall)
			return nil
		})
		return err
	}
	for range 5 {
		err := r.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %s: %w", id, redis.TxFailedErr)
}

func (r *Redis) SetOffer(ctx context.Context, id domain.CallID, offer domain.Offer) error {
	return r.updateCall(ctx, id, func(c *domain.Call) error {
		c.Offer = &offer
		return nil
	})
}

func (r *Redis) SetAnswer(ctx context.Context, id domain.CallID, answer domain.SessionDescription) error {
	return r.updateCall(ctx, id, func(c *domain.Call) error {
		if c.Answer != nil {
			return fmt.Errorf("set answer %s: %w", id, domain.ErrAlreadyAnswered)
		}
		c.Answer = &answer
		return nil
	})
}

func (r *Redis) DeleteCall(ctx context.Context, id domain.CallID) error {
	n, err := r.rdb.Del(ctx,
		r.callKey(id),
		r.candKey(id, domain.OfferCandidates),
		r.candKey(id, domain.AnswerCandidates),
	).Result()
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s: %w", id, domain.ErrCallNotFound)
	}
	if err := r.rdb.Publish(ctx, r.eventsChannel(id), eventDeleted).Err(); err != nil {
		r.logger.Warn().Err(err).Str("call_id", string(id)).Msg("publish delete")
	}
	r.logger.Info().Str("call_id", string(id)).Msg("call deleted")
	return nil
}

// addCandidateScript appends to a candidate list only while the call record
// exists. It never touches the record key, so it cannot conflict with the
// WATCH transactions in updateCall.
// KEYS: call record, candidate list. ARGV: candidate JSON, list ttl in ms.
var addCandidateScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("RPUSH", KEYS[2], ARGV[1])
local ttl = tonumber(ARGV[2])
if ttl > 0 then
	redis.call("PEXPIRE", KEYS[2], ttl)
end
return 1
`)

func (r *Redis) AddCandidate(ctx context.Context, id domain.CallID, side domain.CandidateSide, c domain.Candidate) error {
	if !side.Valid() {
		return domain.ErrInvalidSide
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal candidate: %w", err)
	}
	keys := []string{r.callKey(id), r.candKey(id, side)}
	ok, err := addCandidateScript.Run(ctx, r.rdb, keys, string(b), r.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("add candidate %s: %w", id, err)
	}
	if ok == 0 {
		return fmt.Errorf("add candidate %s: %w", id, domain.ErrCallNotFound)
	}
	if err := r.rdb.Publish(ctx, r.eventsChannel(id), eventCandPfx+string(side)).Err(); err != nil {
		r.logger.Warn().Err(err).Str("call_id", string(id)).Msg("publish candidate")
	}
	return nil
}

func (r *Redis) Candidates(ctx context.Context, id domain.CallID, side domain.CandidateSide) ([]domain.Candidate, error) {
	if !side.Valid() {
		return nil, domain.ErrInvalidSide
	}
	n, err := r.rdb.Exists(ctx, r.callKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("candidates %s: %w", id, domain.ErrCallNotFound)
	}
	return r.candidatesFrom(ctx, id, side, 0)
}

func (r *Redis) candidatesFrom(ctx context.Context, id domain.CallID, side domain.CandidateSide, start int64) ([]domain.Candidate, error) {
	raw, err := r.rdb.LRange(ctx, r.candKey(id, side), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("candidates %s: %w", id, err)
	}
	out := make([]domain.Candidate, 0, len(raw))
	for _, s := range raw {
		var c domain.Candidate
		if err := json.Unmarshal([]byte(s), &c); err != nil {
			return nil, fmt.Errorf("decode candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// subscribe opens the events channel before any read so no change between
// the initial read and the subscription is lost.
func (r *Redis) subscribe(ctx context.Context, id domain.CallID) (*redis.PubSub, error) {
	ps := r.rdb.Subscribe(ctx, r.eventsChannel(id))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", id, err)
	}
	return ps, nil
}

func (r *Redis) WatchCall(ctx context.Context, id domain.CallID) (<-chan domain.CallEvent, error) {
	ps, err := r.subscribe(ctx, id)
	if err != nil {
		return nil, err
	}
	call, err := r.GetCall(ctx, id)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan domain.CallEvent)
	go func() {
		defer close(out)
		defer ps.Close()

		send := func(ev domain.CallEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !send(domain.CallEvent{Call: call}) {
			return
		}
		ticks, stop := r.expiryTicks()
		defer stop()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticks:
				if r.expired(ctx, id) {
					r.logger.Info().Str("call_id", string(id)).Msg("call expired")
					send(domain.CallEvent{Deleted: true})
					return
				}
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				switch msg.Payload {
				case eventDeleted:
					send(domain.CallEvent{Deleted: true})
					return
				case eventCall:
					call, err := r.GetCall(ctx, id)
					if errors.Is(err, domain.ErrCallNotFound) {
						send(domain.CallEvent{Deleted: true})
						return
					}
					if err != nil {
						r.logger.Error().Err(err).Str("call_id", string(id)).Msg("watch read")
						continue
					}
					if !send(domain.CallEvent{Call: call}) {
						return
					}
				}
			}
		}
	}()
	return out, nil
}

func (r *Redis) WatchCandidates(ctx context.Context, id domain.CallID, side domain.CandidateSide) (<-chan domain.Candidate, error) {
	if !side.Valid() {
		return nil, domain.ErrInvalidSide
	}
	ps, err := r.subscribe(ctx, id)
	if err != nil {
		return nil, err
	}
	n, err := r.rdb.Exists(ctx, r.callKey(id)).Result()
	if err == nil && n == 0 {
		err = fmt.Errorf("watch candidates %s: %w", id, domain.ErrCallNotFound)
	}
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan domain.Candidate)
	go func() {
		defer close(out)
		defer ps.Close()

		var seen int64
		drain := func() bool {
			cands, err := r.candidatesFrom(ctx, id, side, seen)
			if err != nil {
				r.logger.Error().Err(err).Str("call_id", string(id)).Msg("watch candidates read")
				return ctx.Err() == nil
			}
			for _, c := range cands {
				select {
				case out <- c:
					seen++
				case <-ctx.Done():
					return false
				}
			}
			return true
		}
		if !drain() {
			return
		}
		ticks, stop := r.expiryTicks()
		defer stop()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticks:
				if r.expired(ctx, id) {
					return
				}
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				switch {
				case msg.Payload == eventDeleted:
					return
				case msg.Payload == eventCandPfx+string(side):
					if !drain() {
						return
					}
				}
			}
		}
	}()
	return out, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
