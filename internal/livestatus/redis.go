package livestatus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/recital-program/internal/model"
)

// RedisStore keeps each document in a Redis hash keyed by its Path and
// pushes every change over a pub/sub channel.  A merge writes the given
// fields, reads the resulting document and publishes it in one script, so
// subscribers see documents in the order writes were applied.
type RedisStore struct {
	rdb *redis.Client
	log *log.Logger
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client, logger *log.Logger) *RedisStore {
	if logger == nil {
		logger = log.Default()
	}
	return &RedisStore{rdb: rdb, log: logger}
}

const (
	fieldActNumber = "currentActNumber"
	fieldTracking  = "isTracking"
)

var mergeScript = redis.NewScript(`
	local key = KEYS[1]
	local channel = ARGV[1]
	for i = 2, #ARGV, 2 do
		redis.call('HSET', key, ARGV[i], ARGV[i + 1])
	end
	local n = redis.call('HGET', key, 'currentActNumber')
	local t = redis.call('HGET', key, 'isTracking')
	local msg = '{"exists":true'
	if n then
		msg = msg .. ',"currentActNumber":' .. n
	end
	if t then
		if t == '1' then
			msg = msg .. ',"isTracking":true'
		else
			msg = msg .. ',"isTracking":false'
		end
	end
	msg = msg .. '}'
	redis.call('PUBLISH', channel, msg)
	return msg
`)

func channelFor(path Path) string { return "livestatus:" + string(path) }

// wireDoc is the payload published by mergeScript.
type wireDoc struct {
	Exists           bool  `json:"exists"`
	CurrentActNumber *int  `json:"currentActNumber"`
	IsTracking       *bool `json:"isTracking"`
}

func (w wireDoc) snapshot() Snapshot {
	if !w.Exists {
		return Snapshot{Status: model.DefaultLiveStatus}
	}
	s := Snapshot{Exists: true, Status: model.DefaultLiveStatus}
	if w.CurrentActNumber != nil {
		s.Status.CurrentActNumber = *w.CurrentActNumber
	}
	if w.IsTracking != nil {
		s.Status.IsTracking = *w.IsTracking
	}
	return s
}

// Merge writes the non-nil fields of patch.
func (s *RedisStore) Merge(ctx context.Context, path Path, patch Patch) error {
	args := []any{channelFor(path)}
	if patch.CurrentActNumber != nil {
		args = append(args, fieldActNumber, strconv.Itoa(*patch.CurrentActNumber))
	}
	if patch.IsTracking != nil {
		v := "0"
		if *patch.IsTracking {
			v = "1"
		}
		args = append(args, fieldTracking, v)
	}
	return mergeScript.Run(ctx, s.rdb, []string{string(path)}, args...).Err()
}

// Get reads the document once.
func (s *RedisStore) Get(ctx context.Context, path Path) (Snapshot, error) {
	fields, err := s.rdb.HGetAll(ctx, string(path)).Result()
	if err != nil {
		return Snapshot{}, err
	}
	if len(fields) == 0 {
		return Snapshot{Status: model.DefaultLiveStatus}, nil
	}
	w := wireDoc{Exists: true}
	if v, ok := fields[fieldActNumber]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Snapshot{}, fmt.Errorf("livestatus: bad %s %q", fieldActNumber, v)
		}
		w.CurrentActNumber = &n
	}
	if v, ok := fields[fieldTracking]; ok {
		b := v == "1" || v == "true"
		w.IsTracking = &b
	}
	return w.snapshot(), nil
}

// Subscribe opens the pub/sub channel first and then reads the current
// document, so no write between the two is missed.
func (s *RedisStore) Subscribe(ctx context.Context, path Path, onNext func(Snapshot), onErr func(error)) (Subscription, error) {
	ps := s.rdb.Subscribe(ctx, channelFor(path))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	initial, err := s.Get(ctx, path)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &redisSub{ps: ps, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		onNext(initial)
		for {
			msg, err := ps.ReceiveMessage(subCtx)
			if err != nil {
				if sub.closed.Load() || subCtx.Err() != nil {
					return
				}
				if onErr != nil {
					onErr(err)
				}
				return
			}
			var w wireDoc
			if err := json.Unmarshal([]byte(msg.Payload), &w); err != nil {
				s.log.Warn("live status payload ignored", "path", path, "err", err)
				continue
			}
			onNext(w.snapshot())
		}
	}()
	return sub, nil
}

type redisSub struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
	err    error
}

func (r *redisSub) Close() error {
	r.once.Do(func() {
		r.closed.Store(true)
		r.cancel()
		r.err = r.ps.Close()
	})
	<-r.done
	return r.err
}
