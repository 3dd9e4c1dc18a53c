package events

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog/log"
)

// Redis implements Broker over Redis Pub/Sub so several API replicas see
// each other's planning events.
type Redis struct {
    rdb    *redis.Client
    prefix string

    mu   sync.Mutex
    subs map[chan Event]*redis.PubSub
}

// NewRedis connects to the server at url (redis://...) and checks it.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    rdb := redis.NewClient(opt)
    if err := rdb.Ping(ctx).Err(); err != nil {
        _ = rdb.Close()
        return nil, err
    }
    return NewRedisWithClient(rdb), nil
}

func NewRedisWithClient(rdb *redis.Client) *Redis {
    return &Redis{rdb: rdb, prefix: "cargoplan:", subs: map[chan Event]*redis.PubSub{}}
}

func (b *Redis) Subscribe(topic string) chan Event {
    ch := make(chan Event, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(topic))
    // wait for the subscription confirmation so nothing published after
    // Subscribe returns is missed
    if _, err := ps.Receive(ctx); err != nil {
        log.Warn().Err(err).Str("topic", topic).Msg("redis subscribe")
    }
    msgs := ps.Channel()
    b.mu.Lock()
    b.subs[ch] = ps
    b.mu.Unlock()
    go func() {
        defer close(ch)
        for msg := range msgs {
            var evt Event
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
                log.Warn().Err(err).Str("topic", topic).Msg("drop undecodable event")
                continue
            }
            select { case ch <- evt: default: }
        }
    }()
    return ch
}

// Unsubscribe closes the underlying PubSub; the forwarding goroutine then
// closes ch.
func (b *Redis) Unsubscribe(topic string, ch chan Event) {
    b.mu.Lock()
    ps, ok := b.subs[ch]
    delete(b.subs, ch)
    b.mu.Unlock()
    if ok { _ = ps.Close() }
}

func (b *Redis) Publish(topic string, evt Event) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, err := json.Marshal(evt)
    if err != nil {
        log.Warn().Err(err).Str("type", evt.Type).Msg("encode event")
        return
    }
    if err := b.rdb.Publish(ctx, b.chanName(topic), data).Err(); err != nil {
        log.Warn().Err(err).Str("topic", topic).Msg("redis publish")
    }
}

func (b *Redis) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *Redis) Close() error { return b.rdb.Close() }

func (b *Redis) chanName(topic string) string { return b.prefix + topic }
