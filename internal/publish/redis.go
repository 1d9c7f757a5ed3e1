// Package publish forwards successful nobreak snapshots to a Redis pub/sub
// channel. Nothing is written to keys; subscribers that are not connected
// when a snapshot is published never see it.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jamesprial/nobreak-mcp/internal/config"
	"github.com/jamesprial/nobreak-mcp/internal/coordinator"
	"github.com/jamesprial/nobreak-mcp/internal/nobreak"
)

const (
	queueSize      = 16
	publishTimeout = time.Second
)

// Publisher is the subset of *redis.Client used here.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Message is the JSON payload published for each snapshot.
type Message struct {
	At        time.Time      `json:"at"`
	OnBattery bool           `json:"on_battery"`
	Status    nobreak.Status `json:"status"`
}

var _ coordinator.Observer = (*RedisPublisher)(nil)

// RedisPublisher is a coordinator observer. OnUpdate only enqueues, so a slow
// Redis never holds up the poll loop; when the queue is full the snapshot is
// dropped.
type RedisPublisher struct {
	client  Publisher
	channel string

	queue chan []byte
	wg    sync.WaitGroup
	once  sync.Once

	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewRedisPublisher starts the publishing worker. Call Close to stop it.
func NewRedisPublisher(client Publisher, channel string) *RedisPublisher {
	if channel == "" {
		channel = config.DefaultRedisChannel
	}
	p := &RedisPublisher{
		client:  client,
		channel: channel,
		queue:   make(chan []byte, queueSize),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Dial connects to Redis, verifies the connection and returns a publisher
// over it. The returned close function stops the worker and the client.
func Dial(ctx context.Context, cfg config.RedisConfig) (*RedisPublisher, func() error, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("publish: ping redis at %s: %w", cfg.Addr, err)
	}
	p := NewRedisPublisher(client, cfg.Channel)
	return p, func() error {
		p.Close()
		return client.Close()
	}, nil
}

// Channel returns the pub/sub channel name.
func (p *RedisPublisher) Channel() string { return p.channel }

// OnUpdate implements coordinator.Observer. Failed polls are not published.
func (p *RedisPublisher) OnUpdate(u coordinator.Update) {
	if !u.OK() {
		return
	}
	data, err := json.Marshal(Message{At: u.At, OnBattery: u.Status.OnBattery(), Status: *u.Status})
	if err != nil {
		p.failed.Add(1)
		return
	}
	select {
	case p.queue <- data:
	default:
		p.dropped.Add(1)
	}
}

func (p *RedisPublisher) run() {
	defer p.wg.Done()
	for data := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := p.client.Publish(ctx, p.channel, data).Err()
		cancel()
		if err != nil {
			if p.failed.Add(1) == 1 {
				log.Printf("publish: redis publish to %q failed: %v", p.channel, err)
			}
			continue
		}
		p.published.Add(1)
	}
}

// Close drains the queue and stops the worker. OnUpdate must not be called
// afterwards; unsubscribe first.
func (p *RedisPublisher) Close() {
	p.once.Do(func() {
		close(p.queue)
		p.wg.Wait()
	})
}

// Counts reports published, dropped and failed snapshots.
func (p *RedisPublisher) Counts() (published, dropped, failed int64) {
	return p.published.Load(), p.dropped.Load(), p.failed.Load()
}
