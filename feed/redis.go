package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradebot/market"
)

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr" env:"ADDR"`
	Password string `yaml:"password" json:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" json:"db" env:"DB"`
	Stream   string `yaml:"stream" json:"stream" env:"STREAM"`
	Group    string `yaml:"group" json:"group" env:"GROUP"`
	Consumer string `yaml:"consumer" json:"consumer" env:"CONSUMER"`
}

// Redis consumes candles from a Redis stream through a consumer group. Each
// message carries one JSON candle in its "data" field.
type Redis struct {
	client   *goredis.Client
	stream   string
	group    string
	consumer string
	log      *zap.Logger
}

func NewRedis(ctx context.Context, cfg RedisConfig, log *zap.Logger) (*Redis, error) {
	if cfg.Stream == "" {
		return nil, fmt.Errorf("redis feed: stream is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	group := cfg.Group
	if group == "" {
		group = "tradebot"
	}
	consumer := cfg.Consumer
	if consumer == "" {
		consumer = "worker-1"
	}
	if log == nil {
		log = zap.NewNop()
	}

	log.Info("redis feed connected",
		zap.String("addr", cfg.Addr),
		zap.String("stream", cfg.Stream),
		zap.String("group", group),
		zap.String("consumer", consumer))

	return &Redis{client: client, stream: cfg.Stream, group: group, consumer: consumer, log: log}, nil
}

// EnsureGroup creates the consumer group at the stream tail if it is missing.
func (r *Redis) EnsureGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.stream, r.group, "$").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("xgroup create %s: %w", r.stream, err)
	}
	return nil
}

// Run reads new stream entries until ctx is done and closes out. Malformed
// entries are acknowledged and skipped so they are not redelivered.
func (r *Redis) Run(ctx context.Context, out chan<- market.Candle) error {
	defer close(out)
	if err := r.EnsureGroup(ctx); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		results, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    r.group,
			Consumer: r.consumer,
			Streams:  []string{r.stream, ">"},
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) || ctx.Err() != nil {
				continue
			}
			r.log.Warn("xreadgroup failed", zap.Error(err))
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
			}
			continue
		}

		for _, stream := range results {
			for _, msg := range stream.Messages {
				c, err := decodeMessage(msg.Values)
				if err != nil {
					r.log.Warn("bad candle message", zap.String("id", msg.ID), zap.Error(err))
					r.client.XAck(ctx, stream.Stream, r.group, msg.ID)
					continue
				}
				if err := send(ctx, out, c); err != nil {
					return err
				}
				r.client.XAck(ctx, stream.Stream, r.group, msg.ID)
			}
		}
	}
}

// Publish appends a candle to the stream in the format Run expects.
func (r *Redis) Publish(ctx context.Context, c market.Candle) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{"data": string(data)},
	}).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func decodeMessage(values map[string]interface{}) (market.Candle, error) {
	data, ok := values["data"].(string)
	if !ok {
		return market.Candle{}, fmt.Errorf("missing data field")
	}
	var c market.Candle
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return market.Candle{}, fmt.Errorf("unmarshal candle: %w", err)
	}
	if err := c.Valid(); err != nil {
		return market.Candle{}, err
	}
	return c, nil
}

func isBusyGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}
