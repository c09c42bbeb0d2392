// Package notify consumes resume-from hints. Upstream publishes a message
// when it amends transaction data for an already-processed day; the engine
// treats the hinted date as advisory and recomputes from it when it precedes
// the discovered resume point.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/OlympusDAO/token-holder-balances/pkg/date"
)

// hintPayload is the structured form of a hint message. StartDate absent or
// malformed means the message carries no usable hint.
type hintPayload struct {
	StartDate string `json:"startDate"`
}

// Opts configures a HintConsumer.
type Opts struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
	Consumer string
}

// streamClient is the slice of the redis client the hint drain needs.
type streamClient interface {
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// HintConsumer reads hint messages from a Redis stream using a consumer
// group, acknowledging every message it manages to parse (and malformed ones,
// so they are not redelivered forever).
type HintConsumer struct {
	client *redis.Client
	reader streamClient
	stream string
	group  string
	name   string
	logger *zap.Logger
}

// NewHintConsumer connects to Redis and ensures the consumer group exists.
func NewHintConsumer(ctx context.Context, logger *zap.Logger, o Opts) (*HintConsumer, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", o.Addr, err)
	}

	c := &HintConsumer{
		client: client,
		reader: client,
		stream: o.Stream,
		group:  o.Group,
		name:   o.Consumer,
		logger: logger,
	}
	if err := c.ensureGroup(ctx); err != nil {
		client.Close()
		return nil, err
	}
	logger.Info("hint consumer ready",
		zap.String("addr", o.Addr),
		zap.String("stream", o.Stream),
		zap.String("group", o.Group))
	return c, nil
}

func (c *HintConsumer) Close() error {
	return c.client.Close()
}

func (c *HintConsumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", c.group, c.stream, err)
	}
	return nil
}

// PullHint drains hint messages without blocking and returns the earliest
// valid hinted day. ok is false when no message carried a usable hint.
// Messages delivered to this consumer but left unacked by a crashed process
// are replayed first (cursor "0" walks the pending entries list), then
// never-delivered entries (">"). Errors reading the stream are returned; the
// caller decides whether to run without a hint.
func (c *HintConsumer) PullHint(ctx context.Context) (hint date.Day, ok bool, err error) {
	for _, cursor := range []string{"0", ">"} {
		for {
			streams, readErr := c.reader.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    c.group,
				Consumer: c.name,
				Streams:  []string{c.stream, cursor},
				Count:    100,
				Block:    -1, // non-blocking
			}).Result()
			if errors.Is(readErr, redis.Nil) {
				break
			}
			if readErr != nil {
				return date.Day{}, false, fmt.Errorf("read hints from %s: %w", c.stream, readErr)
			}

			empty := true
			for _, stream := range streams {
				for _, msg := range stream.Messages {
					empty = false
					day, parseErr := parseHint(msg.Values)
					if parseErr != nil {
						c.logger.Warn("dropping malformed hint message",
							zap.String("id", msg.ID),
							zap.Error(parseErr))
					} else if !ok || day.Before(hint) {
						hint = day
						ok = true
					}
					// Ack regardless: a malformed hint never becomes valid.
					if ackErr := c.reader.XAck(ctx, c.stream, c.group, msg.ID).Err(); ackErr != nil {
						c.logger.Warn("failed to ack hint message",
							zap.String("id", msg.ID),
							zap.Error(ackErr))
					}
				}
			}
			if empty {
				break
			}
		}
	}
	return hint, ok, nil
}

// parseHint extracts the hinted day from a stream entry. The payload sits in
// the "data" field as a JSON document {"startDate": "YYYY-MM-DD"}.
func parseHint(values map[string]interface{}) (date.Day, error) {
	raw, found := values["data"]
	if !found {
		return date.Day{}, errors.New("no data field")
	}
	s, isString := raw.(string)
	if !isString {
		return date.Day{}, fmt.Errorf("data field is %T, not string", raw)
	}

	var payload hintPayload
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return date.Day{}, fmt.Errorf("decode hint payload: %w", err)
	}
	if payload.StartDate == "" {
		return date.Day{}, errors.New("hint payload has no startDate")
	}
	return date.Parse(payload.StartDate)
}
