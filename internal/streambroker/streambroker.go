// Package streambroker implements the consumer-group client over the
// message-broker stream described in spec sections 4.2 and 6: a single
// consumer group reads previously-delivered-but-unacknowledged messages
// first, then new messages with a short blocking wait, and acknowledges by
// id once the group that carried them has been archived or skipped as a
// recent duplicate.
package streambroker

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mnemosyne/brain/internal/model"
)

// StreamKey and Group are fixed by spec section 6.
const (
	StreamKey = "mnemosyne:events"
	Group     = "mnemosyne_brain_group"

	newReadBlock = 2 * time.Second
)

// Message is one stream entry: a broker-assigned id plus the string-valued
// field map the capture agent produces (session_uuid, unix_time,
// process_name, window_title, window_hwnd, input_idle, intensity, and any
// optional fields).
type Message struct {
	ID     string
	Fields map[string]string
}

// Broker is the stream consumer-group client.
type Broker struct {
	client       *redis.Client
	consumerName string
}

// Connect dials the broker at host:port/db and derives a consumer name
// that stays stable for the life of the process and across restarts on the
// same host (spec section 9, "consumer name stability"): brain-<hostname>.
func Connect(ctx context.Context, host string, port int, db int) (*Broker, error) {
	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", host, port),
		DB:   db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("streambroker: ping: %w", err)
	}

	hostname, _ := os.Hostname()
	consumer := fmt.Sprintf("brain-%s", hostname)

	b := &Broker{client: client, consumerName: consumer}
	if err := b.ensureGroup(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return b, nil
}

// Close releases the underlying connection.
func (b *Broker) Close() error {
	return b.client.Close()
}

func (b *Broker) ensureGroup(ctx context.Context) error {
	err := b.client.XGroupCreateMkStream(ctx, StreamKey, Group, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("streambroker: ensure group: %w", err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && (err.Error() == "BUSYGROUP Consumer Group name already exists" ||
		len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP")
}

// ReadBatch reads up to count messages: pending-first (previously
// delivered to this consumer but never acked), then, if none are
// outstanding, new messages with a 2-second blocking wait (spec section
// 4.2).
func (b *Broker) ReadBatch(ctx context.Context, count int) ([]Message, error) {
	pending, err := b.readPending(ctx, count)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		return pending, nil
	}
	return b.readNew(ctx, count)
}

func (b *Broker) readPending(ctx context.Context, count int) ([]Message, error) {
	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    Group,
		Consumer: b.consumerName,
		Streams:  []string{StreamKey, "0"},
		Count:    int64(count),
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("streambroker: read pending: %w", err)
	}
	return toMessages(res), nil
}

func (b *Broker) readNew(ctx context.Context, count int) ([]Message, error) {
	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    Group,
		Consumer: b.consumerName,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(count),
		Block:    newReadBlock,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("streambroker: read new: %w", err)
	}
	return toMessages(res), nil
}

func toMessages(res []redis.XStream) []Message {
	var out []Message
	for _, stream := range res {
		for _, entry := range stream.Messages {
			fields := make(map[string]string, len(entry.Values))
			for k, v := range entry.Values {
				if s, ok := v.(string); ok {
					fields[k] = s
				} else {
					fields[k] = fmt.Sprintf("%v", v)
				}
			}
			out = append(out, Message{ID: entry.ID, Fields: fields})
		}
	}
	return out
}

// Ack acknowledges a batch of message ids. The orchestrator issues it after
// the group that carried them has been successfully archived, or when it
// skips the group as a recent duplicate (spec section 5).
func (b *Broker) Ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := b.client.XAck(ctx, StreamKey, Group, ids...).Err(); err != nil {
		return fmt.Errorf("streambroker: ack: %w", err)
	}
	return nil
}

// ToEvent converts a raw stream message into a transient Event, defaulting
// missing optional fields per spec section 7 "Data shape" (never raise;
// default to "unknown" or zero).
func (m Message) ToEvent() model.Event {
	e := model.Event{
		SessionUUID: m.Fields["session_uuid"],
		ProcessName: orUnknown(m.Fields["process_name"]),
		WindowTitle: orUnknown(m.Fields["window_title"]),
	}

	if v, ok := m.Fields["unix_time"]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			e.UnixTime = n
		}
	}
	if v, ok := m.Fields["input_idle"]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			e.InputIdleMS = n
		}
	}
	if v, ok := m.Fields["intensity"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			e.InputIntensity = n
		}
	}
	if v, ok := m.Fields["window_hwnd"]; ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			e.WindowHandle = &n
		}
	}
	return e
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
