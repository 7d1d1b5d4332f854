package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bobarin/codereel/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	DefaultPrepQueue   = "queue:prep"
	DefaultRenderQueue = "queue:render"

	TypePrep   = "prep"
	TypeRender = "render"
)

// Queue is a reliable Redis list queue. Dequeue atomically moves a message
// onto a per-queue processing list; it stays there until Ack, so a consumer
// that dies mid-message leaves it recoverable instead of lost.
type Queue struct {
	client *redis.Client
	prep   string
	render string
}

// Message is one queued envelope. Body holds the typed payload.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Body      json.RawMessage `json:"body"`
	CreatedAt time.Time       `json:"created_at"`

	queue string
	raw   string
}

// NewMessage wraps body in an envelope addressed to queueName.
func NewMessage(queueName, msgType string, body any) (*Message, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s body: %w", msgType, err)
	}
	msg := &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Body:      payload,
		CreatedAt: time.Now().UTC(),
		queue:     queueName,
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	msg.raw = string(raw)
	return msg, nil
}

// Decode unmarshals the message body into v.
func (m *Message) Decode(v any) error {
	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("failed to decode %s message %s: %w", m.Type, m.ID, err)
	}
	return nil
}

// Queue returns the name of the queue the message was read from.
func (m *Message) Queue() string { return m.queue }

func processingList(queueName string) string { return queueName + ":processing" }

func New(redisURL, prepQueue, renderQueue string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if prepQueue == "" {
		prepQueue = DefaultPrepQueue
	}
	if renderQueue == "" {
		renderQueue = DefaultRenderQueue
	}
	return &Queue{client: client, prep: prepQueue, render: renderQueue}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue pushes msg onto the head of its queue; consumers pop the tail.
func (q *Queue) Enqueue(ctx context.Context, msg *Message) error {
	if err := q.client.LPush(ctx, msg.queue, msg.raw).Err(); err != nil {
		return fmt.Errorf("failed to enqueue %s message: %w", msg.Type, err)
	}
	return nil
}

func (q *Queue) EnqueuePrep(ctx context.Context, body models.PrepMessage) error {
	msg, err := NewMessage(q.prep, TypePrep, body)
	if err != nil {
		return err
	}
	return q.Enqueue(ctx, msg)
}

func (q *Queue) EnqueueRender(ctx context.Context, body models.RenderMessage) error {
	msg, err := NewMessage(q.render, TypeRender, body)
	if err != nil {
		return err
	}
	return q.Enqueue(ctx, msg)
}

// Dequeue waits up to timeout for a message. It returns nil, nil when none
// arrived.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Message, error) {
	raw, err := q.client.BRPopLPush(ctx, queueName, processingList(queueName), timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		// Unreadable entries would be recovered forever; drop them here.
		q.client.LRem(ctx, processingList(queueName), 1, raw)
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	msg.queue = queueName
	msg.raw = raw
	return &msg, nil
}

func (q *Queue) DequeuePrep(ctx context.Context, timeout time.Duration) (*Message, error) {
	return q.Dequeue(ctx, q.prep, timeout)
}

// Ack removes a delivered message from its processing list.
func (q *Queue) Ack(ctx context.Context, msg *Message) error {
	if err := q.client.LRem(ctx, processingList(msg.queue), 1, msg.raw).Err(); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", msg.ID, err)
	}
	return nil
}

// Recover moves every unacknowledged message of queueName back onto the
// queue and reports how many moved. Call it before consumers start: it
// assumes no other consumer is mid-message.
func (q *Queue) Recover(ctx context.Context, queueName string) (int, error) {
	moved := 0
	for {
		err := q.client.RPopLPush(ctx, processingList(queueName), queueName).Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("failed to recover %s: %w", queueName, err)
		}
		moved++
	}
}

func (q *Queue) RecoverPrep(ctx context.Context) (int, error) {
	return q.Recover(ctx, q.prep)
}

// Len counts messages waiting on queueName, excluding ones being processed.
func (q *Queue) Len(ctx context.Context, queueName string) (int64, error) {
	n, err := q.client.LLen(ctx, queueName).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read length of %s: %w", queueName, err)
	}
	return n, nil
}

func (q *Queue) PrepBacklog(ctx context.Context) (int64, error) {
	return q.Len(ctx, q.prep)
}
