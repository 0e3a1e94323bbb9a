package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Notifier publishes ledger events after the owning transaction commits.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Client enqueues events as asynq tasks.
type Client struct {
	client *asynq.Client
}

func NewClient(redisAddr string) *Client {
	return &Client{client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

// NewTask encodes ev as an asynq task named after its type.
func NewTask(ev Event) (*asynq.Task, error) {
	if ev.Type == "" {
		return nil, fmt.Errorf("event type is required")
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return asynq.NewTask(ev.Type, b), nil
}

func (c *Client) Notify(ctx context.Context, ev Event) error {
	task, err := NewTask(ev)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(Queue))
	return err
}

func (c *Client) Close() error {
	return c.client.Close()
}
