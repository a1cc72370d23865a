package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// SavedNotice announces that a novel's snapshot was persisted.
type SavedNotice struct {
	NovelID  string    `json:"novel_id"`
	Title    string    `json:"title,omitempty"`
	Revision int64     `json:"revision"`
	Nodes    int       `json:"nodes"`
	Edges    int       `json:"edges"`
	SavedAt  time.Time `json:"saved_at"`
}

// SavedTopic returns the topic save notices of a novel are published on.
func SavedTopic(prefix, novelID string) string {
	return fmt.Sprintf("%s/novels/%s/saved", strings.TrimSuffix(prefix, "/"), novelID)
}

// Publisher sends save notices for other tools to pick up.
type Publisher struct {
	client *Client
	prefix string
}

// NewPublisher creates a publisher on an already started client.
func NewPublisher(client *Client, prefix string) *Publisher {
	return &Publisher{client: client, prefix: prefix}
}

// NotifySaved publishes a retained save notice.
func (p *Publisher) NotifySaved(ctx context.Context, n SavedNotice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal save notice: %w", err)
	}
	return p.client.Publish(SavedTopic(p.prefix, n.NovelID), b, true)
}

// WatchSaves subscribes to the save notices of every novel under prefix.
// Messages that do not decode are logged and dropped.
func (c *Client) WatchSaves(prefix string, fn func(SavedNotice)) error {
	topic := SavedTopic(prefix, "+")
	return c.Subscribe(topic, func(_ paho.Client, msg paho.Message) {
		var n SavedNotice
		if err := json.Unmarshal(msg.Payload(), &n); err != nil {
			c.logger.Warn("dropping malformed save notice", "topic", msg.Topic(), "error", err)
			return
		}
		fn(n)
	})
}
