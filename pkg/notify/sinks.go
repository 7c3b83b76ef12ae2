package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// ── Redis stream ────────────────────────────────────────────

type RedisDispatcher struct {
	client redis.Cmdable
	stream string
}

func NewRedisDispatcher(client redis.Cmdable, stream string) *RedisDispatcher {
	return &RedisDispatcher{client: client, stream: stream}
}

// DialRedis parses a redis:// URL and pings the server.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (r *RedisDispatcher) Dispatch(ctx context.Context, a Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: []interface{}{"id", a.ID, "tx", a.TxHash, "payload", string(payload)},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}

// ── NATS ────────────────────────────────────────────────────

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type NATSDispatcher struct {
	pub     Publisher
	subject string
}

func NewNATSDispatcher(pub Publisher, subject string) *NATSDispatcher {
	return &NATSDispatcher{pub: pub, subject: subject}
}

func DialNATS(url string) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1), nats.Name("whale-tracker"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return conn, nil
}

func (n *NATSDispatcher) Dispatch(_ context.Context, a Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	if err := n.pub.Publish(n.subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	return nil
}

// ── Webhook ─────────────────────────────────────────────────
// Posts {chatId, type, data} to a notification relay.

type WebhookDispatcher struct {
	url    string
	chatID string
	client *http.Client
}

func NewWebhookDispatcher(url, chatID string) *WebhookDispatcher {
	return &WebhookDispatcher{url: url, chatID: chatID, client: &http.Client{Timeout: 10 * time.Second}}
}

type webhookData struct {
	Address string  `json:"address"`
	Type    string  `json:"type"`
	Amount  float64 `json:"amount"`
	Token   string  `json:"token"`
	TxHash  string  `json:"txHash"`
}

type webhookBody struct {
	ChatID string      `json:"chatId"`
	Type   string      `json:"type"`
	Data   webhookData `json:"data"`
}

func (w *WebhookDispatcher) Dispatch(ctx context.Context, a Alert) error {
	body, _ := json.Marshal(webhookBody{
		ChatID: w.chatID,
		Type:   a.Kind,
		Data: webhookData{
			Address: a.Address,
			Type:    a.Type,
			Amount:  a.Amount.InexactFloat64(),
			Token:   a.Token,
			TxHash:  a.TxHash,
		},
	})

	req, err := http.NewRequestWithContext(ctx, "POST", w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d from webhook", resp.StatusCode)
	}
	return nil
}
