// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"

	"github.com/miniaccount/accountd/internal/account"
)

// DefaultQueue is the queue reset messages are published to when none is
// configured.
const DefaultQueue = "accountd.password_reset"

// ResetMessage is the JSON body published for each reset token. A mail
// worker consuming the queue renders and delivers it.
type ResetMessage struct {
	To       string    `json:"to"`
	Username string    `json:"username"`
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issued_at"`
}

// publisher is the part of *amqp.Channel the notifier needs.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes reset tokens to a RabbitMQ queue.
type AMQPNotifier struct {
	pub   publisher
	queue string
	now   func() time.Time

	closers []func() error
}

// NewAMQPNotifier returns a notifier publishing to queue through pub. The
// queue must already exist.
func NewAMQPNotifier(pub publisher, queue string) (*AMQPNotifier, error) {
	if pub == nil {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("amqp publisher is required")
	}
	if strings.TrimSpace(queue) == "" {
		queue = DefaultQueue
	}
	return &AMQPNotifier{pub: pub, queue: queue, now: time.Now}, nil
}

// DialAMQP connects to the broker at url, declares a durable queue and
// returns a notifier that owns the connection.
func DialAMQP(url, queue string) (*AMQPNotifier, error) {
	if strings.TrimSpace(url) == "" {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("amqp url is required")
	}
	if strings.TrimSpace(queue) == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, oops.Code("NOTIFY_CONNECT_FAILED").With("queue", queue).Wrap(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, oops.Code("NOTIFY_CONNECT_FAILED").With("operation", "open channel").Wrap(err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, oops.Code("NOTIFY_CONNECT_FAILED").
			With("operation", "declare queue").
			With("queue", queue).
			Wrap(err)
	}

	n, err := NewAMQPNotifier(ch, queue)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	n.closers = []func() error{ch.Close, conn.Close}
	return n, nil
}

// Queue returns the destination queue name.
func (n *AMQPNotifier) Queue() string {
	return n.queue
}

// Send implements account.EmailNotifier.
func (n *AMQPNotifier) Send(ctx context.Context, toEmail, username, token string) error {
	body, err := json.Marshal(ResetMessage{
		To:       toEmail,
		Username: username,
		Token:    token,
		IssuedAt: n.now().UTC(),
	})
	if err != nil {
		return oops.Code("NOTIFY_ENCODE_FAILED").Wrap(err)
	}

	err = n.pub.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    account.HashResetToken(token)[:32],
		Timestamp:    n.now(),
		Body:         body,
	})
	if err != nil {
		return oops.Code("NOTIFY_PUBLISH_FAILED").
			With("queue", n.queue).
			With("email", account.MaskEmail(toEmail)).
			Wrap(err)
	}
	return nil
}

// Close releases the channel and connection opened by DialAMQP. It is a
// no-op for notifiers built with NewAMQPNotifier.
func (n *AMQPNotifier) Close() error {
	var first error
	for _, closeFn := range n.closers {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	n.closers = nil
	if first != nil {
		return oops.Code("NOTIFY_CLOSE_FAILED").Wrap(first)
	}
	return nil
}

var _ account.EmailNotifier = (*AMQPNotifier)(nil)
