package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Message is one rendered notification.
type Message struct {
	Kind    string `json:"kind"`
	To      string `json:"to,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	// Ref is the order number or contact subject the message is about.
	Ref string `json:"ref,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTPSender delivers plain-text mail. Auth is only attempted when a
// username is configured, which keeps local relays such as MailHog working.
type SMTPSender struct {
	addr     string
	from     string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	s := &SMTPSender{
		addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		from:     cfg.From,
		sendMail: smtp.SendMail,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return s
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("smtp send %s: missing recipient", msg.Kind)
	}

	raw := "From: " + s.from + "\r\n" +
		"To: " + msg.To + "\r\n" +
		"Subject: " + sanitizeHeader(msg.Subject) + "\r\n" +
		"MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n" +
		msg.Body

	// net/smtp has no context support; abandon the wait when ctx ends.
	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(s.addr, s.auth, s.from, []string{msg.To}, []byte(raw))
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send %s: %w", msg.Kind, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send %s: %w", msg.Kind, ctx.Err())
	}
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// Publisher is the subset of *amqp.Channel used by AMQPSender.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSender publishes admin alerts as JSON onto a durable queue via the
// default exchange.
type AMQPSender struct {
	ch    Publisher
	queue string
}

func NewAMQPSender(ch Publisher, queue string) *AMQPSender {
	return &AMQPSender{ch: ch, queue: queue}
}

// DeclareQueue makes sure the durable alert queue exists.
func DeclareQueue(ch *amqp.Channel, name string) (string, error) {
	q, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("failed to declare %s queue: %w", name, err)
	}
	return q.Name, nil
}

func (a *AMQPSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s alert: %w", msg.Kind, err)
	}

	if err := a.ch.PublishWithContext(ctx,
		"",
		a.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         msg.Kind,
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("publish %s alert: %w", msg.Kind, err)
	}
	return nil
}
