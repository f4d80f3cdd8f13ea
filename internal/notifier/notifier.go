package notifier

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"text/template"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/metrics"
	"golang.org/x/sync/errgroup"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	audienceCustomer = "customer"
	audienceAdmin    = "admin"
)

// ContactMessage is a storefront contact-form submission.
type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
}

// Notifier renders and dispatches the customer and admin messages for an
// event. Both deliveries run concurrently and are always awaited.
type Notifier struct {
	customer   Sender
	admin      Sender
	adminEmail string
	tmpl       *template.Template
	logger     *slog.Logger
	metrics    *metrics.Registry
}

func New(customer, admin Sender, adminEmail string, logger *slog.Logger, m *metrics.Registry) (*Notifier, error) {
	tmpl, err := template.New("notifier").Funcs(template.FuncMap{
		"vnd":       FormatVND,
		"lineTotal": func(it domain.OrderItem) int64 { return int64(it.Quantity) * it.UnitPriceSnapshot },
	}).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse notification templates: %w", err)
	}

	return &Notifier{
		customer:   customer,
		admin:      admin,
		adminEmail: adminEmail,
		tmpl:       tmpl,
		logger:     logger,
		metrics:    m,
	}, nil
}

// NotifyOrder sends the order confirmation and the admin alert. The customer
// message is skipped when the order has no usable email address.
func (n *Notifier) NotifyOrder(ctx context.Context, order *domain.Order) error {
	var customer *Message
	if domain.ValidEmail(order.Customer.Email) {
		msg, err := n.render("order_customer", order.Customer.Email, order.OrderNumber, order)
		if err != nil {
			return err
		}
		customer = &msg
	} else if order.Customer.Email != "" {
		n.logger.Info("skipping customer confirmation, invalid email",
			"order_number", order.OrderNumber)
	}

	admin, err := n.render("order_admin", n.adminEmail, order.OrderNumber, order)
	if err != nil {
		return err
	}

	return n.dispatch(ctx, customer, admin)
}

func (n *Notifier) NotifyContact(ctx context.Context, contact ContactMessage) error {
	var customer *Message
	if domain.ValidEmail(contact.Email) {
		msg, err := n.render("contact_customer", contact.Email, contact.Subject, contact)
		if err != nil {
			return err
		}
		customer = &msg
	}

	admin, err := n.render("contact_admin", n.adminEmail, contact.Subject, contact)
	if err != nil {
		return err
	}

	return n.dispatch(ctx, customer, admin)
}

func (n *Notifier) dispatch(ctx context.Context, customer *Message, admin Message) error {
	// Plain group: one failed delivery must not cancel the other.
	var g errgroup.Group
	errs := make([]error, 2)

	if customer != nil {
		g.Go(func() error {
			errs[0] = n.send(ctx, n.customer, audienceCustomer, *customer)
			return errs[0]
		})
	}
	g.Go(func() error {
		errs[1] = n.send(ctx, n.admin, audienceAdmin, admin)
		return errs[1]
	})

	_ = g.Wait()
	return errors.Join(errs...)
}

func (n *Notifier) send(ctx context.Context, s Sender, audience string, msg Message) error {
	err := s.Send(ctx, msg)
	if err != nil {
		if n.metrics != nil {
			n.metrics.NotificationFailures.WithLabelValues(audience).Inc()
		}
		return fmt.Errorf("%s notification: %w", audience, err)
	}
	if n.metrics != nil {
		n.metrics.NotificationsSent.WithLabelValues(audience).Inc()
	}
	return nil
}

func (n *Notifier) render(kind, to, ref string, data any) (Message, error) {
	var subject, body bytes.Buffer
	if err := n.tmpl.ExecuteTemplate(&subject, kind+".subject", data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", kind, err)
	}
	if err := n.tmpl.ExecuteTemplate(&body, kind+".body", data); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", kind, err)
	}
	return Message{Kind: kind, To: to, Subject: subject.String(), Body: body.String(), Ref: ref}, nil
}

// FormatVND renders an amount of dong with dot thousands separators,
// e.g. 1500000 -> "1.500.000₫".
func FormatVND(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var out []byte
	for i := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, digits[i])
	}
	return sign + string(out) + "₫"
}
