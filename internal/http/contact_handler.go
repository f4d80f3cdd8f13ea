package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/notifier"
	"github.com/fjod/storefront/pkg/logger"
)

const maxContactMessageLen = 5000

type ContactNotifier interface {
	NotifyContact(ctx context.Context, contact notifier.ContactMessage) error
}

type ContactHandler struct {
	notifier ContactNotifier
	timeout  time.Duration
	logger   *slog.Logger
}

func NewContactHandler(n ContactNotifier, timeout time.Duration, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{
		notifier: n,
		timeout:  timeout,
		logger:   logger,
	}
}

type ContactResponse struct {
	Status string `json:"status"`
}

// POST /api/v1/contact
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req notifier.ContactMessage
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	msg, err := normalizeContact(req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	// The notification is the only outcome of a contact submission, so a
	// delivery failure is reported to the caller.
	if err := h.notifier.NotifyContact(ctx, msg); err != nil {
		handleServiceError(w, r, h.logger, fmt.Errorf("contact notification: %w: %w", domain.ErrDependency, err))
		return
	}

	logger.With(r.Context(), h.logger).Info("contact message delivered", "subject", msg.Subject)
	respondJSON(w, http.StatusAccepted, ContactResponse{Status: "sent"})
}

func normalizeContact(in notifier.ContactMessage) (notifier.ContactMessage, error) {
	out := notifier.ContactMessage{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.TrimSpace(in.Email),
		Phone:   strings.TrimSpace(in.Phone),
		Subject: strings.TrimSpace(in.Subject),
		Message: strings.TrimSpace(in.Message),
	}

	v := domain.NewValidationError()
	if out.Name == "" {
		v.Add("name", "is required")
	}
	switch {
	case out.Email == "":
		v.Add("email", "is required")
	case !domain.ValidEmail(out.Email):
		v.Add("email", "is not a valid email address")
	}
	switch {
	case out.Message == "":
		v.Add("message", "is required")
	case len(out.Message) > maxContactMessageLen:
		v.Add("message", fmt.Sprintf("must not exceed %d characters", maxContactMessageLen))
	}
	if out.Phone != "" {
		phone, ok := domain.NormalizePhone(out.Phone)
		if !ok {
			v.Add("phone", "must be 9 to 11 digits, optionally prefixed with +84")
		}
		out.Phone = phone
	}
	if out.Subject == "" {
		out.Subject = "Contact from " + out.Name
	}
	return out, v.OrNil()
}
