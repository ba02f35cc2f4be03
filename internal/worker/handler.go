// Package worker turns order status events into customer notifications.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/grocery-fulfillment/internal/domain"
)

// NotificationHandler posts one message per status event to a webhook.
// With no webhook configured it only logs the message.
type NotificationHandler struct {
	notifyURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewNotificationHandler(notifyURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifyURL:  notifyURL,
		httpClient: client,
		logger:     logger,
	}
}

type Notification struct {
	EventID string             `json:"event_id"`
	To      string             `json:"to"`
	OrderID string             `json:"order_id"`
	Status  domain.OrderStatus `json:"status"`
	Subject string             `json:"subject"`
	Body    string             `json:"body"`
}

func (h *NotificationHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderStatusChangedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order status event: %w", err)
	}

	h.logger.Info("processing order status event", "order_id", event.OrderID, "status", event.Status)

	n := Render(event)
	if h.notifyURL == "" {
		h.logger.Info("notification", "to", n.To, "subject", n.Subject, "body", n.Body)
		return nil
	}

	if err := h.send(ctx, n); err != nil {
		h.logger.Error("failed to send notification", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send notification: %w", err)
	}

	h.logger.Info("notification sent", "order_id", event.OrderID, "status", event.Status)
	return nil
}

var statusMessages = map[domain.OrderStatus]string{
	domain.OrderStatusReceived:       "We received your order %s and will confirm it shortly.",
	domain.OrderStatusConfirmed:      "Your order %s is confirmed and being packed.",
	domain.OrderStatusShipped:        "Your order %s has left the store.",
	domain.OrderStatusOutForDelivery: "Your order %s is out for delivery.",
	domain.OrderStatusDelivered:      "Your order %s has been delivered. Enjoy!",
	domain.OrderStatusCancelled:      "Your order %s has been cancelled.",
}

// Render builds the customer-facing message for an event.
func Render(event domain.OrderStatusChangedEvent) Notification {
	body := fmt.Sprintf("Your order %s changed status to %s.", event.OrderID, event.Status)
	if tmpl, ok := statusMessages[event.Status]; ok {
		body = fmt.Sprintf(tmpl, event.OrderID)
	}

	return Notification{
		EventID: event.EventID,
		To:      event.CustomerName,
		OrderID: event.OrderID,
		Status:  event.Status,
		Subject: fmt.Sprintf("Order %s: %s", event.OrderID, event.Status),
		Body:    body,
	}
}

func (h *NotificationHandler) send(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.notifyURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}

	return nil
}
