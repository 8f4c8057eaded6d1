package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	applog "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/log"
)

// CibaNotification is one delivery to a client's registered notification
// endpoint: a ping (auth_req_id only) or a push (the full token response).
type CibaNotification struct {
	Endpoint    string
	BearerToken string
	Payload     map[string]any
}

// NotificationClient delivers backchannel notifications.
type NotificationClient interface {
	Notify(ctx context.Context, notification CibaNotification) error
}

// HTTPNotificationClient posts JSON notifications with the client's
// registered notification token as bearer credential. Delivery is best
// effort; the grant transition it reports has already been made durable.
type HTTPNotificationClient struct {
	httpClient *http.Client
	logger     applog.Logger
}

func NewHTTPNotificationClient(timeout time.Duration, logger applog.Logger) *HTTPNotificationClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPNotificationClient{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *HTTPNotificationClient) Notify(ctx context.Context, notification CibaNotification) error {
	body, err := json.Marshal(notification.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode notification payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notification.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if notification.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+notification.BearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notification delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}

	c.logger.Debug(ctx, "notification delivered", map[string]interface{}{
		"endpoint": notification.Endpoint,
		"status":   resp.StatusCode,
	})
	return nil
}
