package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"storefront/internal/config"
	"storefront/internal/domain"

	webpush "github.com/SherClockHolmes/webpush-go"
)

var (
	// ErrSubscriptionGone means the push service no longer knows the endpoint.
	ErrSubscriptionGone = errors.New("push subscription gone")
	ErrNotConfigured    = errors.New("web push not configured")
)

// Sender delivers one encrypted payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error
}

type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push service returned http %d: %s", e.StatusCode, e.Body)
}

type WebPushSender struct {
	cfg  config.PushConfig
	http *http.Client
}

func NewWebPushSender(cfg config.PushConfig, httpClient *http.Client) *WebPushSender {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WebPushSender{cfg: cfg, http: httpClient}
}

func (s *WebPushSender) Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error {
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.http,
		Subscriber:      s.cfg.Subject,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		TTL:             int(s.cfg.TTL.Seconds()),
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrSubscriptionGone, statusErr)
	}
	return statusErr
}
