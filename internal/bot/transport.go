package bot

import (
	"context"
	"fmt"
	"time"

	"corp-access/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Message 一条入站消息（由外部消息桥投递）
type Message struct {
	From string `json:"from"` // messaging identity
	Text string `json:"text"`
}

// Transport delivers outbound text to a messaging identity. Connection and
// session management of the messaging platform live outside this service.
type Transport interface {
	Send(ctx context.Context, recipientID, text string) error
}

// HTTPTransport forwards outbound sends to the external messaging bridge.
type HTTPTransport struct {
	client *resty.Client
	logger *zap.Logger
}

var _ Transport = (*HTTPTransport)(nil)

func NewHTTPTransport(bridgeURL string, logger *zap.Logger) *HTTPTransport {
	client := resty.New().
		SetBaseURL(bridgeURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetHeader("Content-Type", "application/json")
	return &HTTPTransport{client: client, logger: logger}
}

func (t *HTTPTransport) Send(ctx context.Context, recipientID, text string) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"to": recipientID, "text": text}).
		Post("/send")
	if err != nil {
		return fmt.Errorf("%w: bridge send: %v", domain.ErrUpstream, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: bridge send: status %d", domain.ErrUpstream, resp.StatusCode())
	}
	return nil
}
