package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"corp-access/internal/config"
	"corp-access/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// PanelAccount 面板侧账号信息
// The auth key is generated by the panel; this service only stores it.
type PanelAccount struct {
	Username string `json:"username"`
	AuthKey  string `json:"auth_key"`
	Enabled  bool   `json:"enable"`
}

// PanelUsage 面板侧流量统计
type PanelUsage struct {
	Upload   int64 `json:"upload"`
	Download int64 `json:"download"`
}

// Panel is the provisioning-panel boundary: create/lookup/enable accounts and
// fetch usage. Ping is the liveness probe used by the monitor.
type Panel interface {
	CreateAccount(ctx context.Context, username string) (*PanelAccount, error)
	GetAccount(ctx context.Context, username string) (*PanelAccount, error)
	SetEnabled(ctx context.Context, username string, enabled bool) error
	GetUsage(ctx context.Context, username string) (*PanelUsage, error)
	Ping(ctx context.Context) error
}

// PanelClient 开通面板 API 客户端
type PanelClient struct {
	httpClient *resty.Client
	publicBase string
	logger     *zap.Logger
}

var _ Panel = (*PanelClient)(nil)

func NewPanelClient(cfg config.PanelConfig, logger *zap.Logger) *PanelClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		// Panel expects exact token match, no Bearer prefix.
		SetHeader("Authorization", cfg.Token)

	base := strings.TrimRight(cfg.BaseURL, "/")
	base = strings.TrimSuffix(base, "/api")

	return &PanelClient{
		httpClient: client,
		publicBase: base,
		logger:     logger,
	}
}

func (c *PanelClient) CreateAccount(ctx context.Context, username string) (*PanelAccount, error) {
	var acct PanelAccount
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"username": username,
			"enable":   true,
		}).
		SetResult(&acct).
		Post("/users")
	if err != nil {
		return nil, fmt.Errorf("%w: create account: %v", domain.ErrUpstream, err)
	}
	if resp.IsError() {
		c.logger.Error("Panel create account failed",
			zap.String("username", username),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return nil, fmt.Errorf("%w: create account: status %d", domain.ErrUpstream, resp.StatusCode())
	}
	return &acct, nil
}

func (c *PanelClient) GetAccount(ctx context.Context, username string) (*PanelAccount, error) {
	var acct PanelAccount
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&acct).
		Get("/users/" + username)
	if err != nil {
		return nil, fmt.Errorf("%w: get account: %v", domain.ErrUpstream, err)
	}
	if resp.StatusCode() == 404 {
		return nil, domain.ErrNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: get account: status %d", domain.ErrUpstream, resp.StatusCode())
	}
	return &acct, nil
}

func (c *PanelClient) SetEnabled(ctx context.Context, username string, enabled bool) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]any{"enable": enabled}).
		Put("/users/" + username + "/status")
	if err != nil {
		return fmt.Errorf("%w: set enabled: %v", domain.ErrUpstream, err)
	}
	if resp.StatusCode() == 404 {
		return domain.ErrNotFound
	}
	if resp.IsError() {
		return fmt.Errorf("%w: set enabled: status %d", domain.ErrUpstream, resp.StatusCode())
	}
	return nil
}

func (c *PanelClient) GetUsage(ctx context.Context, username string) (*PanelUsage, error) {
	var usage PanelUsage
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&usage).
		Get("/users/" + username + "/stats")
	if err != nil {
		return nil, fmt.Errorf("%w: get usage: %v", domain.ErrUpstream, err)
	}
	if resp.StatusCode() == 404 {
		return nil, domain.ErrNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: get usage: status %d", domain.ErrUpstream, resp.StatusCode())
	}
	return &usage, nil
}

// Ping probes the panel's public root. The caller bounds the probe with a
// context deadline; a hung panel cannot stall the monitor loop past it.
func (c *PanelClient) Ping(ctx context.Context) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(c.publicBase + "/")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("%w: status %d", domain.ErrUpstream, resp.StatusCode())
	}
	return nil
}

// SubscriptionURL 订阅地址（面板公开地址下的 /sub/<username>）
func SubscriptionURL(publicBase, username string) string {
	return strings.TrimRight(publicBase, "/") + "/sub/" + username
}

// ConnectionURL builds the direct connection URL from panel data.
func ConnectionURL(cfg config.PanelConfig, authKey, username string) string {
	return fmt.Sprintf("hy2://%s@%s:%d/?sni=%s&insecure=0#CorpVPN_%s",
		authKey, cfg.Domain, cfg.Port, cfg.SNI, username)
}
