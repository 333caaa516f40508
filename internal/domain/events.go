package domain

import "time"

// Lifecycle event types delivered by the HR system.
const (
	EventUserDeactivated = "user_deactivated"
	EventUserRoleChanged = "user_role_changed"
	EventUserSuspended   = "user_suspended"
)

// WebhookEvent 已接收的生命周期事件（签名校验后立即落库，永不删除）
// processed 只会从 false 变为 true 一次。
type WebhookEvent struct {
	ID          int64
	EventType   string
	CorporateID string
	EventData   string // serialized payload
	TraceID     string // correlates the stored row with processing logs
	Processed   bool
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// AuthLogEntry 认证/生命周期动作日志（append-only）
type AuthLogEntry struct {
	ID           int64
	CorporateID  string
	MessagingID  string
	Action       string
	IPAddress    string
	UserAgent    string
	Success      bool
	ErrorMessage string
	CreatedAt    time.Time
}

// MonitorEvent HealthMonitor 的事件日志行
type MonitorEvent struct {
	ID        int64
	Component string
	Level     string // INFO | WARN | ERROR
	Message   string
	Details   string
	CreatedAt time.Time
}
