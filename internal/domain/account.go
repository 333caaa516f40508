package domain

import "time"

// Account 一条已开通网络访问的企业身份记录
// corporate_id 是主键；messaging_id 全局唯一（一个消息账号最多绑定一个企业ID）
type Account struct {
	CorporateID     string
	PanelUsername   string
	AuthKey         string
	SubscriptionURL string
	ConnectionURL   string
	MessagingID     string // empty when not linked
	IsActive        bool
	AuthAttempts    int
	LockedUntil     *time.Time
	TotalUpload     int64
	TotalDownload   int64
	CreatedAt       time.Time
	LastAccess      *time.Time
}

// Locked reports whether the account is under an active lockout at the given time.
// A past locked_until means unlocked (lazy expiry, no background sweep).
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// TrafficSample 单次流量采样（追加写入 traffic_stats）
type TrafficSample struct {
	CorporateID   string
	Username      string
	UploadBytes   int64
	DownloadBytes int64
	Timestamp     time.Time
}
