package domain

import (
	"regexp"
	"time"
)

// Identifier status lifecycle. "issued" is initial; "revoked" and "archived" are
// terminal with respect to automatic activation (re-activation is an operator call).
const (
	IDStatusIssued   = "issued"
	IDStatusActive   = "active"
	IDStatusRevoked  = "revoked"
	IDStatusArchived = "archived"
)

// IDAlphabet 企业ID字母表：大写字母去掉易混淆的 I/O（24 个字母）
const IDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ"

// idPattern: two letters from the restricted alphabet, then six digits.
var idPattern = regexp.MustCompile(`^[A-HJ-NP-Z]{2}\d{6}$`)

// ValidIdentifierStatus reports whether s is one of the known lifecycle statuses.
func ValidIdentifierStatus(s string) bool {
	switch s {
	case IDStatusIssued, IDStatusActive, IDStatusRevoked, IDStatusArchived:
		return true
	}
	return false
}

// ValidateIdentifierFormat checks an identifier taken from untrusted input.
// Runs before any store access; returns ErrInvalidFormat on mismatch.
func ValidateIdentifierFormat(id string) error {
	if !idPattern.MatchString(id) {
		return ErrInvalidFormat
	}
	return nil
}

// CorporateIdentifier 企业ID登记表记录（独立于 Account 是否存在）
type CorporateIdentifier struct {
	ID        string
	Owner     string
	Status    string
	IssuedAt  time.Time
	UpdatedAt *time.Time
}

// IdentifierAudit 企业ID操作审计（append-only）
type IdentifierAudit struct {
	AuditID   int64
	ID        string
	Action    string // issue | revoke | activate | archive
	Actor     string
	Details   string
	CreatedAt time.Time
}
