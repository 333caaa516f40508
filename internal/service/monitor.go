package service

import (
	"context"
	"time"

	"corp-access/internal/config"
	"corp-access/internal/repository"

	"go.uber.org/zap"
)

// AdminNotifier delivers alert text to all registered administrators.
type AdminNotifier interface {
	NotifyAdmins(ctx context.Context, text string) error
}

// Monitor 依赖健康监控
// Probes the panel on a fixed interval and tracks consecutive failures. At the
// threshold it sends one deduplicated admin alert and resets the counter, so
// sustained failure re-alerts only at the next threshold crossing. A separate
// low-frequency heartbeat loop logs process liveness with no alerting.
// Failures never propagate outward; everything ends in logs and alerts.
type Monitor struct {
	panel    Panel
	audit    repository.AuditRepo
	notifier AdminNotifier
	cfg      config.MonitorConfig
	logger   *zap.Logger

	failCount int // touched only by the probe goroutine
}

func NewMonitor(panel Panel, audit repository.AuditRepo, notifier AdminNotifier, cfg config.MonitorConfig, logger *zap.Logger) *Monitor {
	return &Monitor{
		panel:    panel,
		audit:    audit,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start launches the probe and heartbeat loops. Both stop when ctx is
// cancelled.
func (m *Monitor) Start(ctx context.Context) {
	go m.probeLoop(ctx)
	go m.heartbeatLoop(ctx)
}

func (m *Monitor) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	m.logger.Info("Panel health monitor started",
		zap.Duration("probe_interval", m.cfg.ProbeInterval),
		zap.Int("failure_threshold", m.cfg.FailureThreshold),
	)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Panel health monitor stopped")
			return
		case <-ticker.C:
			m.probeOnce(ctx)
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	err := m.panel.Ping(probeCtx)
	cancel()

	if err == nil {
		// Log recovery only on the success that follows at least one failure.
		if m.failCount > 0 {
			m.failCount = 0
			m.logMonitor(ctx, "INFO", "Recovered", "")
			m.logger.Info("Panel recovered")
		}
		return
	}

	m.failCount++
	m.logMonitor(ctx, "ERROR", "Unreachable", err.Error())
	m.logger.Warn("Panel probe failed",
		zap.Int("fail_count", m.failCount),
		zap.Error(err),
	)

	if m.failCount >= m.cfg.FailureThreshold {
		alert := "Provisioning panel is unreachable. Check the container and ports."
		if nerr := m.notifier.NotifyAdmins(ctx, alert); nerr != nil {
			m.logger.Error("Admin notification failed", zap.Error(nerr))
		} else {
			// Reset after a successful alert so continued failure does not
			// spam admins, but re-alerts at the next threshold crossing.
			m.failCount = 0
		}
	}
}

func (m *Monitor) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.audit.LogMonitor(ctx, "corp-access", "INFO", "alive", ""); err != nil {
				m.logger.Error("Failed to append heartbeat event", zap.Error(err))
			}
		}
	}
}

func (m *Monitor) logMonitor(ctx context.Context, level, message, details string) {
	if err := m.audit.LogMonitor(ctx, "panel", level, message, details); err != nil {
		m.logger.Error("Failed to append monitor event", zap.Error(err))
	}
}
