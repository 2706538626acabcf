package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = time.Minute

// ResetTokenPurger 由 repository.UserRepository 实现
type ResetTokenPurger interface {
	PurgeExpiredResetTokens(ctx context.Context) (int64, error)
}

// SentEventCleaner 由 outbox.Repository 实现
type SentEventCleaner interface {
	DeleteSentBefore(ctx context.Context, before time.Time) (int64, error)
}

type Schedule struct {
	ResetTokenPurge  string
	OutboxPurge      string
	OutboxRetainDays int
}

// Maintenance worker 进程里的定时清理任务
type Maintenance struct {
	users  ResetTokenPurger
	outbox SentEventCleaner
	cron   *cron.Cron
	now    func() time.Time
	logger *zap.Logger
}

func NewMaintenance(users ResetTokenPurger, outbox SentEventCleaner, logger *zap.Logger) *Maintenance {
	return &Maintenance{
		users:  users,
		outbox: outbox,
		cron:   cron.New(),
		now:    time.Now,
		logger: logger,
	}
}

// Register 按 cron 表达式注册任务，表达式为空的任务跳过
func (m *Maintenance) Register(s Schedule) error {
	if s.ResetTokenPurge != "" {
		if _, err := m.cron.AddFunc(s.ResetTokenPurge, m.run("purge_reset_tokens", m.PurgeResetTokens)); err != nil {
			return fmt.Errorf("invalid reset token purge schedule %q: %w", s.ResetTokenPurge, err)
		}
	}
	if s.OutboxPurge != "" {
		retain := s.OutboxRetainDays
		if retain <= 0 {
			retain = 7
		}
		purge := func(ctx context.Context) (int64, error) { return m.PurgeSentEvents(ctx, retain) }
		if _, err := m.cron.AddFunc(s.OutboxPurge, m.run("purge_sent_outbox", purge)); err != nil {
			return fmt.Errorf("invalid outbox purge schedule %q: %w", s.OutboxPurge, err)
		}
	}
	return nil
}

func (m *Maintenance) Start() {
	m.logger.Info("Maintenance jobs started", zap.Int("jobs", len(m.cron.Entries())))
	m.cron.Start()
}

// Stop 等待正在执行的任务结束
func (m *Maintenance) Stop() {
	<-m.cron.Stop().Done()
	m.logger.Info("Maintenance jobs stopped")
}

// PurgeResetTokens 清除已过期的重置密码 token
func (m *Maintenance) PurgeResetTokens(ctx context.Context) (int64, error) {
	return m.users.PurgeExpiredResetTokens(ctx)
}

// PurgeSentEvents 删除 retainDays 天前已投递的 outbox 事件
func (m *Maintenance) PurgeSentEvents(ctx context.Context, retainDays int) (int64, error) {
	before := m.now().AddDate(0, 0, -retainDays)
	return m.outbox.DeleteSentBefore(ctx, before)
}

func (m *Maintenance) run(name string, fn func(ctx context.Context) (int64, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := m.now()
		n, err := fn(ctx)
		if err != nil {
			m.logger.Error("Maintenance job failed", zap.String("job", name), zap.Error(err))
			return
		}
		m.logger.Info("Maintenance job finished",
			zap.String("job", name),
			zap.Int64("affected", n),
			zap.Duration("duration", m.now().Sub(start)),
		)
	}
}
