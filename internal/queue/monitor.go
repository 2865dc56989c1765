// Package queue watches livechat inquiries and closes conversations that
// stayed in the queue past the configured idle window.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/parlorchat/parlor/internal/config"
	"github.com/parlorchat/parlor/internal/users"
)

// Inquiry statuses.
const (
	StatusQueued = "queued"
	StatusTaken  = "taken"
	StatusClosed = "closed"
)

// Inquiry is one queued livechat conversation.
type Inquiry struct {
	ID       string    `json:"id"`
	RoomID   string    `json:"room_id"`
	Status   string    `json:"status"`
	QueuedAt time.Time `json:"queued_at"`
}

// Store loads and closes inquiries.
type Store interface {
	Inquiry(ctx context.Context, id string) (Inquiry, bool, error)
	QueuedInquiries(ctx context.Context) ([]Inquiry, error)
	CloseInquiry(ctx context.Context, id string) error
}

// RoomCloser ends the conversation room; implemented by the rooms service.
type RoomCloser interface {
	Close(ctx context.Context, roomID, byUserID, comment string) error
}

// ResidentDirectory resolves the system user closings are attributed to.
type ResidentDirectory interface {
	UserByUsername(ctx context.Context, username string) (users.User, bool, error)
}

// onceSchedule fires exactly once at its deadline. A deadline already in the
// past fires on the next scheduler tick, so inquiries that went overdue while
// the process was down are still closed after a restart.
type onceSchedule struct {
	at    time.Time
	armed bool
}

func (s *onceSchedule) Next(t time.Time) time.Time {
	if s.armed {
		return time.Time{}
	}
	s.armed = true
	if t.Before(s.at) {
		return s.at
	}
	return t.Add(time.Second)
}

// Monitor schedules one-shot close jobs per inquiry. Scheduling the same
// inquiry again replaces the previous deadline.
type Monitor struct {
	store    Store
	closer   RoomCloser
	resident ResidentDirectory
	cfg      config.QueueConfig
	accounts config.AccountsConfig
	cron     *cron.Cron
	logger   *slog.Logger

	mu         sync.Mutex
	jobs       map[string]cron.EntryID
	closeAfter time.Duration
	started    bool
}

func NewMonitor(log *slog.Logger, store Store, closer RoomCloser, resident ResidentDirectory, cfg config.QueueConfig, accounts config.AccountsConfig) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		store:    store,
		closer:   closer,
		resident: resident,
		cfg:      cfg,
		accounts: accounts,
		cron:     cron.New(),
		logger:   log.With(slog.String("service", "queue")),
		jobs:     map[string]cron.EntryID{},
	}
}

// Start parses the idle window, reschedules every inquiry still in the queue,
// and starts the scheduler. A disabled monitor starts as a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.cfg.Enabled {
		m.logger.Info("queue monitor disabled")
		return nil
	}
	closeAfter, err := time.ParseDuration(m.cfg.CloseAfter)
	if err != nil {
		return fmt.Errorf("invalid queue close_after: %w", err)
	}
	if closeAfter <= 0 {
		return errors.New("queue close_after must be positive")
	}

	m.mu.Lock()
	m.closeAfter = closeAfter
	m.started = true
	m.mu.Unlock()

	pending, err := m.store.QueuedInquiries(ctx)
	if err != nil {
		return err
	}
	for _, inquiry := range pending {
		m.ScheduleInquiry(inquiry.ID, inquiry.QueuedAt.Add(closeAfter))
	}

	m.cron.Start()
	m.logger.Info("queue monitor started",
		slog.Duration("close_after", closeAfter),
		slog.Int("pending", len(pending)))
	return nil
}

// Stop halts the scheduler and waits for running jobs.
func (m *Monitor) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

// ScheduleInquiry arms the close job for inquiryID at the given deadline,
// replacing any earlier schedule for the same inquiry.
func (m *Monitor) ScheduleInquiry(inquiryID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	if id, ok := m.jobs[inquiryID]; ok {
		m.cron.Remove(id)
	}
	m.jobs[inquiryID] = m.cron.Schedule(&onceSchedule{at: at}, cron.FuncJob(func() {
		m.fire(inquiryID)
	}))
}

// StopInquiry drops the schedule for inquiryID, typically because an agent
// took the conversation.
func (m *Monitor) StopInquiry(inquiryID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.jobs[inquiryID]; ok {
		m.cron.Remove(id)
		delete(m.jobs, inquiryID)
	}
}

func (m *Monitor) fire(inquiryID string) {
	defer m.StopInquiry(inquiryID)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := m.closeIdleInquiry(ctx, inquiryID); err != nil {
		m.logger.Error("closing idle inquiry failed",
			slog.String("inquiry_id", inquiryID),
			slog.String("error", err.Error()))
	}
}

// closeIdleInquiry re-checks the inquiry and closes its room when it is still
// sitting in the queue.
func (m *Monitor) closeIdleInquiry(ctx context.Context, inquiryID string) error {
	inquiry, ok, err := m.store.Inquiry(ctx, inquiryID)
	if err != nil {
		return err
	}
	if !ok {
		m.logger.Debug("inquiry vanished before close", slog.String("inquiry_id", inquiryID))
		return nil
	}
	if inquiry.Status != StatusQueued {
		return nil
	}
	if inquiry.RoomID == "" {
		return fmt.Errorf("inquiry %s has no room", inquiryID)
	}

	resident, ok, err := m.resident.UserByUsername(ctx, m.accounts.ResidentUsername)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("resident user %q not found", m.accounts.ResidentUsername)
	}

	if err := m.closer.Close(ctx, inquiry.RoomID, resident.ID, m.cfg.CloseMessage); err != nil {
		return err
	}
	if err := m.store.CloseInquiry(ctx, inquiryID); err != nil {
		return err
	}
	m.logger.Info("idle inquiry closed",
		slog.String("inquiry_id", inquiryID),
		slog.String("room_id", inquiry.RoomID))
	return nil
}
