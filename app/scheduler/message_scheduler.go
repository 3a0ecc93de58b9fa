// Package scheduler promotes due scheduled messages into the dispatch queue
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dispatch"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/repository"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
	"github.com/robfig/cron/v3"
)

// errAlreadyProcessed means another sweeper promoted or cancelled the row first
var errAlreadyProcessed = errors.New("scheduled message is no longer pending")

// ScheduledStore is the slice of the scheduled message repository the sweep needs
type ScheduledStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledMessage, error)
	MarkSent(ctx context.Context, id, messageLogID uint, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uint, reason string, at time.Time) (bool, error)
}

// MessageWriter is the slice of the message log repository the sweep needs
type MessageWriter interface {
	Save(ctx context.Context, msg *models.MessageLog) error
	MarkFailed(ctx context.Context, id uint, reason string, failedAt time.Time) error
}

// SweepResult summarizes one sweep
type SweepResult struct {
	Due      int
	Promoted int
	Skipped  int
	Failed   int
}

// MessageScheduler periodically promotes PENDING scheduled messages whose time
// has come into QUEUED message logs and hands them to the dispatcher
type MessageScheduler struct {
	scheduled  ScheduledStore
	messages   MessageWriter
	tx         repository.Transactor
	dispatcher dispatch.Dispatcher
	logger     *slog.Logger

	spec      string
	batchSize int
	now       func() time.Time
}

// NewMessageScheduler creates a scheduler; spec is a robfig/cron spec such as "@every 1m"
func NewMessageScheduler(
	scheduled ScheduledStore,
	messages MessageWriter,
	tx repository.Transactor,
	dispatcher dispatch.Dispatcher,
	logger *slog.Logger,
	spec string,
	batchSize int,
) *MessageScheduler {
	if spec == "" {
		spec = utils.DefaultSchedulerSpec
	}
	if batchSize <= 0 {
		batchSize = utils.DefaultSchedulerBatchSize
	}
	return &MessageScheduler{
		scheduled:  scheduled,
		messages:   messages,
		tx:         tx,
		dispatcher: dispatcher,
		logger:     logger,
		spec:       spec,
		batchSize:  batchSize,
		now:        utils.UTCNow,
	}
}

// Start runs one sweep immediately, then on every cron tick. Overlapping ticks
// are skipped. The returned function stops the cron and waits for a running sweep.
func (s *MessageScheduler) Start(parent context.Context) (func(), error) {
	ctx, cancel := context.WithCancel(parent)

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn)))),
	)
	if _, err := c.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid scheduler spec %q: %w", s.spec, err)
	}

	go s.RunOnce(ctx)
	c.Start()
	s.logger.Info("Message scheduler started", "spec", s.spec, "batch_size", s.batchSize)

	return func() {
		cancel()
		<-c.Stop().Done()
		s.logger.Info("Message scheduler stopped")
	}, nil
}

// RunOnce promotes up to one batch of due messages. A failing row never stops the sweep.
func (s *MessageScheduler) RunOnce(ctx context.Context) SweepResult {
	var res SweepResult
	now := s.now()

	due, err := s.scheduled.ListDue(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("Failed to list due scheduled messages", "error", err)
		return res
	}
	res.Due = len(due)

	for _, row := range due {
		if ctx.Err() != nil {
			break
		}
		switch err := s.promote(ctx, row); {
		case err == nil:
			res.Promoted++
		case errors.Is(err, errAlreadyProcessed):
			res.Skipped++
		default:
			res.Failed++
			s.logger.Error("Failed to promote scheduled message",
				"scheduled_message_id", row.ID, "tenant_id", row.TenantID, "error", err)
			if _, markErr := s.scheduled.MarkFailed(ctx, row.ID, err.Error(), s.now()); markErr != nil {
				s.logger.Error("Failed to mark scheduled message failed", "scheduled_message_id", row.ID, "error", markErr)
			}
		}
	}

	recordSweep(res)
	if res.Due > 0 {
		s.logger.Info("Scheduled message sweep finished",
			"due", res.Due, "promoted", res.Promoted, "skipped", res.Skipped, "failed", res.Failed)
	}
	return res
}

func (s *MessageScheduler) promote(ctx context.Context, row *models.ScheduledMessage) error {
	msg := MessageFromScheduled(row)

	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.messages.Save(txCtx, msg); err != nil {
			return fmt.Errorf("failed to create message log: %w", err)
		}
		ok, err := s.scheduled.MarkSent(txCtx, row.ID, msg.ID, s.now())
		if err != nil {
			return fmt.Errorf("failed to mark scheduled message sent: %w", err)
		}
		if !ok {
			return errAlreadyProcessed
		}
		return nil
	})
	if err != nil {
		return err
	}

	// The row is committed as SENT; an enqueue failure is recorded on the message
	// log, where an explicit retry can pick it up.
	if _, err := s.dispatcher.Dispatch(ctx, msg); err != nil {
		s.logger.Error("Failed to enqueue promoted message",
			"scheduled_message_id", row.ID, "message_id", msg.ID, "error", err)
		if markErr := s.messages.MarkFailed(ctx, msg.ID, fmt.Sprintf("enqueue failed: %v", err), s.now()); markErr != nil {
			s.logger.Error("Failed to mark message failed", "message_id", msg.ID, "error", markErr)
		}
	}
	return nil
}

// MessageFromScheduled builds the QUEUED message log for a scheduled row
func MessageFromScheduled(row *models.ScheduledMessage) *models.MessageLog {
	meta := models.JSONMap{"scheduled_message_id": row.ID}
	if row.Payload.Trigger != nil {
		meta["trigger"] = *row.Payload.Trigger
	}
	if row.Payload.RuleID != nil {
		meta["rule_id"] = *row.Payload.RuleID
	}
	if len(row.Payload.Context) > 0 {
		meta["context"] = row.Payload.Context
	}
	scheduledFor := row.ScheduledFor

	return &models.MessageLog{
		TenantID:       row.TenantID,
		Channel:        row.Channel,
		RecipientType:  row.RecipientType,
		RecipientID:    row.RecipientID,
		RecipientEmail: row.Payload.RecipientEmail,
		RecipientPhone: row.Payload.RecipientPhone,
		TemplateID:     row.TemplateID,
		Subject:        row.Payload.Subject,
		Body:           row.Payload.Body,
		Status:         models.MessageStatusQueued,
		ScheduledFor:   &scheduledFor,
		Metadata:       meta,
		CreatedBy:      row.CreatedBy,
	}
}
