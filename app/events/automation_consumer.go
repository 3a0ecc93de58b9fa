// Package events ingests domain events from Kafka and feeds them to the automation engine
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	businessflow "github.com/CHINMAYKUDALKAR/LINE-sub002/business_flow"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dto"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/config"
	"github.com/segmentio/kafka-go"
)

var ErrInvalidJob = errors.New("invalid automation job")

// MessageReader is the subset of *kafka.Reader the consumer needs
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TriggerProcessor runs automation rules for one event
type TriggerProcessor interface {
	ProcessTrigger(ctx context.Context, req *dto.ProcessTriggerRequest) (*dto.ProcessTriggerResponse, error)
}

// AutomationConsumer reads automation jobs from a topic and processes them
type AutomationConsumer struct {
	topic     string
	reader    MessageReader
	processor TriggerProcessor
	log       *slog.Logger
}

// NewReader builds a consumer-group reader from config
func NewReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
}

func NewAutomationConsumer(topic string, reader MessageReader, processor TriggerProcessor, log *slog.Logger) *AutomationConsumer {
	return &AutomationConsumer{topic: topic, reader: reader, processor: processor, log: log}
}

// Start consumes until ctx is cancelled or the reader is closed
func (c *AutomationConsumer) Start(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Warn("Failed to close kafka reader", slog.Any("error", err))
		}
	}()

	c.log.Info("Automation consumer started", slog.String("topic", c.topic))

	backoff := time.Second
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Context cancelled, stopping consumer")
				return ctx.Err()
			}
			if errors.Is(err, kafka.ErrGroupClosed) || errors.Is(err, context.Canceled) {
				return err
			}
			c.log.Error("Error fetching message", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if c.Handle(ctx, msg) {
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.log.Warn("Failed to commit offset", slog.Int64("offset", msg.Offset), slog.Any("error", err))
			}
		}
	}
}

// Handle processes one message and reports whether its offset should be committed.
// Undecodable jobs and jobs the engine rejects as invalid are committed and dropped.
func (c *AutomationConsumer) Handle(ctx context.Context, msg kafka.Message) bool {
	c.log.Debug("Message received",
		slog.String("topic", msg.Topic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)

	req, err := DecodeAutomationJob(msg.Value)
	if err != nil {
		c.log.Error("Failed to decode automation job", slog.Int64("offset", msg.Offset), slog.Any("error", err))
		return true
	}

	resp, err := c.processor.ProcessTrigger(ctx, req)
	if err != nil {
		if businessflow.IsValidation(err) {
			c.log.Warn("Automation job rejected", slog.String("trigger", req.Trigger), slog.Any("error", err))
			return true
		}
		c.log.Error("Automation job failed", slog.String("trigger", req.Trigger), slog.Any("error", err))
		return false
	}

	c.log.Info("Automation job processed",
		slog.Uint64("tenant_id", uint64(req.TenantID)),
		slog.String("trigger", req.Trigger),
		slog.Int("processed", resp.Processed),
		slog.Int("queued", resp.Queued),
	)
	return true
}

// entityContextKeys maps an event's entity type onto the context key the rule engine reads
var entityContextKeys = map[string]string{
	"candidate": businessflow.ContextKeyCandidateID,
	"interview": businessflow.ContextKeyInterviewID,
	"user":      businessflow.ContextKeyUserID,
}

// DecodeAutomationJob turns a job payload into a trigger request. The entity id
// fills in the matching context key unless the data already carries it.
func DecodeAutomationJob(raw []byte) (*dto.ProcessTriggerRequest, error) {
	var job dto.AutomationJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if job.TenantID == 0 {
		return nil, fmt.Errorf("%w: tenantId is required", ErrInvalidJob)
	}
	if strings.TrimSpace(job.Trigger) == "" {
		return nil, fmt.Errorf("%w: trigger is required", ErrInvalidJob)
	}

	data := make(map[string]any, len(job.Data)+1)
	maps.Copy(data, job.Data)
	if key, ok := entityContextKeys[strings.ToLower(job.EntityType)]; ok && job.EntityID != "" {
		if _, present := data[key]; !present {
			data[key] = job.EntityID
		}
	}

	return &dto.ProcessTriggerRequest{
		TenantID: job.TenantID,
		Trigger:  strings.ToUpper(strings.TrimSpace(job.Trigger)),
		Context:  data,
	}, nil
}
