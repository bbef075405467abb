package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go-news-cms/internal/event"
	"go-news-cms/internal/model"
)

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

// AuditService persists every bus event as an audit entry and serves the
// audit query endpoint.
type AuditService struct {
	store AuditStore
}

func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store}
}

// Run consumes the bus until ctx ends or the subscription closes.
func (s *AuditService) Run(ctx context.Context, bus event.Bus) {
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			s.Record(ctx, e)
		}
	}
}

func (s *AuditService) Record(ctx context.Context, e event.Event) {
	if s == nil || s.store == nil {
		return
	}

	entry := model.AuditEntry{
		ID:         e.ID,
		Action:     string(e.Type),
		OccurredAt: e.Timestamp,
		Actor: model.AuditActor{
			UserID:    e.ActorID,
			IP:        e.IP,
			UserAgent: e.UserAgent,
		},
		Status:    e.Outcome,
		SubjectID: e.SubjectID,
		Details:   e.Payload,
	}

	// The request that produced the event may already be gone.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.store.Log(writeCtx, entry); err != nil {
		slog.Error("failed to write audit entry", "action", entry.Action, "error", err)
	}
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 200 {
		query.Limit = 200
	}

	if err := validateAuditTime(query.From); err != nil {
		return nil, model.Meta{}, model.ErrInvalidInput.WithMessage("invalid 'from' datetime format").WithDetails(query.From)
	}
	if err := validateAuditTime(query.To); err != nil {
		return nil, model.Meta{}, model.ErrInvalidInput.WithMessage("invalid 'to' datetime format").WithDetails(query.To)
	}

	return s.store.Query(ctx, query)
}

func validateAuditTime(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	_, err := time.Parse(time.RFC3339, value)
	return err
}
