package services

import (
	"context"
	"log/slog"
	"time"

	"chirp/internal/core/contracts"
	"chirp/internal/core/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var cursorTracer = otel.Tracer("cursor-service")

type ICursorService interface {
	// MarkDelivered advances the receiver's delivered cursor to the message's
	// timestamp and, if it moved, tells the sender. Stale and duplicate
	// signals are silently discarded.
	MarkDelivered(ctx context.Context, messageID uuid.UUID) error
	// MarkRead is the same monotonic rule for the read cursor; on advance the
	// other participant is told.
	MarkRead(ctx context.Context, convID uuid.UUID, by string, at time.Time) error
	// ReconcileOnConnect recomputes delivered watermarks from durable message
	// history for everything that arrived while identity was disconnected.
	ReconcileOnConnect(ctx context.Context, identity string)
}

// CursorService maintains the per-conversation delivered/read watermarks.
// Cursors only move forward, which is what makes ReconcileOnConnect safe to
// run on every reconnect without double-notifying.
type CursorService struct {
	convRepo  domain.ConversationRepository
	msgRepo   domain.MessageRepository
	registry  contracts.Registry
	txManager contracts.TxManager
	log       *slog.Logger
}

func NewCursorService(
	log *slog.Logger,
	convRepo domain.ConversationRepository,
	msgRepo domain.MessageRepository,
	registry contracts.Registry,
	txManager contracts.TxManager,
) *CursorService {
	return &CursorService{
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		registry:  registry,
		txManager: txManager,
		log:       log,
	}
}

func (s *CursorService) MarkDelivered(ctx context.Context, messageID uuid.UUID) error {
	ctx, span := cursorTracer.Start(ctx, "CursorService.MarkDelivered", trace.WithAttributes(
		attribute.String("message_id", messageID.String()),
	))
	defer span.End()

	msg, err := s.msgRepo.GetMessageByID(ctx, messageID)
	if err != nil {
		span.RecordError(err)
		s.log.DebugContext(ctx, "cursors - mark delivered - unknown message", "message_id", messageID, "err", err)
		return err
	}

	var advanced bool
	if err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		var txErr error
		advanced, txErr = s.convRepo.AdvanceDeliveredCursor(txCtx, msg.ConversationID, msg.To, msg.CreatedAt)
		return txErr
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cursor advance failed")
		s.log.ErrorContext(ctx, "cursors - mark delivered - advance failed", "conv_id", msg.ConversationID, "by", msg.To, "err", err)
		return err
	}
	if !advanced {
		return nil
	}

	s.registry.Send(ctx, msg.From, domain.DeliveredEvent{
		Type:           domain.TypeDelivered,
		MessageID:      msg.ID.String(),
		ConversationID: msg.ConversationID.String(),
		By:             msg.To,
		At:             msg.CreatedAt,
	}, contracts.DeliveryDurable)
	s.log.InfoContext(ctx, "cursors - mark delivered - advanced", "conv_id", msg.ConversationID, "by", msg.To, "at", msg.CreatedAt)
	return nil
}

func (s *CursorService) MarkRead(ctx context.Context, convID uuid.UUID, by string, at time.Time) error {
	ctx, span := cursorTracer.Start(ctx, "CursorService.MarkRead", trace.WithAttributes(
		attribute.String("conv_id", convID.String()),
		attribute.String("by", by),
	))
	defer span.End()

	conv, err := s.convRepo.GetConversationByID(ctx, convID)
	if err != nil {
		span.RecordError(err)
		s.log.DebugContext(ctx, "cursors - mark read - unknown conversation", "conv_id", convID, "err", err)
		return err
	}
	if !conv.HasParticipant(by) {
		return domain.ErrNotParticipant
	}

	var advanced bool
	if err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		var txErr error
		advanced, txErr = s.convRepo.AdvanceReadCursor(txCtx, convID, by, at)
		return txErr
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cursor advance failed")
		s.log.ErrorContext(ctx, "cursors - mark read - advance failed", "conv_id", convID, "by", by, "err", err)
		return err
	}
	if !advanced {
		return nil
	}

	s.registry.Send(ctx, conv.Other(by), domain.ReadUpToEvent{
		Type:           domain.TypeReadUpTo,
		ConversationID: convID.String(),
		By:             by,
		At:             at,
	}, contracts.DeliveryDurable)
	s.log.InfoContext(ctx, "cursors - mark read - advanced", "conv_id", convID, "by", by, "at", at)
	return nil
}

// ReconcileOnConnect is the catch-up path for acknowledgments that were
// necessarily dropped while the recipient was offline. Ordinary delivered
// events are not safe to queue, so the watermark is recomputed from durable
// message history instead.
func (s *CursorService) ReconcileOnConnect(ctx context.Context, identity string) {
	ctx, span := cursorTracer.Start(ctx, "CursorService.ReconcileOnConnect", trace.WithAttributes(
		attribute.String("identity", identity),
	))
	defer span.End()

	heads, err := s.msgRepo.LatestInboundPerConversation(ctx, identity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inbound head query failed")
		s.log.ErrorContext(ctx, "cursors - reconcile - head query failed", "identity", identity, "err", err)
		return
	}
	span.SetAttributes(attribute.Int("conversation_count", len(heads)))

	for _, head := range heads {
		var advanced bool
		if err := s.txManager.WithTx(ctx, func(txCtx context.Context) error {
			var txErr error
			advanced, txErr = s.convRepo.AdvanceDeliveredCursor(txCtx, head.ConversationID, identity, head.At)
			return txErr
		}); err != nil {
			span.RecordError(err)
			s.log.ErrorContext(ctx, "cursors - reconcile - advance failed", "conv_id", head.ConversationID, "identity", identity, "err", err)
			continue
		}
		if !advanced {
			continue
		}
		s.registry.Send(ctx, head.From, domain.DeliveredEvent{
			Type:           domain.TypeDelivered,
			MessageID:      head.MessageID.String(),
			ConversationID: head.ConversationID.String(),
			By:             identity,
			At:             head.At,
		}, contracts.DeliveryDurable)
	}
	s.log.InfoContext(ctx, "cursors - reconcile - done", "identity", identity, "conversations", len(heads))
}
