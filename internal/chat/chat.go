// Package chat stores the messages teams send each other in a room.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/cricket-auction/internal/auctionerrors"
	"github.com/jensholdgaard/cricket-auction/internal/store"
)

const (
	// MaxLength is the longest message accepted, in characters.
	MaxLength = 500
	// HistoryLimit is how many recent messages List returns.
	HistoryLimit = 100
)

// Service handles room chat.
type Service struct {
	rooms    store.RoomRepository
	messages store.ChatRepository
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewService returns a new chat Service.
func NewService(rooms store.RoomRepository, messages store.ChatRepository, logger *slog.Logger, tp trace.TracerProvider) *Service {
	return &Service{
		rooms:    rooms,
		messages: messages,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/cricket-auction/internal/chat"),
	}
}

func (s *Service) room(ctx context.Context, code string) (*store.Room, error) {
	r, err := s.rooms.GetByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, auctionerrors.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading room %s: %w", code, err)
	}
	return r, nil
}

// Send posts a message to a room.
func (s *Service) Send(ctx context.Context, code, sender, message string) (*store.ChatMessage, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Send",
		trace.WithAttributes(
			attribute.String("room", code),
			attribute.String("sender", sender),
		),
	)
	defer span.End()

	sender, message = strings.TrimSpace(sender), strings.TrimSpace(message)
	if sender == "" || message == "" {
		return nil, auctionerrors.Validation("Missing data")
	}
	if utf8.RuneCountInString(message) > MaxLength {
		return nil, auctionerrors.Validation("Message longer than %d characters", MaxLength)
	}

	r, err := s.room(ctx, code)
	if err != nil {
		return nil, err
	}
	m := &store.ChatMessage{RoomID: r.ID, Sender: sender, Message: message}
	if err := s.messages.Append(ctx, m); err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}

	s.logger.DebugContext(ctx, "chat message sent",
		slog.String("room", code),
		slog.String("sender", sender),
	)
	return m, nil
}

// List returns the room's recent messages, oldest first.
func (s *Service) List(ctx context.Context, code string) ([]store.ChatMessage, error) {
	r, err := s.room(ctx, code)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByRoom(ctx, r.ID, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}
