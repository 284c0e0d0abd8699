// Package service реализует сценарии платежей и заявок поверх хранилища:
// блокировку агрегата, вызов чистых переходов, сохранение состояния и
// событий одной транзакцией и публикацию событий после коммита.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderpay/internal/events"
	"github.com/mmeshcher/orderpay/internal/model"
	"github.com/mmeshcher/orderpay/internal/payment"
	"github.com/mmeshcher/orderpay/internal/repository"
)

// Store описывает контракт хранилища, используемый сервисом.
type Store interface {
	Close() error
	WithinTx(ctx context.Context, fn repository.TxFunc) error
	GetPayment(ctx context.Context, id uuid.UUID) (model.Payment, error)
	GetClaim(ctx context.Context, id uuid.UUID) (model.Claim, error)
	ListClaimsByOrder(ctx context.Context, orderID string) ([]model.Claim, error)
	Timeline(ctx context.Context, orderID string, f model.TimelineFilter) ([]model.OrderEvent, error)
}

// Options содержит зависимости сервиса. Пустые поля заменяются значениями по умолчанию.
type Options struct {
	Clock     model.Clock
	Machine   payment.Machine
	Publisher events.Publisher
	Logger    *zap.Logger
	// ClaimTimeout ограничивает операции над заявками, включая ожидание блокировок.
	ClaimTimeout time.Duration
	NewID        func() uuid.UUID
}

// Service содержит сценарии платёжного ядра.
type Service struct {
	store        Store
	clock        model.Clock
	machine      payment.Machine
	publisher    events.Publisher
	logger       *zap.Logger
	claimTimeout time.Duration
	newID        func() uuid.UUID
}

// NewService создаёт сервис поверх хранилища.
func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:        store,
		clock:        opts.Clock,
		machine:      opts.Machine,
		publisher:    opts.Publisher,
		logger:       opts.Logger,
		claimTimeout: opts.ClaimTimeout,
		newID:        opts.NewID,
	}
	if s.clock == nil {
		s.clock = model.SystemClock{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.publisher == nil {
		s.publisher = events.NewLogPublisher(s.logger)
	}
	if s.newID == nil {
		s.newID = uuid.New
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// publish отправляет закоммиченные события. Ошибка только логируется.
func (s *Service) publish(ctx context.Context, committed []model.OrderEvent) {
	if len(committed) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, committed); err != nil {
		s.logger.Warn("publish order events",
			zap.String("orderID", committed[0].OrderID),
			zap.Int("count", len(committed)),
			zap.Error(err))
	}
}

func (s *Service) withClaimTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.claimTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.claimTimeout)
}
