package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/kitties/internal/balance"
	"github.com/smallbiznis/kitties/internal/clock"
	"github.com/smallbiznis/kitties/internal/config"
	"github.com/smallbiznis/kitties/internal/events"
	"github.com/smallbiznis/kitties/internal/kitty/domain"
	"github.com/smallbiznis/kitties/internal/lock"
	"github.com/smallbiznis/kitties/internal/observability/logger"
	"github.com/smallbiznis/kitties/internal/observability/metrics"
	"github.com/smallbiznis/kitties/internal/observability/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	opCreate   = "create"
	opTransfer = "transfer"

	defaultLockTimeout = 5 * time.Second
)

type Params struct {
	fx.In

	Store   domain.Store
	Locker  lock.Locker
	Clock   clock.Clock
	Limits  domain.Limits
	Config  config.Config
	Log     *zap.Logger
	Sink    events.Sink      `optional:"true"`
	Balance balance.Reader   `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	store       domain.Store
	locker      lock.Locker
	clock       clock.Clock
	limits      domain.Limits
	sink        events.Sink
	balance     balance.Reader
	metrics     *metrics.Metrics
	log         *zap.Logger
	tracer      trace.Tracer
	lockTimeout time.Duration
}

func New(p Params) domain.Service {
	lockTimeout := p.Config.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &Service{
		store:       p.Store,
		locker:      p.Locker,
		clock:       p.Clock,
		limits:      p.Limits,
		sink:        p.Sink,
		balance:     p.Balance,
		metrics:     p.Metrics,
		log:         p.Log.Named("kitty.service"),
		tracer:      otel.Tracer("kitties/registry"),
		lockTimeout: lockTimeout,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Kitty, error) {
	ctx, span := s.startSpan(ctx, opCreate)
	defer span.End()

	caller, err := domain.ParsePrincipal(string(req.Caller))
	if err != nil {
		return domain.Kitty{}, s.reject(ctx, span, opCreate, domain.ErrUnauthenticated)
	}
	if req.Price < 0 {
		return domain.Kitty{}, s.reject(ctx, span, opCreate, domain.ErrInvalidPrice)
	}

	log := logger.WithContext(ctx, s.log).With(zap.String("caller", caller.String()))
	s.logBalance(ctx, log, caller)

	release, err := s.acquire(ctx, opCreate, ownerKey(caller))
	if err != nil {
		return domain.Kitty{}, s.reject(ctx, span, opCreate, err)
	}
	defer release()

	var created domain.Kitty
	err = s.store.RunInTx(ctx, func(tx domain.Tx) error {
		owned, err := tx.Owners().Get(ctx, caller)
		if err != nil {
			return err
		}
		if len(owned) >= s.limits.MaxOwned() {
			return domain.ErrCapacityExceeded
		}

		id, err := tx.IDs().Next(ctx)
		if err != nil {
			return err
		}

		kitty := domain.Kitty{
			ID:        id,
			Dna:       append([]byte{}, req.Dna...),
			Owner:     caller,
			Price:     req.Price,
			Gender:    domain.DeriveGender(req.Dna),
			CreatedAt: s.clock.Now().Unix(),
		}
		if err := tx.Records().Put(ctx, kitty); err != nil {
			return err
		}
		if err := tx.Owners().Put(ctx, caller, append(owned, kitty)); err != nil {
			return err
		}

		created = kitty
		return nil
	})
	if err != nil {
		return domain.Kitty{}, s.reject(ctx, span, opCreate, err)
	}

	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("kitty.id", created.ID.String()),
		attribute.String("kitty.outcome", "ok"),
	)...)
	s.metrics.RecordKittyCreated(ctx, string(created.Gender))
	log.Info("kitty created",
		zap.Uint32("kitty_id", uint32(created.ID)),
		zap.String("gender", string(created.Gender)),
	)

	s.emit(ctx, events.Event{
		Kind:       events.KindKittyCreated,
		Subject:    created.ID.String(),
		Principals: []string{caller.String()},
		Payload: map[string]any{
			"id":     uint32(created.ID),
			"owner":  caller.String(),
			"dna":    base64.StdEncoding.EncodeToString(created.Dna),
			"price":  created.Price,
			"gender": string(created.Gender),
		},
	})

	return created.Clone(), nil
}

// Transfer moves a record from caller to req.NewOwner. Transferring to
// oneself validates ownership and otherwise changes nothing.
func (s *Service) Transfer(ctx context.Context, req domain.TransferRequest) error {
	ctx, span := s.startSpan(ctx, opTransfer)
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(attribute.String("kitty.id", req.KittyID.String()))...)

	caller, err := domain.ParsePrincipal(string(req.Caller))
	if err != nil {
		return s.reject(ctx, span, opTransfer, domain.ErrUnauthenticated)
	}
	newOwner, err := domain.ParsePrincipal(string(req.NewOwner))
	if err != nil {
		return s.reject(ctx, span, opTransfer, domain.ErrInvalidPrincipal)
	}
	if req.KittyID == 0 {
		return s.reject(ctx, span, opTransfer, domain.ErrNotFound)
	}

	release, err := s.acquire(ctx, opTransfer, kittyKey(req.KittyID), ownerKey(caller), ownerKey(newOwner))
	if err != nil {
		return s.reject(ctx, span, opTransfer, err)
	}
	defer release()

	selfTransfer := caller == newOwner
	err = s.store.RunInTx(ctx, func(tx domain.Tx) error {
		kitty, err := tx.Records().Get(ctx, req.KittyID)
		if err != nil {
			return err
		}
		if kitty == nil {
			return domain.ErrNotFound
		}
		if kitty.Owner != caller {
			return domain.ErrNotOwner
		}
		if selfTransfer {
			return nil
		}

		from, err := tx.Owners().Get(ctx, caller)
		if err != nil {
			return err
		}
		to, err := tx.Owners().Get(ctx, newOwner)
		if err != nil {
			return err
		}
		if len(to)+1 > s.limits.MaxOwned() {
			return domain.ErrCapacityExceeded
		}

		moved := kitty.Clone()
		moved.Owner = newOwner

		if err := tx.Records().Put(ctx, moved); err != nil {
			return err
		}
		if err := tx.Owners().Put(ctx, caller, removeKitty(from, req.KittyID)); err != nil {
			return err
		}
		return tx.Owners().Put(ctx, newOwner, append(to, moved))
	})
	if err != nil {
		return s.reject(ctx, span, opTransfer, err)
	}

	span.SetAttributes(tracing.SafeAttributes(attribute.String("kitty.outcome", "ok"))...)
	s.metrics.RecordKittyTransferred(ctx, selfTransfer)
	log := logger.WithContext(ctx, s.log)
	if selfTransfer {
		log.Debug("self transfer ignored", zap.Uint32("kitty_id", uint32(req.KittyID)))
		return nil
	}
	log.Info("kitty transferred",
		zap.Uint32("kitty_id", uint32(req.KittyID)),
		zap.String("from", caller.String()),
		zap.String("to", newOwner.String()),
	)

	s.emit(ctx, events.Event{
		Kind:       events.KindKittyTransferred,
		Subject:    req.KittyID.String(),
		Principals: []string{caller.String(), newOwner.String()},
		Payload: map[string]any{
			"id":   uint32(req.KittyID),
			"from": caller.String(),
			"to":   newOwner.String(),
		},
	})
	return nil
}

// GetRecord returns nil when id was never allocated.
func (s *Service) GetRecord(ctx context.Context, id domain.KittyID) (*domain.Kitty, error) {
	if id == 0 {
		return nil, nil
	}
	var out *domain.Kitty
	err := s.store.View(ctx, func(tx domain.Tx) error {
		kitty, err := tx.Records().Get(ctx, id)
		if err != nil {
			return err
		}
		out = kitty
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListOwned never fails for a principal that cannot own anything; it simply
// owns nothing.
func (s *Service) ListOwned(ctx context.Context, principal domain.PrincipalID) ([]domain.Kitty, error) {
	owner, err := domain.ParsePrincipal(string(principal))
	if err != nil {
		return []domain.Kitty{}, nil
	}
	var out []domain.Kitty
	err = s.store.View(ctx, func(tx domain.Tx) error {
		owned, err := tx.Owners().Get(ctx, owner)
		if err != nil {
			return err
		}
		out = owned
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Kitty{}
	}
	return out, nil
}

func (s *Service) acquire(ctx context.Context, operation string, keys ...string) (lock.Release, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	start := time.Now()
	release, err := s.locker.Acquire(lockCtx, keys...)
	s.metrics.RecordLockWait(ctx, operation, time.Since(start))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrLockUnavailable, err)
	}
	return release, nil
}

func (s *Service) logBalance(ctx context.Context, log *zap.Logger, caller domain.PrincipalID) {
	if s.balance == nil {
		return
	}
	total, err := s.balance.TotalBalance(ctx, caller.String())
	if err != nil {
		log.Warn("balance lookup failed", zap.Error(err))
		return
	}
	log.Debug("caller balance", zap.Int64("total_balance", total))
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if s.sink == nil {
		return
	}
	s.sink.Emit(context.WithoutCancel(ctx), event)
}

func (s *Service) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "kitty."+operation)
	span.SetAttributes(tracing.SafeAttributes(attribute.String("kitty.operation", operation))...)
	return ctx, span
}

func (s *Service) reject(ctx context.Context, span trace.Span, operation string, err error) error {
	reason := rejectReason(err)
	span.SetAttributes(tracing.SafeAttributes(attribute.String("kitty.outcome", reason))...)
	if reason == "internal" {
		span.SetStatus(codes.Error, "internal")
		if safeErr := tracing.SafeError(err); safeErr != nil {
			span.RecordError(safeErr)
		}
		logger.WithContext(ctx, s.log).Error("kitty operation failed",
			zap.String("operation", operation),
			zap.Error(err),
		)
	}
	s.metrics.RecordRejected(ctx, operation, reason)
	return err
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, domain.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrNotOwner):
		return "not_owner"
	case errors.Is(err, domain.ErrInvalidPrincipal), errors.Is(err, domain.ErrInvalidPrice):
		return "invalid_input"
	case errors.Is(err, domain.ErrLockUnavailable):
		return "lock_unavailable"
	case errors.Is(err, domain.ErrIDSpaceExhausted):
		return "id_space_exhausted"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}

// removeKitty filters id out of items, keeping the order of the rest.
func removeKitty(items []domain.Kitty, id domain.KittyID) []domain.Kitty {
	out := make([]domain.Kitty, 0, len(items))
	for _, item := range items {
		if item.ID != id {
			out = append(out, item)
		}
	}
	return out
}

func ownerKey(p domain.PrincipalID) string {
	return "owner:" + string(p)
}

func kittyKey(id domain.KittyID) string {
	return "kitty:" + id.String()
}
