package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"stockledger/internal/cache"
	"stockledger/internal/domain"
	"stockledger/internal/ledger"
)

var ErrForbidden = errors.New("role not permitted")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Loyalty holds the points economy: one point per EarnRateCents spent, each
// redeemed point worth RedeemValueCents.
type Loyalty struct {
	EarnRateCents    int64
	RedeemValueCents int64
}

func DefaultLoyalty() Loyalty {
	return Loyalty{EarnRateCents: 10000, RedeemValueCents: 10}
}

type Options struct {
	Loyalty     Loyalty
	ReportCache cache.ReportCache
	ReportTTL   time.Duration
	Logger      zerolog.Logger
}

type Service struct {
	ledger    *ledger.Ledger
	validate  *validator.Validate
	loyalty   Loyalty
	reports   cache.ReportCache
	reportTTL time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

func New(l *ledger.Ledger, opts Options) *Service {
	if opts.Loyalty.EarnRateCents < 1 {
		opts.Loyalty.EarnRateCents = DefaultLoyalty().EarnRateCents
	}
	if opts.Loyalty.RedeemValueCents < 0 {
		opts.Loyalty.RedeemValueCents = 0
	}
	if opts.ReportCache == nil {
		opts.ReportCache = cache.NoopReportCache{}
	}
	if opts.ReportTTL <= 0 {
		opts.ReportTTL = 5 * time.Minute
	}
	return &Service{
		ledger:    l,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		loyalty:   opts.Loyalty,
		reports:   opts.ReportCache,
		reportTTL: opts.ReportTTL,
		log:       opts.Logger.With().Str("component", "service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Ledger() *ledger.Ledger {
	return s.ledger
}

func (s *Service) Locations() []domain.Location {
	return s.ledger.Locations()
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ledger.ErrInvalidRequest, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", ledger.ErrInvalidRequest, err)
	}
	return nil
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}

func requireRole(ctx context.Context, roles ...string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: no authenticated actor", ErrForbidden)
	}
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrForbidden, actor.Role)
}

func requireManager(ctx context.Context) error {
	return requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
}
