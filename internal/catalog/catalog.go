package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/circuitbreaker"
)

// Validator resolves a product id to its current price and availability.
// Missing products yield a *domain.ProductError wrapping domain.ErrNotFound;
// unavailable ones return the product together with a *domain.ProductError
// wrapping domain.ErrUnavailable.
type Validator interface {
	Validate(ctx context.Context, productID string) (*domain.Product, error)
}

type productReader interface {
	GetAllProducts(ctx context.Context) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type Service struct {
	repo     productReader
	timeout  time.Duration
	breaker  *circuitbreaker.Breaker[*domain.Product]
	listCall *circuitbreaker.Breaker[[]*domain.Product]
}

func NewService(repo productReader, timeout time.Duration, logger *slog.Logger) *Service {
	expected := func(err error) bool {
		return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUnavailable)
	}
	return &Service{
		repo:    repo,
		timeout: timeout,
		breaker: circuitbreaker.New[*domain.Product](circuitbreaker.Settings{
			Name:   "catalog",
			Ignore: expected,
			Logger: logger,
		}),
		listCall: circuitbreaker.New[[]*domain.Product](circuitbreaker.Settings{
			Name:   "catalog-list",
			Logger: logger,
		}),
	}
}

func (s *Service) Validate(ctx context.Context, productID string) (*domain.Product, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.breaker.Execute(func() (*domain.Product, error) {
		p, err := s.repo.GetProduct(ctx, productID)
		if errors.Is(err, ErrProductNotFound) {
			return nil, &domain.ProductError{ProductID: productID, Kind: domain.ErrNotFound}
		}
		if err != nil {
			return nil, err
		}
		if !p.Available {
			return p, &domain.ProductError{ProductID: productID, Kind: domain.ErrUnavailable}
		}
		return p, nil
	})
	if err != nil {
		var perr *domain.ProductError
		if errors.As(err, &perr) {
			return p, err
		}
		return nil, fmt.Errorf("catalog lookup %s: %w: %w", productID, domain.ErrDependency, err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]*domain.Product, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	products, err := s.listCall.Execute(func() ([]*domain.Product, error) {
		return s.repo.GetAllProducts(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("catalog list: %w: %w", domain.ErrDependency, err)
	}
	return products, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
