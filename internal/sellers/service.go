package sellers

import (
	"context"
	"fmt"
	"strings"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id int64) (*Seller, error) {
	return s.repo.Get(ctx, id)
}

// Exists reports whether the seller is known, active or not.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := s.repo.Get(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Service) List(ctx context.Context) ([]Seller, error) {
	return s.repo.List(ctx)
}

func (s *Service) Create(ctx context.Context, name string, taxID *string) (*Seller, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("seller name is required")
	}
	id, err := s.repo.Create(ctx, name, taxID)
	if err != nil {
		return nil, fmt.Errorf("create seller: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Deactivate marks the seller inactive. Counters and schemes are kept:
// the numbering history stays auditable after offboarding.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	return s.repo.SetActive(ctx, id, false)
}
