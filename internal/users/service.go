package users

import (
	"context"

	"github.com/odyssey-erp/retail-authz/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	FindByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context, page shared.Pagination) ([]User, int, error)
}

// Page is one page of the account listing.
type Page struct {
	Items      []User            `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// Service handles user business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns one page of accounts.
func (s *Service) ListUsers(ctx context.Context, page, size int) (Page, error) {
	p := shared.NewPagination(page, size, 0)
	items, total, err := s.repo.ListUsers(ctx, p)
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []User{}
	}
	return Page{Items: items, Pagination: shared.NewPagination(p.Page, p.Size, total)}, nil
}
