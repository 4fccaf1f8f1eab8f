package grants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/retail-authz/internal/events"
	"github.com/odyssey-erp/retail-authz/internal/menus"
	"github.com/odyssey-erp/retail-authz/internal/roles"
	"github.com/odyssey-erp/retail-authz/internal/shared"
)

// bulkModule namespaces bulk-grant idempotency keys.
const bulkModule = "grants.bulk"

// MaxBulkGrants caps a single bulk request.
const MaxBulkGrants = 500

// GrantInput is the request to create a grant.
type GrantInput struct {
	MenuID     string     `json:"menuId" validate:"required"`
	TargetType string     `json:"targetType" validate:"required,oneof=USER ROLE STORE HEADQUARTERS"`
	TargetID   string     `json:"targetId" validate:"required"`
	Permission string     `json:"permissionType" validate:"required,oneof=READ WRITE DELETE ADMIN"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

func (in GrantInput) normalized() GrantInput {
	in.MenuID = strings.TrimSpace(in.MenuID)
	in.TargetType = strings.ToUpper(strings.TrimSpace(in.TargetType))
	in.TargetID = strings.TrimSpace(in.TargetID)
	in.Permission = strings.ToUpper(strings.TrimSpace(in.Permission))
	return in
}

// MenuLookup resolves the current menu tree.
type MenuLookup interface {
	Tree(ctx context.Context) (*menus.Tree, error)
}

// IdempotencyGuard deduplicates bulk requests.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Page is one page of a grant listing.
type Page struct {
	Items      []Grant           `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// Service implements grant management: create, soft revoke, bulk create
// and paged listing.
type Service struct {
	repo        Repository
	menus       MenuLookup
	idempotency IdempotencyGuard
	publisher   events.Publisher
	logger      *slog.Logger
	validate    *validator.Validate
	now         func() time.Time
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Idempotency IdempotencyGuard
	Publisher   events.Publisher
	Logger      *slog.Logger
	Now         func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, menuLookup MenuLookup, cfg ServiceConfig) *Service {
	s := &Service{
		repo:        repo,
		menus:       menuLookup,
		idempotency: cfg.Idempotency,
		publisher:   cfg.Publisher,
		logger:      cfg.Logger,
		validate:    validator.New(),
		now:         cfg.Now,
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Grant validates input and stores a new active grant issued by actor.
func (s *Service) Grant(ctx context.Context, actor string, input GrantInput) (Grant, error) {
	tree, err := s.menus.Tree(ctx)
	if err != nil {
		return Grant{}, err
	}
	g, err := s.build(tree, actor, input)
	if err != nil {
		return Grant{}, err
	}
	created, err := s.repo.Create(ctx, g)
	if err != nil {
		return Grant{}, err
	}
	s.publishGranted(ctx, created)
	return created, nil
}

// BulkGrant creates all inputs atomically. A non-empty key makes the request
// idempotent: replays fail with shared.ErrIdempotencyConflict.
func (s *Service) BulkGrant(ctx context.Context, actor, key string, inputs []GrantInput) ([]Grant, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one grant required", shared.ErrValidation)
	}
	if len(inputs) > MaxBulkGrants {
		return nil, fmt.Errorf("%w: at most %d grants per request", shared.ErrValidation, MaxBulkGrants)
	}
	tree, err := s.menus.Tree(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]Grant, 0, len(inputs))
	for i, in := range inputs {
		g, err := s.build(tree, actor, in)
		if err != nil {
			return nil, fmt.Errorf("grants: bulk item %d: %w", i, err)
		}
		pending = append(pending, g)
	}

	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, bulkModule); err != nil {
			return nil, err
		}
	}
	created := make([]Grant, 0, len(pending))
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		for _, g := range pending {
			stored, err := tx.Create(ctx, g)
			if err != nil {
				return err
			}
			created = append(created, stored)
		}
		return nil
	})
	if err != nil {
		if key != "" && s.idempotency != nil {
			_ = s.idempotency.Delete(ctx, key, bulkModule)
		}
		return nil, err
	}
	for _, g := range created {
		s.publishGranted(ctx, g)
	}
	return created, nil
}

// Revoke soft-deletes a grant. Revoking an inactive grant is a no-op.
func (s *Service) Revoke(ctx context.Context, actor string, rawID string) (Grant, error) {
	id, err := ParsePermissionID(rawID)
	if err != nil {
		return Grant{}, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Grant{}, err
	}
	if !current.Active {
		return current, nil
	}
	revoked, err := s.repo.Deactivate(ctx, id, actor, s.now().UTC())
	if err != nil {
		return Grant{}, err
	}
	s.publish(ctx, events.NewPermissionRevoked(s.now(), events.PermissionRevoked{
		GrantID:   string(revoked.ID),
		MenuID:    string(revoked.MenuID),
		RevokedBy: actor,
	}))
	return revoked, nil
}

// List returns one page of grants.
func (s *Service) List(ctx context.Context, filter ListFilter, page, size int) (Page, error) {
	if filter.TargetType != "" && !filter.TargetType.Valid() {
		return Page{}, fmt.Errorf("%w: unknown target type %q", shared.ErrValidation, filter.TargetType)
	}
	p := shared.NewPagination(page, size, 0)
	items, total, err := s.repo.List(ctx, filter, p)
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []Grant{}
	}
	return Page{Items: items, Pagination: shared.NewPagination(p.Page, p.Size, total)}, nil
}

func (s *Service) build(tree *menus.Tree, actor string, input GrantInput) (Grant, error) {
	in := input.normalized()
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Grant{}, fmt.Errorf("%w: %s failed on %s", shared.ErrValidation, verrs[0].Field(), verrs[0].Tag())
		}
		return Grant{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if strings.TrimSpace(actor) == "" {
		return Grant{}, fmt.Errorf("%w: granting actor required", shared.ErrValidation)
	}
	menuID, err := menus.ParseMenuID(in.MenuID)
	if err != nil {
		return Grant{}, err
	}
	if _, ok := tree.Get(menuID); !ok {
		return Grant{}, fmt.Errorf("grants: menu %s: %w", menuID, shared.ErrUnknownMenu)
	}
	target := TargetType(in.TargetType)
	targetID := in.TargetID
	if target == TargetRole {
		role, err := roles.Parse(targetID)
		if err != nil {
			return Grant{}, err
		}
		targetID = string(role)
	}
	now := s.now().UTC()
	var expiresAt *time.Time
	if in.ExpiresAt != nil {
		if !in.ExpiresAt.After(now) {
			return Grant{}, fmt.Errorf("%w: expiresAt must be in the future", shared.ErrValidation)
		}
		t := in.ExpiresAt.UTC()
		expiresAt = &t
	}
	return Grant{
		ID:         NewPermissionID(),
		MenuID:     menuID,
		TargetType: target,
		TargetID:   targetID,
		Permission: PermissionType(in.Permission),
		GrantedAt:  now,
		GrantedBy:  actor,
		ExpiresAt:  expiresAt,
		Active:     true,
	}, nil
}

func (s *Service) publishGranted(ctx context.Context, g Grant) {
	s.publish(ctx, events.NewPermissionGranted(g.GrantedAt, events.PermissionGranted{
		GrantID:    string(g.ID),
		MenuID:     string(g.MenuID),
		TargetType: string(g.TargetType),
		TargetID:   g.TargetID,
		Permission: string(g.Permission),
		GrantedBy:  g.GrantedBy,
		ExpiresAt:  g.ExpiresAt,
	}))
}

// publish never fails the write that produced evt.
func (s *Service) publish(ctx context.Context, evt events.Event) {
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("grants publish event", slog.String("kind", string(evt.Kind)), slog.Any("error", err))
	}
}
