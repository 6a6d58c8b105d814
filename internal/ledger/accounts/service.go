package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/tindahan-erp/tindahan-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	List(ctx context.Context) ([]Account, error)
	ListActive(ctx context.Context) ([]Account, error)
	Get(ctx context.Context, id int64) (Account, error)
	Create(ctx context.Context, account Account) (int64, error)
	Deactivate(ctx context.Context, id int64) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the chart of accounts and keeps the role registry fresh.
type Service struct {
	repo     RepositoryPort
	registry *Registry
	audit    AuditPort
}

// NewService constructs the accounts service.
func NewService(repo RepositoryPort, registry *Registry, audit AuditPort) *Service {
	return &Service{repo: repo, registry: registry, audit: audit}
}

// List returns the full chart of accounts.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

// CreateInput describes a new account.
type CreateInput struct {
	Code   string
	Name   string
	Role   Role
	Type   Type
	Active bool
}

// Create inserts the account and reloads the registry.
func (s *Service) Create(ctx context.Context, input CreateInput) (Account, error) {
	if input.Code == "" || input.Name == "" {
		return Account{}, fmt.Errorf("accounts: code and name required")
	}
	if input.Role != "" && !input.Role.Valid() {
		return Account{}, fmt.Errorf("%w: %q", ErrInvalidRole, input.Role)
	}
	account := Account{Code: input.Code, Name: input.Name, Role: input.Role, Type: input.Type, Active: input.Active}
	id, err := s.repo.Create(ctx, account)
	if err != nil {
		return Account{}, err
	}
	account.ID = id
	if err := s.reload(ctx); err != nil {
		return Account{}, err
	}
	s.recordAudit(ctx, "account.create", id, map[string]any{"code": account.Code, "role": string(account.Role)})
	return account, nil
}

// Deactivate soft-deletes the account and reloads the registry.
func (s *Service) Deactivate(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	if err := s.reload(ctx); err != nil {
		return err
	}
	s.recordAudit(ctx, "account.deactivate", id, map[string]any{"actor_id": actorID})
	return nil
}

// Reload rebuilds the role registry, retrying transient read failures.
func (s *Service) Reload(ctx context.Context) error {
	return s.reload(ctx)
}

func (s *Service) reload(ctx context.Context) error {
	if s.registry == nil {
		return nil
	}
	_, err := shared.RetryRead(ctx, 3, 200*time.Millisecond, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.registry.Reload(ctx)
	})
	return err
}

func (s *Service) recordAudit(ctx context.Context, action string, accountID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "account",
		EntityID: fmt.Sprintf("%d", accountID),
		Meta:     meta,
	})
}
