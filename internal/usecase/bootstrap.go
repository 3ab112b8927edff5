package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/authz"
	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/infra/logger"
	"github.com/arklim/abac-auth-service/internal/repository"
)

const generatedPasswordBytes = 16

// BootstrapConfig names the accounts and roles created on first boot.
type BootstrapConfig struct {
	AdminEmail  string
	SystemEmail string
	AdminRole   string
	SystemRole  string
}

// Bootstrapper seeds the built-in accounts, roles and policies and builds the policy index.
// Every step is idempotent.
type Bootstrapper struct {
	users    port.UserRepository
	roles    port.RoleRepository
	policies port.PolicyStore
	index    *authz.Index
	hasher   PasswordHasher
	newToken TokenGenerator
	cfg      BootstrapConfig
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewBootstrapper(
	users port.UserRepository,
	roles port.RoleRepository,
	policies port.PolicyStore,
	index *authz.Index,
	hasher PasswordHasher,
	newToken TokenGenerator,
	cfg BootstrapConfig,
	log *zap.Logger,
) *Bootstrapper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bootstrapper{
		users:    users,
		roles:    roles,
		policies: policies,
		index:    index,
		hasher:   hasher,
		newToken: newToken,
		cfg:      cfg,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Run seeds accounts and the given policies, then builds the index when the policy
// table exists. Without the table the index stays empty and every protected resource is denied.
func (b *Bootstrapper) Run(ctx context.Context, seeds []PolicyInput) error {
	if err := b.seedAccount(ctx, b.cfg.AdminEmail, "Admin", b.cfg.AdminRole); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if err := b.seedAccount(ctx, b.cfg.SystemEmail, "System bot", b.cfg.SystemRole); err != nil {
		return fmt.Errorf("seed system bot: %w", err)
	}

	exists, err := b.policies.TableExists(ctx)
	if err != nil {
		return fmt.Errorf("check policy table: %w", err)
	}
	if !exists {
		b.logger.Warn("policy table missing; index left empty")
		return nil
	}

	if err := b.seedPolicies(ctx, seeds); err != nil {
		return fmt.Errorf("seed policies: %w", err)
	}

	if err := b.index.Rebuild(ctx); err != nil {
		return fmt.Errorf("build policy index: %w", err)
	}
	stats := b.index.Stats()
	b.logger.Info("policy index built", zap.Int("roles", stats.Roles), zap.Int("entries", stats.Entries))
	return nil
}

func (b *Bootstrapper) seedAccount(ctx context.Context, email, name, roleName string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}

	role, err := b.ensureRole(ctx, roleName)
	if err != nil {
		return err
	}

	user, err := b.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		user, err = b.createAccount(ctx, email, name)
		if err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("lookup %s: %w", logger.MaskEmail(email), err)
	}

	if role == nil {
		return nil
	}
	if err := b.roles.Assign(ctx, user.ID, role.ID); err != nil {
		return fmt.Errorf("assign role %s: %w", role.Name, err)
	}
	return nil
}

func (b *Bootstrapper) createAccount(ctx context.Context, email, name string) (*domain.User, error) {
	password, err := b.newToken(generatedPasswordBytes)
	if err != nil {
		return nil, fmt.Errorf("generate password: %w", err)
	}
	hash, err := b.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           b.newID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    b.now(),
	}
	if err := b.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	b.logger.Info("seeded account",
		zap.String("email", logger.MaskEmail(email)),
		zap.String("password", logger.MaskString(password)),
	)
	return &user, nil
}

func (b *Bootstrapper) ensureRole(ctx context.Context, name string) (*domain.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	role, err := b.roles.GetByName(ctx, name)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup role %s: %w", name, err)
	}

	created := domain.Role{ID: b.newID(), Name: name}
	if err := b.roles.Create(ctx, created); err != nil {
		return nil, fmt.Errorf("create role %s: %w", name, err)
	}
	return &created, nil
}

// seedPolicies stores the seeds whose (role, action key, grant) is not present yet.
func (b *Bootstrapper) seedPolicies(ctx context.Context, seeds []PolicyInput) error {
	if len(seeds) == 0 {
		return nil
	}

	existing, err := b.policies.GetAllWithConditions(ctx)
	if err != nil {
		return err
	}
	present := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		present[seedKey(p.RoleName, p.ActionKey, p.ActionValue)] = struct{}{}
	}

	builder := PolicyService{newID: b.newID}
	var missing []domain.Policy
	for _, seed := range seeds {
		key := seedKey(strings.TrimSpace(seed.RoleName), strings.TrimSpace(seed.ActionKey), seed.ActionValue)
		if _, ok := present[key]; ok {
			continue
		}
		policy, err := builder.buildPolicy(seed)
		if err != nil {
			return err
		}
		present[key] = struct{}{}
		missing = append(missing, policy)
	}

	if len(missing) == 0 {
		return nil
	}
	if err := b.policies.SaveBulk(ctx, missing); err != nil {
		return err
	}
	b.logger.Info("seeded policies", zap.Int("count", len(missing)))
	return nil
}

func seedKey(role, actionKey string, allow bool) string {
	return fmt.Sprintf("%s|%s|%t", role, actionKey, allow)
}
