package service

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/xid"
)

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Me returns the account of the calling user.
func (s *Service) Me(ctx context.Context) (domain.User, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.repo.Users().Get(ctx, actor.UserID)
	if err != nil {
		return domain.User{}, err
	}
	return *user, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if _, err := requireRole(ctx, adminOnly...); err != nil {
		return nil, err
	}
	return s.repo.Users().List(ctx)
}

func (s *Service) GetUser(ctx context.Context, id string) (domain.User, error) {
	if _, err := requireRole(ctx, adminOnly...); err != nil {
		return domain.User{}, err
	}
	user, err := s.repo.Users().Get(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	return *user, nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	if _, err := requireRole(ctx, adminOnly...); err != nil {
		return domain.User{}, err
	}
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	if err := s.check(req); err != nil {
		return domain.User{}, err
	}
	return s.createUser(ctx, req)
}

func (s *Service) createUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	hash, err := HashPassword(req.Password)
	if err != nil {
		return domain.User{}, err
	}
	now := s.now()
	created, err := s.repo.Users().Create(ctx, domain.User{
		ID:           xid.New("usr"),
		Username:     req.Username,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return domain.User{}, err
	}
	s.audit(ctx, "user_create", "user", created.ID)
	return *created, nil
}

func (s *Service) UpdateUser(ctx context.Context, id string, req domain.UserUpdateRequest) (domain.User, error) {
	actor, err := requireRole(ctx, adminOnly...)
	if err != nil {
		return domain.User{}, err
	}
	if req.Role != nil {
		role := strings.ToLower(strings.TrimSpace(*req.Role))
		req.Role = &role
	}
	if err := s.check(req); err != nil {
		return domain.User{}, err
	}
	existing, err := s.repo.Users().Get(ctx, id)
	if err != nil {
		return domain.User{}, err
	}

	if existing.ID == actor.UserID {
		if req.Active != nil && !*req.Active {
			return domain.User{}, invalid("active", "cannot deactivate your own account")
		}
		if req.Role != nil && *req.Role != domain.RoleAdmin {
			return domain.User{}, invalid("role", "cannot demote your own account")
		}
	}

	updated := *existing
	applyString(&updated.FullName, req.FullName)
	if req.Role != nil {
		updated.Role = *req.Role
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if req.Password != nil {
		hash, err := HashPassword(*req.Password)
		if err != nil {
			return domain.User{}, err
		}
		updated.PasswordHash = hash
	}
	updated.UpdatedAt = s.now()

	saved, err := s.repo.Users().Update(ctx, updated)
	if err != nil {
		return domain.User{}, err
	}
	s.audit(ctx, "user_update", "user", saved.ID)
	return *saved, nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	actor, err := requireRole(ctx, adminOnly...)
	if err != nil {
		return err
	}
	if id == actor.UserID {
		return invalid("id", "cannot delete your own account")
	}
	if err := s.repo.Users().Delete(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, "user_delete", "user", id)
	return nil
}

// EnsureAdmin creates an "admin" account when the store has no users at all.
// It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, password string) (bool, error) {
	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if len(password) < 8 {
		return false, invalid("SEED_ADMIN_PASSWORD", "must be at least 8 characters to bootstrap an admin")
	}
	if _, err := s.createUser(ctx, domain.UserCreateRequest{
		Username: "admin",
		Password: password,
		FullName: "Administrator",
		Role:     domain.RoleAdmin,
	}); err != nil {
		return false, err
	}
	return true, nil
}
