package auth

import (
	"context"
	"fmt"
	"slices"

	"fieldline/internal/config"
	"fieldline/internal/domain"
	"fieldline/internal/repo"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

func (e ForbiddenError) Unwrap() error {
	return domain.ErrForbidden
}

// Service resolves users to the permissions their role grants in config.
type Service struct {
	Repo   repo.Repo
	Config *config.Config
}

// UserPermissions loads username and returns its role and permissions.
func (s Service) UserPermissions(ctx context.Context, username string) (domain.User, []string, error) {
	u, err := s.Repo.GetUser(ctx, nil, username)
	if err != nil {
		return domain.User{}, nil, fmt.Errorf("user %s: %w", username, err)
	}
	return u, s.RolePermissions(u.Role), nil
}

func (s Service) RolePermissions(role string) []string {
	if s.Config == nil {
		return nil
	}
	return s.Config.Permissions([]string{role})
}

// Require returns ForbiddenError when perm is not in granted.
func Require(granted []string, perm string) error {
	if slices.Contains(granted, perm) {
		return nil
	}
	return ForbiddenError{Permission: perm}
}
