package services

import (
	"context"
	"errors"

	"github.com/migoVanDingo/ed-user-management/domain"
	apierrors "github.com/migoVanDingo/ed-user-management/errors"
	"github.com/migoVanDingo/ed-user-management/log"
)

// UserService is the plain CRUD surface around the user store. It carries no
// protocol logic; its only policy is the allow-listed update set.
type UserService struct {
	users  domain.UserRepository
	logger log.Logger
}

func NewUserService(users domain.UserRepository, logger log.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

// CreateUserInput is the explicit payload for administrative user creation.
type CreateUserInput struct {
	Email      string `json:"email"`
	Username   string `json:"username,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	if input.Email == "" {
		return nil, apierrors.NewBadRequest(apierrors.CodeMissingField, "email is required")
	}
	username := input.Username
	if username == "" {
		username = usernameFromEmail(input.Email)
	}

	user := &domain.User{
		Email:      input.Email,
		Username:   username,
		ExternalID: input.ExternalID,
	}
	created, err := s.users.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, apierrors.NewBadRequest(apierrors.CodeDuplicateUser, "user already exists")
		}
		return nil, apierrors.FromError(err)
	}
	return created, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apierrors.NewNotFound(apierrors.CodeUserNotFound, "unknown user")
		}
		return nil, apierrors.FromError(err)
	}
	return user, nil
}

func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apierrors.NewNotFound(apierrors.CodeUserNotFound, "unknown user")
		}
		return nil, apierrors.FromError(err)
	}
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, apierrors.FromError(err)
	}
	return users, nil
}

// UpdateUser applies an allow-listed update. An update that would change
// nothing is rejected rather than silently accepted.
func (s *UserService) UpdateUser(ctx context.Context, id string, update domain.UserUpdate) (*domain.User, error) {
	if update.Empty() {
		return nil, apierrors.NewBadRequest(apierrors.CodeEmptyUpdate, "no updatable fields in payload")
	}
	user, err := s.users.UpdateUser(ctx, id, update)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return nil, apierrors.NewNotFound(apierrors.CodeUserNotFound, "unknown user")
		case errors.Is(err, domain.ErrDuplicate):
			return nil, apierrors.NewBadRequest(apierrors.CodeDuplicateUser, "email already in use")
		default:
			return nil, apierrors.FromError(err)
		}
	}
	return user, nil
}

func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	if err := s.users.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apierrors.NewNotFound(apierrors.CodeUserNotFound, "unknown user")
		}
		return apierrors.FromError(err)
	}
	s.logger.Info(ctx, "User deleted", map[string]interface{}{"user_id": id})
	return nil
}
