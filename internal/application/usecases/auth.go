package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/slotmint/internal/domain/user"
	"github.com/example/slotmint/internal/internaltypes"
)

type UserRepo interface {
	Create(ctx context.Context, u user.User) error
	GetByUsername(ctx context.Context, username string) (user.User, error)
}

type AuthService struct {
	Users UserRepo
	Log   *zap.Logger
}

// VerifyPassword returns internaltypes.ErrInvalidCredentials for both an
// unknown username and a wrong password.
func (a AuthService) VerifyPassword(ctx context.Context, username, password string) (user.User, error) {
	u, err := a.Users.GetByUsername(ctx, username)
	if errors.Is(err, internaltypes.ErrNotFound) {
		return user.User{}, internaltypes.ErrInvalidCredentials
	}
	if err != nil {
		return user.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return user.User{}, internaltypes.ErrInvalidCredentials
	}
	return u, nil
}

func (a AuthService) Register(ctx context.Context, username, password string) (user.User, error) {
	u, err := NewUser(username, password)
	if err != nil {
		return user.User{}, err
	}
	if err := a.Users.Create(ctx, u); err != nil {
		return user.User{}, fmt.Errorf("create user %q: %w", username, err)
	}
	logger(a.Log).Info("user registered", zap.String("username", username))
	return u, nil
}

func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

func NewUser(username, password string) (user.User, error) {
	if err := user.ValidateUsername(username); err != nil {
		return user.User{}, err
	}
	if err := user.ValidatePassword(password); err != nil {
		return user.User{}, err
	}
	h, err := HashPassword(password)
	if err != nil {
		return user.User{}, err
	}
	return user.User{
		ID:           "u_" + uuid.NewString(),
		Username:     username,
		PasswordHash: h,
		CreatedAt:    time.Now().UTC(),
	}, nil
}
