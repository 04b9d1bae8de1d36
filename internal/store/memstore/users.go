package memstore

import (
	"context"
	"sync"

	"github.com/example/slotmint/internal/domain/user"
	"github.com/example/slotmint/internal/internaltypes"
)

// Users keeps login accounts in memory for the memory store driver and tests.
type Users struct {
	mu    sync.RWMutex
	users map[string]user.User
}

func NewUsers() *Users { return &Users{users: map[string]user.User{}} }

func (u *Users) Create(ctx context.Context, usr user.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.users[usr.Username]; ok {
		return user.ErrUsernameTaken
	}
	u.users[usr.Username] = usr
	return nil
}

func (u *Users) GetByUsername(ctx context.Context, username string) (user.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	usr, ok := u.users[username]
	if !ok {
		return user.User{}, internaltypes.ErrNotFound
	}
	return usr, nil
}
