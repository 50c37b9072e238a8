package repo

import (
	"context"
	"sync"
	"time"

	"github.com/ovaphlow/fridge/internal/user/entity"
)

// MemoryRepo keeps users in process memory. It is meant for development
// (STORE=memory) and tests; everything is lost on restart.
type MemoryRepo struct {
	mu      sync.RWMutex
	users   map[string]entity.User
	creds   map[string]entity.Credential
	byEmail map[string]string
	now     func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		users:   make(map[string]entity.User),
		creds:   make(map[string]entity.Credential),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (r *MemoryRepo) CountByEmail(ctx context.Context, email string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.byEmail[email]; ok {
		return 1, nil
	}
	return 0, nil
}

// CreateUserWithCredential stores the user and credential under one lock.
func (r *MemoryRepo) CreateUserWithCredential(ctx context.Context, nu entity.NewUser) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[nu.Email]; ok {
		return nil, ErrDuplicateEmail
	}
	if _, ok := r.users[nu.ID]; ok {
		return nil, ErrDuplicateEmail
	}
	u := entity.User{
		ID:        nu.ID,
		Email:     nu.Email,
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
		CreatedAt: r.now().UTC(),
	}
	r.users[u.ID] = u
	r.creds[u.ID] = nu.Credential
	r.byEmail[u.Email] = u.ID
	return &u, nil
}

func (r *MemoryRepo) FindByEmail(ctx context.Context, email string) (*entity.UserWithCredential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	out := &entity.UserWithCredential{User: r.users[id]}
	if c, ok := r.creds[id]; ok {
		out.Credential = &c
	}
	return out, nil
}

func (r *MemoryRepo) FindByID(ctx context.Context, id string) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// Delete removes a user and its credential.
func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.users, id)
	delete(r.creds, id)
	delete(r.byEmail, u.Email)
	return nil
}
