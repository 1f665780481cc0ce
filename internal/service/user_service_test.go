package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/carnet-api/internal/models"
	"github.com/noah-isme/carnet-api/internal/repository"
	appErrors "github.com/noah-isme/carnet-api/pkg/errors"
)

type userRepoStub struct {
	existing  *models.User
	createErr error
	created   *models.User
}

func (s *userRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.existing != nil && s.existing.Email == email {
		return s.existing, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = user
	return nil
}

func newTestUserService(repo *userRepoStub) *UserService {
	svc := NewUserService(repo, nil, nil)
	svc.hashCost = bcrypt.MinCost
	return svc
}

func TestUserServiceCreate(t *testing.T) {
	repo := &userRepoStub{}
	svc := newTestUserService(repo)

	user, err := svc.Create(context.Background(), CreateUserRequest{Email: " Ops@Example.com", FullName: "Ops", Role: models.RoleOperator, Password: "secret123"}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", user.Email)
	assert.True(t, user.Active)
	require.NotNil(t, repo.created)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.created.PasswordHash), []byte("secret123")))
}

func TestUserServiceCreateRejectsUnknownRole(t *testing.T) {
	svc := newTestUserService(&userRepoStub{})
	_, err := svc.Create(context.Background(), CreateUserRequest{Email: "a@x.com", FullName: "A", Role: "AUDITOR", Password: "secret123"}, "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestUserServiceCreateDuplicate(t *testing.T) {
	svc := newTestUserService(&userRepoStub{existing: &models.User{Email: "a@x.com"}})
	_, err := svc.Create(context.Background(), CreateUserRequest{Email: "A@x.com", FullName: "A", Role: models.RoleAdmin, Password: "secret123"}, "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	svc = newTestUserService(&userRepoStub{createErr: repository.ErrDuplicateEmail})
	_, err = svc.Create(context.Background(), CreateUserRequest{Email: "b@x.com", FullName: "B", Role: models.RoleAdmin, Password: "secret123"}, "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}
