package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/aftab-edu/exam-studio-api/internal/models"
	appErrors "github.com/aftab-edu/exam-studio-api/pkg/errors"
)

type mockAuthRepo struct {
	users            map[string]*models.User
	refreshTokens    map[string]*models.RefreshToken
	created          []*models.User
	lastLoginUpdated bool
	passwordUpdated  string
	revokedAllFor    []string
}

func newMockAuthRepo(users ...*models.User) *mockAuthRepo {
	repo := &mockAuthRepo{
		users:         make(map[string]*models.User),
		refreshTokens: make(map[string]*models.RefreshToken),
	}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (m *mockAuthRepo) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	for _, u := range m.users {
		if u.Username == identifier || u.Email == identifier {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.passwordUpdated = passwordHash
	return nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "seed-1"
	}
	m.users[user.ID] = user
	m.created = append(m.created, user)
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAllFor = append(m.revokedAllFor, userID)
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if rt, ok := m.refreshTokens[token]; ok {
		return rt, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, rt := range m.refreshTokens {
		if rt.ID == id {
			rt.Revoked = true
			rt.RevokedAt = &revokedAt
		}
	}
	return nil
}

type mockActivityLog struct {
	entries []*models.ActivityLog
	err     error
}

func (m *mockActivityLog) Append(ctx context.Context, entry *models.ActivityLog) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "exam-studio",
	}
}

func teacherUser(t *testing.T) *models.User {
	return &models.User{
		ID:           "user-1",
		Username:     "m.karimi",
		Email:        "m.karimi@school.ir",
		PasswordHash: hashPassword(t, "secret123"),
		FullName:     "مریم کریمی",
		Role:         models.RoleTeacher,
		SchoolName:   "دبستان شهید بهشتی",
	}
}

func TestAuthServiceLoginByUsername(t *testing.T) {
	repo := newMockAuthRepo(teacherUser(t))
	activity := &mockActivityLog{}
	svc := NewAuthService(repo, activity, validator.New(), zap.NewNop(), testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Identifier: "m.karimi", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "دبستان شهید بهشتی", resp.User.SchoolName)
	assert.Equal(t, models.RoleTeacher, resp.User.Role)
	assert.True(t, repo.lastLoginUpdated)

	require.Len(t, activity.entries, 1)
	assert.Equal(t, models.ActivityLogin, activity.entries[0].Action)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "دبستان شهید بهشتی", claims.SchoolName)
}

func TestAuthServiceLoginByEmail(t *testing.T) {
	repo := newMockAuthRepo(teacherUser(t))
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Identifier: "m.karimi@school.ir", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, "m.karimi", resp.User.Username)
}

func TestAuthServiceLoginRejectsBadCredentials(t *testing.T) {
	repo := newMockAuthRepo(teacherUser(t))
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Identifier: "m.karimi", Password: "wrong"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{Identifier: "ghost", Password: "secret123"})
	require.Error(t, err)
	unknownErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, unknownErr.Code, "unknown user and bad password must be indistinguishable")
	assert.Equal(t, appErr.Message, unknownErr.Message)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	repo := newMockAuthRepo(teacherUser(t))
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Identifier: "m.karimi", Password: "secret123"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	old := repo.refreshTokens[login.RefreshToken]
	require.NotNil(t, old)
	assert.True(t, old.Revoked)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err, "used refresh token must be rejected")
}

func TestAuthServiceChangePasswordRevokesSessions(t *testing.T) {
	repo := newMockAuthRepo(teacherUser(t))
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "secret123",
		NewPassword: "newsecret",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, repo.passwordUpdated)
	assert.Contains(t, repo.revokedAllFor, "user-1")
}

func TestAuthServiceEnsureBootstrapAdmin(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	seed := BootstrapAdmin{
		Email:      "admin@network.ir",
		Password:   "bootstrap-pass",
		FullName:   "مدیر شبکه",
		SchoolName: "دفتر مرکزی",
	}
	require.NoError(t, svc.EnsureBootstrapAdmin(context.Background(), seed))
	require.Len(t, repo.created, 1)

	admin := repo.created[0]
	assert.Equal(t, models.RoleSuperAdmin, admin.Role)
	assert.Equal(t, "admin", admin.Username)
	assert.NotEqual(t, "bootstrap-pass", admin.PasswordHash, "seed password must be stored hashed")
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("bootstrap-pass")))

	// seeding again is a no-op
	require.NoError(t, svc.EnsureBootstrapAdmin(context.Background(), seed))
	assert.Len(t, repo.created, 1)
}

func TestAuthServiceEnsureBootstrapAdminSkipsWhenUnconfigured(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	require.NoError(t, svc.EnsureBootstrapAdmin(context.Background(), BootstrapAdmin{}))
	assert.Empty(t, repo.created)
}
