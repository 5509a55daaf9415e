package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/aftab-edu/exam-studio-api/internal/models"
	appErrors "github.com/aftab-edu/exam-studio-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

type activityRecorder interface {
	Append(ctx context.Context, entry *models.ActivityLog) error
}

// CreateUserRequest is the payload for provisioning an account.
type CreateUserRequest struct {
	Username   string          `json:"username" validate:"required,min=3"`
	Email      string          `json:"email" validate:"required,email"`
	Password   string          `json:"password" validate:"required,min=6"`
	FullName   string          `json:"full_name" validate:"required"`
	Role       models.UserRole `json:"role" validate:"required,oneof=super_admin admin teacher"`
	SchoolName string          `json:"school_name"`
}

// UpdateUserRequest carries the editable profile fields. Role and school
// moves are reserved to super admins.
type UpdateUserRequest struct {
	FullName   string           `json:"full_name" validate:"required"`
	Role       *models.UserRole `json:"role"`
	SchoolName *string          `json:"school_name"`
}

// UserService provides account management scoped by the caller's role.
type UserService struct {
	repo      userRepository
	activity  activityRecorder
	cache     summaryInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(repo userRepository, activity activityRecorder, cache summaryInvalidator, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, activity: activity, cache: cache, validator: validate, logger: logger}
}

// List returns users visible to the viewer with pagination metadata.
func (s *UserService) List(ctx context.Context, viewer *models.JWTClaims, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	scope, ok := UserScope(viewer)
	if !ok {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient role to list users")
	}
	if scope != "" {
		filter.SchoolName = scope
	}
	if viewer.Role == models.RoleAdmin {
		super := models.RoleSuperAdmin
		filter.ExcludeRole = &super
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a single user if the viewer's scope covers them.
func (s *UserService) Get(ctx context.Context, viewer *models.JWTClaims, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	scope, ok := UserScope(viewer)
	if !ok && viewer.UserID != user.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient role to view user")
	}
	if ok && scope != "" && user.SchoolName != scope {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}

	return user, nil
}

// Create provisions a new account. Admins may only create teachers for their
// own school; the school is stamped from the admin when omitted.
func (s *UserService) Create(ctx context.Context, actor *models.JWTClaims, req CreateUserRequest) (*models.User, error) {
	if req.SchoolName == "" && actor.Role == models.RoleAdmin {
		req.SchoolName = actor.SchoolName
	}
	req.SchoolName = strings.TrimSpace(req.SchoolName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	// A school-bound account without a school would escape every visibility
	// filter, so the gap is closed here as well as in CanCreateUser.
	if req.Role != models.RoleSuperAdmin && req.SchoolName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school_name is required for admin and teacher accounts")
	}

	if !CanCreateUser(actor, req.Role, req.SchoolName) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to create this account")
	}

	if _, err := s.repo.FindByIdentifier(ctx, req.Username); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "username already taken")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username")
	}
	if _, err := s.repo.FindByIdentifier(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
		SchoolName:   req.SchoolName,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.record(ctx, actor, models.ActivityAddUser, user.FullName)
	invalidateSummary(ctx, s.cache, s.logger)

	return user, nil
}

// Update edits an account's profile. Admins rename their own school's
// teachers; role and school moves require a super admin and never strand an
// account without a school.
func (s *UserService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	target, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if !CanUpdateUser(actor, target) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to edit this account")
	}

	if req.Role != nil || req.SchoolName != nil {
		if actor.Role != models.RoleSuperAdmin {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only a super admin may change role or school")
		}
		if req.Role != nil && actor.UserID == target.ID && *req.Role != target.Role {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot change own role")
		}
	}

	target.FullName = req.FullName
	if req.Role != nil {
		if !req.Role.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
		}
		target.Role = *req.Role
	}
	if req.SchoolName != nil {
		target.SchoolName = strings.TrimSpace(*req.SchoolName)
	}
	if target.Role != models.RoleSuperAdmin && target.SchoolName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school_name is required for admin and teacher accounts")
	}

	if err := s.repo.Update(ctx, target); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.record(ctx, actor, models.ActivityUpdateUser, target.FullName)
	invalidateSummary(ctx, s.cache, s.logger)

	return target, nil
}

// Delete removes an account. Self deletion and privilege escalation paths are
// rejected; deleting revokes the target's sessions first.
func (s *UserService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	target, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if !CanDeleteUser(actor, target) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete this account")
	}

	if err := s.repo.RevokeUserRefreshTokens(ctx, target.ID); err != nil {
		s.logger.Warn("failed to revoke sessions of deleted user", zap.Error(err))
	}

	if err := s.repo.Delete(ctx, target.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.record(ctx, actor, models.ActivityDeleteUser, target.FullName)
	invalidateSummary(ctx, s.cache, s.logger)

	return nil
}

func (s *UserService) record(ctx context.Context, actor *models.JWTClaims, action, details string) {
	if s.activity == nil {
		return
	}
	entry := &models.ActivityLog{
		UserID:     actor.UserID,
		UserName:   actor.FullName,
		SchoolName: actor.SchoolName,
		Action:     action,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.activity.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to record activity", zap.String("action", action), zap.Error(err))
	}
}
