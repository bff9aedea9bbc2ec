package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/civicfix/civicfix-api/internal/dto"
	"github.com/civicfix/civicfix-api/internal/models"
	appErrors "github.com/civicfix/civicfix-api/pkg/errors"
)

type userStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)
	Upsert(ctx context.Context, user *models.User) error
	UpdateRole(ctx context.Context, id string, role models.UserRole, department *string) error
	ListByDepartment(ctx context.Context, department string) ([]models.User, error)
}

// UserService validates provider identity tokens and maintains the local user
// mirror. Password handling lives entirely with the external provider.
type UserService struct {
	users  userStore
	secret []byte
	issuer string
	logger *zap.Logger
}

// NewUserService constructs the service.
func NewUserService(users userStore, secret, issuer string, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, secret: []byte(secret), issuer: issuer, logger: logger}
}

// ValidateToken parses and validates a provider identity token.
func (s *UserService) ValidateToken(tokenString string) (*models.ProviderClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.ProviderClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.ProviderClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.Subject == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token missing subject")
	}
	return claims, nil
}

// Authenticate resolves validated claims to the local user, creating the
// mirror row with the CITIZEN role on first sight of a provider uid.
func (s *UserService) Authenticate(ctx context.Context, tokenString string) (*models.AuthContext, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByExternalID(ctx, claims.Subject)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve user")
		}
		user, err = s.createFromClaims(ctx, claims)
		if err != nil {
			return nil, err
		}
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "account deactivated")
	}

	return &models.AuthContext{
		UserID:     user.ID,
		ExternalID: user.ExternalID,
		Email:      user.Email,
		Role:       user.Role,
	}, nil
}

// Sync refreshes the caller's profile from the provider claims plus the
// optional payload. Role and department stay admin-managed.
func (s *UserService) Sync(ctx context.Context, auth *models.AuthContext, req dto.SyncUserRequest) (*models.User, error) {
	displayName := req.DisplayName
	if displayName == "" {
		displayName = auth.Email
	}
	now := time.Now().UTC()
	user := &models.User{
		ExternalID:  auth.ExternalID,
		Email:       auth.Email,
		DisplayName: displayName,
		Role:        models.RoleCitizen,
		Active:      true,
		LastSeen:    &now,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sync user")
	}
	return user, nil
}

// Profile returns the stored user record.
func (s *UserService) Profile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// UpdateRole changes a user's role, optionally attaching a department for
// government staff.
func (s *UserService) UpdateRole(ctx context.Context, userID string, role models.UserRole, department *string) error {
	switch role {
	case models.RoleCitizen, models.RoleGovernment, models.RoleAdmin:
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}
	if role == models.RoleGovernment && (department == nil || *department == "") {
		return appErrors.Clone(appErrors.ErrValidation, "government users require a department")
	}
	if err := s.users.UpdateRole(ctx, userID, role, department); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}
	return nil
}

func (s *UserService) createFromClaims(ctx context.Context, claims *models.ProviderClaims) (*models.User, error) {
	displayName := claims.Name
	if displayName == "" {
		displayName = claims.Email
	}
	now := time.Now().UTC()
	user := &models.User{
		ExternalID:  claims.Subject,
		Email:       claims.Email,
		DisplayName: displayName,
		Role:        models.RoleCitizen,
		Active:      true,
		LastSeen:    &now,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}
	s.logger.Info("user created from provider claims",
		zap.String("external_id", claims.Subject),
		zap.String("email", claims.Email))
	return user, nil
}
