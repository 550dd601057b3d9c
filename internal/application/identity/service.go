package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jdfresh/backend/internal/domain/identity"
	"github.com/jdfresh/backend/internal/domain/shared"
	"github.com/jdfresh/backend/internal/infrastructure/auth"
)

// Service handles account registration and authentication
type Service struct {
	users     identity.Repository
	jwt       *auth.JWTService
	blacklist auth.TokenBlacklist
	logger    *zap.Logger
}

// NewService creates a new identity Service
func NewService(users identity.Repository, jwt *auth.JWTService, blacklist auth.TokenBlacklist, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{users: users, jwt: jwt, blacklist: blacklist, logger: logger}
}

// Register creates a customer account and signs it in
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if existing, err := s.users.FindByEmail(ctx, email); err == nil && existing != nil {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "An account with this email already exists")
	} else if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	u, err := identity.NewUser(req.Name, email, req.Phone, req.Password, identity.RoleCustomer)
	if err != nil {
		return nil, err
	}
	if err := s.users.Save(ctx, u); err != nil {
		return nil, err
	}

	tokens, err := s.issueTokens(u)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Account registered", zap.String("user_id", u.ID.String()))
	return &AuthResponse{User: ToUserResponse(u), Tokens: tokens}, nil
}

// Login authenticates an account by email and password. Unknown emails
// and wrong passwords produce the same error.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("UNAUTHORIZED", "Invalid email or password")
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, shared.NewDomainError("UNAUTHORIZED", "Account is disabled")
	}
	if !u.CheckPassword(req.Password) {
		return nil, shared.NewDomainError("UNAUTHORIZED", "Invalid email or password")
	}

	tokens, err := s.issueTokens(u)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Account signed in", zap.String("user_id", u.ID.String()))
	return &AuthResponse{User: ToUserResponse(u), Tokens: tokens}, nil
}

// Refresh exchanges a valid refresh token for a new token pair
func (s *Service) Refresh(ctx context.Context, req *RefreshRequest) (*auth.TokenPair, error) {
	claims, err := s.jwt.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		return nil, shared.NewDomainError("UNAUTHORIZED", "Invalid refresh token")
	}
	if s.blacklist != nil {
		revoked, err := s.blacklist.IsBlacklisted(ctx, claims.ID)
		if err == nil && revoked {
			return nil, shared.NewDomainError("UNAUTHORIZED", "Refresh token has been revoked")
		}
	}

	userID, err := claims.GetUserUUID()
	if err != nil {
		return nil, shared.NewDomainError("UNAUTHORIZED", "Invalid refresh token")
	}

	// Re-read the account so disabled users stop refreshing
	u, err := s.users.FindByID(ctx, userID)
	if err != nil || !u.IsActive {
		return nil, shared.NewDomainError("UNAUTHORIZED", "Account is disabled")
	}

	return s.issueTokens(u)
}

// Logout revokes the access token for the rest of its lifetime
func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	if s.blacklist == nil {
		return nil
	}
	return s.blacklist.AddToBlacklist(ctx, claims.ID, claims.GetRemainingTTL())
}

// Me returns the authenticated account
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ToUserResponse(u), nil
}

func (s *Service) issueTokens(u *identity.User) (*auth.TokenPair, error) {
	return s.jwt.GenerateTokenPair(auth.GenerateTokenInput{
		UserID: u.ID,
		Name:   u.Name,
		Role:   string(u.Role),
	})
}
