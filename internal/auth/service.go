package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenStimCore/internal/config"
	"go.uber.org/zap"
)

type Permission string

const (
	PermMonitor   Permission = "monitor"
	PermOperate   Permission = "operate"
	PermConfigure Permission = "configure"
)

const (
	RoleOperator = "operator"
	RoleMachine  = "machine"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type AuthService struct {
	enabled          bool
	jwtHandler       *JWTHandler
	passwordHasher   *PasswordHasher
	machineTokens    *MachineTokens
	operatorUsername string
	operatorHash     string
	logger           *zap.Logger
}

func NewAuthService(cfg config.AuthConfig, logger *zap.Logger) (*AuthService, error) {
	tokens, err := NewMachineTokens(cfg.MachineTokenHashes)
	if err != nil {
		return nil, err
	}

	if cfg.Enabled && !cfg.IsProductionReady() {
		logger.Warn("JWT secret is not production ready", zap.String("env", cfg.JWTSecretEnv))
	}

	return &AuthService{
		enabled:          cfg.Enabled,
		jwtHandler:       NewJWTHandler(cfg.GetJWTSecret(), cfg.AccessTokenTTL),
		passwordHasher:   NewPasswordHasher(),
		machineTokens:    tokens,
		operatorUsername: cfg.OperatorUsername,
		operatorHash:     cfg.OperatorPasswordHash,
		logger:           logger,
	}, nil
}

func (a *AuthService) Enabled() bool { return a.enabled }

// Login checks the operator credentials and returns an access token.
func (a *AuthService) Login(username, password string) (string, time.Time, error) {
	if a.operatorHash == "" || username != a.operatorUsername {
		a.logger.Warn("Operator login failed", zap.String("username", username))
		return "", time.Time{}, ErrInvalidCredentials
	}

	valid, err := a.passwordHasher.VerifyPassword(password, a.operatorHash)
	if err != nil {
		a.logger.Error("Operator password hash unusable", zap.Error(err))
		return "", time.Time{}, ErrInvalidCredentials
	}
	if !valid {
		a.logger.Warn("Operator login failed", zap.String("username", username))
		return "", time.Time{}, ErrInvalidCredentials
	}

	token, expiresAt, err := a.jwtHandler.GenerateAccessToken(username, RoleOperator)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate access token: %w", err)
	}
	a.logger.Info("Operator logged in", zap.String("username", username))
	return token, expiresAt, nil
}

// ValidateToken accepts an operator JWT or a configured machine token.
func (a *AuthService) ValidateToken(token string) ([]Permission, error) {
	if claims, err := a.jwtHandler.ValidateAccessToken(token); err == nil {
		return roleToPermissions(claims.Role), nil
	}
	if a.machineTokens.Accepts(token) {
		return roleToPermissions(RoleMachine), nil
	}
	return nil, fmt.Errorf("invalid token")
}

func roleToPermissions(role string) []Permission {
	switch role {
	case RoleOperator:
		return []Permission{PermMonitor, PermOperate, PermConfigure}
	case RoleMachine:
		return []Permission{PermMonitor, PermOperate}
	default:
		return []Permission{PermMonitor}
	}
}

// AllPermissions is granted to every request when auth is disabled.
func AllPermissions() []Permission {
	return roleToPermissions(RoleOperator)
}
