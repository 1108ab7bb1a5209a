package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateUsername indicates the username is already registered.
	ErrDuplicateUsername = errors.New("users: username already taken")
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("users: email already registered")
	// ErrInvalidCredentials covers both unknown usernames and wrong passwords.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrUserNotFound indicates no account exists for the requested id.
	ErrUserNotFound = errors.New("users: user not found")

	errMissingDatabase = errors.New("users: database connection required")
	errMissingUsername = errors.New("users: username required")
	errMissingEmail    = errors.New("users: email required")
	errMissingPassword = errors.New("users: password required")
)

// ServiceConfig describes the dependencies required by the account service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service manages account registration and credential verification.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// Register creates an account with a bcrypt password digest. Uniqueness of
// username and email is checked inside the insert transaction so a conflict
// never leaves a partial row behind.
func (s *Service) Register(ctx context.Context, username, email, password string) (uint, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" {
		return 0, errMissingUsername
	}
	if email == "" {
		return 0, errMissingEmail
	}
	if password == "" {
		return 0, errMissingPassword
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("users: hash password: %w", err)
	}

	account := User{
		Username:     username,
		Email:        email,
		PasswordHash: string(digest),
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return fmt.Errorf("users: username lookup: %w", err)
		}
		if count > 0 {
			return ErrDuplicateUsername
		}
		if err := tx.Model(&User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return fmt.Errorf("users: email lookup: %w", err)
		}
		if count > 0 {
			return ErrDuplicateEmail
		}
		return tx.Create(&account).Error
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrDuplicateUsername) && !errors.Is(txErr, ErrDuplicateEmail) {
			s.logger.Error("account registration failed", zap.String("username", username), zap.Error(txErr))
		}
		return 0, txErr
	}

	s.logger.Info("account registered", zap.Uint("user_id", account.ID), zap.String("username", username))
	return account.ID, nil
}

// Authenticate verifies the supplied credentials and returns the account id.
// Unknown usernames and wrong passwords both yield ErrInvalidCredentials so
// callers cannot distinguish which field was wrong.
func (s *Service) Authenticate(ctx context.Context, username, password string) (uint, error) {
	var account User
	err := s.db.WithContext(ctx).
		Where("username = ?", strings.TrimSpace(username)).
		Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrInvalidCredentials
	}
	if err != nil {
		s.logger.Error("credential lookup failed", zap.Error(err))
		return 0, fmt.Errorf("users: credential lookup: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return 0, ErrInvalidCredentials
	}
	return account.ID, nil
}

// Get loads the account for the provided id.
func (s *Service) Get(ctx context.Context, id uint) (User, error) {
	var account User
	err := s.db.WithContext(ctx).Take(&account, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: account lookup: %w", err)
	}
	return account, nil
}
