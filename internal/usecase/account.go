package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/eco-collect/internal/auth"
	"github.com/example/eco-collect/internal/logging"
	"github.com/example/eco-collect/internal/repository"
	"github.com/example/eco-collect/internal/security"
	"github.com/example/eco-collect/internal/validators"
)

// UserRepository defines the persistence operations on user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *repository.User) error
	FindByID(ctx context.Context, id uint) (*repository.User, error)
	FindByEmail(ctx context.Context, email string) (*repository.User, error)
	SetResetToken(ctx context.Context, userID uint, token string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, token, passwordHash string, now time.Time) error
	SetProfileImage(ctx context.Context, userID uint, ref string) error
}

// PasswordHasher hashes and verifies credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// AccountUseCase covers registration, login and password recovery.
type AccountUseCase struct {
	users           UserRepository
	hasher          PasswordHasher
	resetTTL        time.Duration
	allowPrivileged bool
	logger          *zap.Logger
	now             func() time.Time
}

// AccountPolicy holds the account settings.
type AccountPolicy struct {
	ResetTTL time.Duration
	// AllowPrivilegedSignup lets a registration pick the corporate or admin role.
	AllowPrivilegedSignup bool
}

// RegisterInput is the body of a registration request.
type RegisterInput struct {
	UserName      string
	Email         string
	Password      string
	Role          string
	TermsApproved bool
}

func NewAccountUseCase(users UserRepository, hasher PasswordHasher, policy AccountPolicy, logger *zap.Logger) *AccountUseCase {
	return &AccountUseCase{
		users:           users,
		hasher:          hasher,
		resetTTL:        policy.ResetTTL,
		allowPrivileged: policy.AllowPrivilegedSignup,
		logger:          logger.Named("account_usecase"),
		now:             time.Now,
	}
}

// Register creates a new account. Email and username must both be unused.
func (uc *AccountUseCase) Register(ctx context.Context, in RegisterInput) (*repository.User, error) {
	in.UserName = strings.TrimSpace(in.UserName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := validators.UserNameValidator(in.UserName); err != nil {
		return nil, invalid(err.Error())
	}
	if err := validators.EmailValidator(in.Email); err != nil {
		return nil, invalid(err.Error())
	}
	if err := validators.PasswordValidator(in.Password); err != nil {
		return nil, invalid(err.Error())
	}

	role := repository.RoleCivilian
	if in.Role != "" {
		role = repository.Role(strings.ToLower(in.Role))
		if !role.Valid() {
			return nil, invalid("unknown role")
		}
		if role != repository.RoleCivilian && !uc.allowPrivileged {
			return nil, invalid("role not available for self-registration")
		}
	}

	hash, err := uc.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &repository.User{
		UserName:      in.UserName,
		Email:         in.Email,
		PasswordHash:  hash,
		Role:          role,
		TermsApproved: in.TermsApproved,
	}
	err = uc.users.Create(ctx, user)
	switch {
	case errors.Is(err, repository.ErrEmailTaken):
		return nil, invalid("Email already registered")
	case errors.Is(err, repository.ErrUserNameTaken):
		return nil, invalid("Username already taken")
	case errors.Is(err, repository.ErrDuplicate):
		return nil, invalid("Email or username already registered")
	case err != nil:
		return nil, err
	}

	logging.WithOperation(uc.logger, "usecase.register", logging.RequestIDFromContext(ctx)).
		Info("user registered", zap.Uint("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Login checks the credentials and returns the account they belong to.
func (uc *AccountUseCase) Login(ctx context.Context, email, password string) (*repository.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, invalid("email and password are required")
	}

	user, err := uc.users.FindByEmail(ctx, email)
	if repository.IsNotFound(err) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := uc.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		uc.logger.Warn("stored password hash is unreadable", zap.Uint("user_id", user.ID), zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Me returns the account of identity, or nil for anonymous callers and
// sessions whose account no longer exists.
func (uc *AccountUseCase) Me(ctx context.Context, identity *auth.Identity) (*repository.User, error) {
	if identity == nil {
		return nil, nil
	}
	user, err := uc.users.FindByID(ctx, identity.UserID)
	if repository.IsNotFound(err) {
		return nil, nil
	}
	return user, err
}

// ForgotPassword issues a single-use reset token for the account of email.
func (uc *AccountUseCase) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", invalid("email is required")
	}

	user, err := uc.users.FindByEmail(ctx, email)
	if repository.IsNotFound(err) {
		return "", &NotFoundError{Resource: "User"}
	}
	if err != nil {
		return "", err
	}

	token, err := security.NewResetToken()
	if err != nil {
		return "", err
	}
	if err := uc.users.SetResetToken(ctx, user.ID, token, uc.now().UTC().Add(uc.resetTTL)); err != nil {
		return "", logging.NewOperationError("usecase.forgot_password", logging.RequestIDFromContext(ctx), err)
	}
	return token, nil
}

// ResetPassword sets a new password using a reset token and invalidates the
// token.
func (uc *AccountUseCase) ResetPassword(ctx context.Context, token, password string) error {
	if err := validators.PasswordValidator(password); err != nil {
		return invalid(err.Error())
	}
	if strings.TrimSpace(token) == "" {
		return invalid("Invalid or expired token")
	}

	hash, err := uc.hasher.Hash(password)
	if err != nil {
		return err
	}

	err = uc.users.ConsumeResetToken(ctx, token, hash, uc.now().UTC())
	if repository.IsNotFound(err) {
		return invalid("Invalid or expired token")
	}
	return err
}
