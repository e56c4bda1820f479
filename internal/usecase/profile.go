package usecase

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/example/eco-collect/internal/auth"
	"github.com/example/eco-collect/internal/logging"
	"github.com/example/eco-collect/internal/repository"
	"github.com/example/eco-collect/internal/storage"
	"github.com/example/eco-collect/internal/validators"
)

// Profile is the public view of the caller's account.
type Profile struct {
	ID            uint            `json:"id"`
	UserName      string          `json:"name"`
	Email         string          `json:"email"`
	Role          repository.Role `json:"role"`
	PointScore    int64           `json:"points"`
	ProfileImage  *string         `json:"avatar"`
	TermsApproved bool            `json:"terms_approved"`
	MemberSince   string          `json:"memberSince"`
}

// ProfileUseCase serves the caller's profile and avatar.
type ProfileUseCase struct {
	users   UserRepository
	avatars storage.AvatarStore
	allowed []string
	logger  *zap.Logger
}

func NewProfileUseCase(users UserRepository, avatars storage.AvatarStore, allowedExtensions []string, logger *zap.Logger) *ProfileUseCase {
	return &ProfileUseCase{
		users:   users,
		avatars: avatars,
		allowed: allowedExtensions,
		logger:  logger.Named("profile_usecase"),
	}
}

func (uc *ProfileUseCase) Get(ctx context.Context, identity *auth.Identity) (*Profile, error) {
	if identity == nil {
		return nil, ErrNotAuthenticated
	}

	user, err := uc.users.FindByID(ctx, identity.UserID)
	if repository.IsNotFound(err) {
		return nil, &NotFoundError{Resource: "User"}
	}
	if err != nil {
		return nil, err
	}

	return &Profile{
		ID:            user.ID,
		UserName:      user.UserName,
		Email:         user.Email,
		Role:          user.Role,
		PointScore:    user.PointScore,
		ProfileImage:  user.ProfileImage,
		TermsApproved: user.TermsApproved,
		MemberSince:   user.CreatedAt.Format("January 2006"),
	}, nil
}

// UploadAvatar stores a new profile image for the caller and returns its
// reference.
func (uc *ProfileUseCase) UploadAvatar(ctx context.Context, identity *auth.Identity, filename, contentType string, body io.Reader) (string, error) {
	if identity == nil {
		return "", ErrNotAuthenticated
	}
	if !validators.AllowedExtension(filename, uc.allowed) {
		return "", invalid("File type not allowed")
	}
	requestID := logging.RequestIDFromContext(ctx)

	key, err := storage.NewAvatarKey(identity.UserID, validators.Extension(filename))
	if err != nil {
		return "", err
	}

	ref, err := uc.avatars.Save(ctx, key, contentType, body)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.save_avatar", requestID, err)
		logging.WithOperation(uc.logger, "usecase.upload_avatar", requestID).Error("failed to store avatar", zap.Error(wrapped))
		return "", wrapped
	}

	if err := uc.users.SetProfileImage(ctx, identity.UserID, ref); err != nil {
		if repository.IsNotFound(err) {
			return "", &NotFoundError{Resource: "User"}
		}
		return "", logging.NewOperationError("usecase.set_profile_image", requestID, err)
	}
	return ref, nil
}

// OpenAvatar returns the stored image named filename.
func (uc *ProfileUseCase) OpenAvatar(ctx context.Context, filename string) (io.ReadCloser, error) {
	rc, err := uc.avatars.Open(ctx, filename)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &NotFoundError{Resource: "File"}
	}
	return rc, err
}
