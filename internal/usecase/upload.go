package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/example/eco-collect/internal/auth"
	"github.com/example/eco-collect/internal/classifier"
	"github.com/example/eco-collect/internal/logging"
	"github.com/example/eco-collect/internal/repository"
)

// UploadRepository defines the persistence operations needed by the upload flow.
type UploadRepository interface {
	Create(ctx context.Context, upload *repository.Upload) error
	FindByID(ctx context.Context, id uint) (*repository.Upload, error)
	ListByUser(ctx context.Context, userID uint) ([]repository.Upload, error)
	ListHistory(ctx context.Context, userID uint) ([]repository.Upload, error)
	ListAll(ctx context.Context, notVerified *bool) ([]repository.Upload, error)
	Approve(ctx context.Context, id, approverID uint, now time.Time) (*repository.Approval, error)
	FindDuplicatesByHash(ctx context.Context, hash string, excludeID uint) ([]repository.Upload, error)
	AggregateStats(ctx context.Context) (*repository.UploadStats, error)
	CategoryCounts(ctx context.Context) ([]repository.CategoryCount, error)
}

// CentreLookup resolves the centres an upload may reference.
type CentreLookup interface {
	Exists(ctx context.Context, id uint) (bool, error)
	ListByName(ctx context.Context) ([]repository.Center, error)
}

// UploadUseCase encapsulates the submission, listing and approval of uploads.
type UploadUseCase struct {
	uploads    UploadRepository
	centres    CentreLookup
	classifier *ClassificationService
	fs         afero.Fs
	workDir    string
	logger     *zap.Logger
	now        func() time.Time
}

// SubmitInput is a validated upload request. Body is read once.
type SubmitInput struct {
	Filename string
	Body     io.Reader
	Weight   *float64
	CentreID *uint
	Preview  bool
}

// SubmitResult is the outcome of Submit. Upload is nil for previews.
type SubmitResult struct {
	Category      string
	Confidence    float64
	PointsAwarded int64
	Preview       bool
	Upload        *repository.Upload
}

// ApprovalResult is the outcome of Approve.
type ApprovalResult struct {
	Message         string
	AlreadyVerified bool
	PointScore      *int64
	Upload          repository.Upload
}

// DuplicateReport lists uploads sharing the image of one upload.
type DuplicateReport struct {
	Upload     *repository.Upload
	Duplicates []repository.Upload
}

// NewUploadUseCase constructs a new use case instance. Submitted files are
// staged in workDir on fs.
func NewUploadUseCase(uploads UploadRepository, centres CentreLookup, classification *ClassificationService, fs afero.Fs, workDir string, logger *zap.Logger) (*UploadUseCase, error) {
	if err := fs.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload work dir: %w", err)
	}
	return &UploadUseCase{
		uploads:    uploads,
		centres:    centres,
		classifier: classification,
		fs:         fs,
		workDir:    workDir,
		logger:     logger.Named("upload_usecase"),
		now:        time.Now,
	}, nil
}

// Submit classifies the submitted image and, unless it is a preview, stores
// it as an unverified upload of the caller.
func (uc *UploadUseCase) Submit(ctx context.Context, identity *auth.Identity, in SubmitInput) (*SubmitResult, error) {
	if identity == nil {
		return nil, ErrNotAuthenticated
	}
	requestID := logging.RequestIDFromContext(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.submit_upload", requestID)

	if in.Weight != nil && *in.Weight < 0 {
		return nil, invalid("weight must not be negative")
	}

	if in.CentreID != nil {
		exists, err := uc.centres.Exists(ctx, *in.CentreID)
		if err != nil {
			return nil, logging.NewOperationError("usecase.lookup_centre", requestID, err)
		}
		if !exists {
			return nil, &NotFoundError{Resource: "Centre"}
		}
	}

	filename := SecureFilename(in.Filename)
	image, err := uc.stage(filename, in.Body)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.stage_upload", requestID, err)
		opLogger.Error("failed to stage upload", zap.Error(wrapped))
		return nil, wrapped
	}

	result, hash := uc.classifier.Classify(ctx, image)
	points := classifier.Points(result.Confidence)

	out := &SubmitResult{
		Category:      result.Category,
		Confidence:    result.Confidence,
		PointsAwarded: points,
		Preview:       in.Preview,
	}
	if in.Preview {
		return out, nil
	}

	upload := &repository.Upload{
		UserID:        identity.UserID,
		UserName:      identity.UserName,
		FilenameURL:   filename,
		ImageSHA1:     hash,
		Weight:        in.Weight,
		CentreID:      in.CentreID,
		Category:      result.Category,
		Confidence:    result.Confidence,
		PointsAwarded: points,
		NotVerified:   true,
	}
	if err := uc.uploads.Create(ctx, upload); err != nil {
		wrapped := logging.NewOperationError("usecase.save_upload", requestID, err)
		opLogger.Error("failed to persist upload", zap.Error(wrapped))
		return nil, wrapped
	}

	opLogger.Info("upload stored",
		zap.Uint("upload_id", upload.ID),
		zap.String("category", upload.Category),
		zap.Int64("points", upload.PointsAwarded),
	)
	out.Upload = upload
	return out, nil
}

// stage writes body to the work dir, reads it back and removes it again.
func (uc *UploadUseCase) stage(filename string, body io.Reader) ([]byte, error) {
	path := filepath.Join(uc.workDir, uuid.NewString()+"_"+filename)

	f, err := uc.fs.Create(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := uc.fs.Remove(path); err != nil {
			uc.logger.Warn("failed to remove staged upload", zap.String("path", path), zap.Error(err))
		}
	}()

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	return afero.ReadFile(uc.fs, path)
}

// ListMine returns the uploads of the caller, newest first.
func (uc *UploadUseCase) ListMine(ctx context.Context, identity *auth.Identity) ([]repository.Upload, error) {
	if identity == nil {
		return nil, ErrNotAuthenticated
	}
	return uc.uploads.ListByUser(ctx, identity.UserID)
}

// History returns the uploads of the caller with their centres.
func (uc *UploadUseCase) History(ctx context.Context, identity *auth.Identity) ([]repository.Upload, error) {
	if identity == nil {
		return nil, ErrNotAuthenticated
	}
	return uc.uploads.ListHistory(ctx, identity.UserID)
}

// ListAll returns every upload, optionally filtered on the verification flag.
func (uc *UploadUseCase) ListAll(ctx context.Context, identity *auth.Identity, notVerified *bool) ([]repository.Upload, error) {
	if err := requireReviewer(identity); err != nil {
		return nil, err
	}
	return uc.uploads.ListAll(ctx, notVerified)
}

// Approve verifies the upload and credits its points to the owner. Approving
// an already verified upload changes nothing.
func (uc *UploadUseCase) Approve(ctx context.Context, identity *auth.Identity, uploadID uint) (*ApprovalResult, error) {
	if err := requireReviewer(identity); err != nil {
		return nil, err
	}
	requestID := logging.RequestIDFromContext(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.approve_upload", requestID)

	approval, err := uc.uploads.Approve(ctx, uploadID, identity.UserID, uc.now().UTC())
	if repository.IsNotFound(err) {
		return nil, &NotFoundError{Resource: "Upload"}
	}
	if err != nil {
		return nil, logging.NewOperationError("usecase.approve_upload", requestID, err)
	}

	result := &ApprovalResult{Upload: approval.Upload}
	switch {
	case approval.AlreadyVerified:
		result.Message = "Upload already verified"
		result.AlreadyVerified = true
	case approval.OwnerMissing:
		opLogger.Warn("verified upload has no owner to credit",
			zap.Uint("upload_id", uploadID),
			zap.Uint("user_id", approval.Upload.UserID),
		)
		result.Message = fmt.Sprintf("Upload #%d verified successfully.", uploadID)
	default:
		score := approval.PointScore
		result.PointScore = &score
		result.Message = fmt.Sprintf("Upload #%d verified successfully.", uploadID)
		opLogger.Info("upload verified",
			zap.Uint("upload_id", uploadID),
			zap.Uint("user_id", approval.Upload.UserID),
			zap.Int64("points", approval.Upload.PointsAwarded),
		)
	}
	return result, nil
}

// Centres returns the centres an upload can be dropped at, by name.
func (uc *UploadUseCase) Centres(ctx context.Context) ([]repository.Center, error) {
	return uc.centres.ListByName(ctx)
}

// GetDuplicateReport lists the other uploads of the same image.
func (uc *UploadUseCase) GetDuplicateReport(ctx context.Context, identity *auth.Identity, uploadID uint) (*DuplicateReport, error) {
	if err := requireReviewer(identity); err != nil {
		return nil, err
	}

	upload, err := uc.uploads.FindByID(ctx, uploadID)
	if repository.IsNotFound(err) {
		return nil, &NotFoundError{Resource: "Upload"}
	}
	if err != nil {
		return nil, err
	}

	duplicates, err := uc.uploads.FindDuplicatesByHash(ctx, upload.ImageSHA1, upload.ID)
	if err != nil {
		return nil, err
	}

	return &DuplicateReport{
		Upload:     upload,
		Duplicates: duplicates,
	}, nil
}

func requireReviewer(identity *auth.Identity) error {
	if identity == nil {
		return ErrNotAuthenticated
	}
	if !identity.HasRole(repository.RoleCorporate, repository.RoleAdmin) {
		return ErrForbidden
	}
	return nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SecureFilename reduces name to a plain file name safe to store.
func SecureFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "upload"
	}
	return name
}
