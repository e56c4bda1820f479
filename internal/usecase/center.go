package usecase

import (
	"context"
	"encoding/json"
	"strings"

	"gorm.io/datatypes"

	"github.com/example/eco-collect/internal/repository"
)

// CenterRepository defines the persistence operations on collection centers.
type CenterRepository interface {
	List(ctx context.Context) ([]repository.Center, error)
	FindByID(ctx context.Context, id uint) (*repository.Center, error)
	Create(ctx context.Context, center *repository.Center) error
	Update(ctx context.Context, id uint, patch map[string]any) (*repository.Center, error)
	Delete(ctx context.Context, id uint) error
}

// CenterInput is the body of a create request.
type CenterInput struct {
	Name        string
	Company     *string
	Location    string
	LocationURL *string
	TimeOpen    *string
	Contact     *string
	Metadata    json.RawMessage
}

// CenterPatch holds the fields of an update request. Nil fields are left
// unchanged.
type CenterPatch struct {
	Name        *string
	Company     *string
	Location    *string
	LocationURL *string
	TimeOpen    *string
	Contact     *string
	Metadata    *json.RawMessage
}

// CenterUseCase manages the collection center directory.
type CenterUseCase struct {
	centers CenterRepository
	users   UserRepository
}

func NewCenterUseCase(centers CenterRepository, users UserRepository) *CenterUseCase {
	return &CenterUseCase{centers: centers, users: users}
}

func (uc *CenterUseCase) List(ctx context.Context) ([]repository.Center, error) {
	return uc.centers.List(ctx)
}

func (uc *CenterUseCase) Get(ctx context.Context, id uint) (*repository.Center, error) {
	center, err := uc.centers.FindByID(ctx, id)
	if repository.IsNotFound(err) {
		return nil, &NotFoundError{Resource: "Center"}
	}
	return center, err
}

// Create adds a center owned by createdBy, which must be an existing user.
func (uc *CenterUseCase) Create(ctx context.Context, in CenterInput, createdBy uint) (*repository.Center, error) {
	if createdBy == 0 {
		return nil, invalid("created_by is required")
	}
	if _, err := uc.users.FindByID(ctx, createdBy); err != nil {
		if repository.IsNotFound(err) {
			return nil, invalid("created_by does not reference an existing user")
		}
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	location := strings.TrimSpace(in.Location)
	if location == "" {
		return nil, invalid("location is required")
	}
	metadata, err := metadataJSON(in.Metadata)
	if err != nil {
		return nil, err
	}

	center := &repository.Center{
		Name:        name,
		Company:     in.Company,
		Location:    location,
		LocationURL: in.LocationURL,
		TimeOpen:    in.TimeOpen,
		Contact:     in.Contact,
		Metadata:    metadata,
		CreatedBy:   createdBy,
	}
	if err := uc.centers.Create(ctx, center); err != nil {
		return nil, err
	}
	return center, nil
}

// Update applies patch to the center.
func (uc *CenterUseCase) Update(ctx context.Context, id uint, patch CenterPatch) (*repository.Center, error) {
	columns := map[string]any{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, invalid("name must not be empty")
		}
		columns["name"] = name
	}
	if patch.Location != nil {
		location := strings.TrimSpace(*patch.Location)
		if location == "" {
			return nil, invalid("location must not be empty")
		}
		columns["location"] = location
	}
	if patch.Company != nil {
		columns["company"] = *patch.Company
	}
	if patch.LocationURL != nil {
		columns["location_url"] = *patch.LocationURL
	}
	if patch.TimeOpen != nil {
		columns["time_open"] = *patch.TimeOpen
	}
	if patch.Contact != nil {
		columns["contact"] = *patch.Contact
	}
	if patch.Metadata != nil {
		metadata, err := metadataJSON(*patch.Metadata)
		if err != nil {
			return nil, err
		}
		columns["metadata"] = metadata
	}

	center, err := uc.centers.Update(ctx, id, columns)
	if repository.IsNotFound(err) {
		return nil, &NotFoundError{Resource: "Center"}
	}
	return center, err
}

func (uc *CenterUseCase) Delete(ctx context.Context, id uint) error {
	err := uc.centers.Delete(ctx, id)
	if repository.IsNotFound(err) {
		return &NotFoundError{Resource: "Center"}
	}
	return err
}

// metadataJSON accepts a JSON object or null.
func metadataJSON(raw json.RawMessage) (datatypes.JSON, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var object map[string]any
	if err := json.Unmarshal([]byte(trimmed), &object); err != nil {
		return nil, invalid("metadata must be a JSON object")
	}
	return datatypes.JSON(trimmed), nil
}
