package apikeys

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/credstock/pkg/db"
	"github.com/angelmondragon/credstock/pkg/db/models"
	pkgerrors "github.com/angelmondragon/credstock/pkg/errors"
	"github.com/angelmondragon/credstock/pkg/logger"
	"github.com/angelmondragon/credstock/pkg/security"
	"gorm.io/gorm"
)

// Principal is the caller identified by a valid key.
type Principal struct {
	KeyID       int64
	Name        string
	InventoryID *int64
	IsKiosk     bool
}

// Bucket resolves the inventory a sale draws from. Kiosk keys are pinned to their inventory;
// other keys use the requested inventory and fall back to their own default.
func (p Principal) Bucket(requested *int64) *int64 {
	if p.IsKiosk && p.InventoryID != nil {
		return p.InventoryID
	}
	if requested != nil {
		return requested
	}
	return p.InventoryID
}

// IssueInput describes a key minted by the operator CLI.
type IssueInput struct {
	Name        string
	Description string
	InventoryID *int64
	IsKiosk     bool
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Validate resolves raw to a Principal and records the use.
func (s *Service) Validate(ctx context.Context, raw string) (*Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "API key is required")
	}
	key, err := s.repo.FindActiveByHash(ctx, security.HashAPIKey(raw))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Invalid or inactive API key")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup api key")
	}
	if err := s.repo.RecordUse(ctx, key.ID, s.now().UTC()); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"api_key_id": key.ID, "error": err.Error()}), "failed to record api key usage")
	}
	return &Principal{
		KeyID:       key.ID,
		Name:        key.Name,
		InventoryID: key.InventoryID,
		IsKiosk:     key.IsKiosk,
	}, nil
}

// Issue mints a new key and returns the raw value once; only its digest is stored.
func (s *Service) Issue(ctx context.Context, input IssueInput) (string, *models.APIKey, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return "", nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.IsKiosk && input.InventoryID == nil {
		return "", nil, pkgerrors.New(pkgerrors.CodeValidation, "inventory id is required for kiosk keys")
	}
	raw, err := security.GenerateAPIKey()
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate api key")
	}
	key := &models.APIKey{
		KeyHash:     security.HashAPIKey(raw),
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		InventoryID: input.InventoryID,
		IsKiosk:     input.IsKiosk,
		IsActive:    true,
	}
	if err := s.repo.Create(ctx, key); err != nil {
		if db.IsUniqueViolation(err, "") {
			return "", nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "api key already exists")
		}
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store api key")
	}
	return raw, key, nil
}
