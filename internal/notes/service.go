package notes

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNoteNotFound indicates no note exists for the requested id.
	ErrNoteNotFound = errors.New("notes: note not found")
	// ErrNotOwner indicates the note exists but belongs to another user.
	ErrNotOwner = errors.New("notes: caller is not the owner")

	errMissingDatabase = errors.New("notes: database connection required")
	errMissingOwner    = errors.New("notes: owner id required")
)

// ServiceConfig describes the dependencies required by the note service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service persists notes and enforces owner-only access on every note-scoped
// operation: the note is loaded first, then its owner is compared to the
// caller before any content is disclosed or mutated.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the note service.
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

// UpdateRequest carries the mutable note fields. A nil ImagePath means the
// stored attachment reference is retained unchanged.
type UpdateRequest struct {
	Title     string
	Content   string
	TextColor string
	ImagePath *string
}

// List returns the notes owned by the given user in creation order.
func (s *Service) List(ctx context.Context, ownerID uint) ([]Note, error) {
	if ownerID == 0 {
		return nil, errMissingOwner
	}
	var owned []Note
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("id ASC").
		Find(&owned).Error; err != nil {
		s.logger.Error("note listing failed", zap.Uint("owner_id", ownerID), zap.Error(err))
		return nil, fmt.Errorf("notes: list: %w", err)
	}
	return owned, nil
}

// Create stores a new note for the owner and returns its id. An empty color
// falls back to DefaultTextColor.
func (s *Service) Create(ctx context.Context, ownerID uint, title, content, imagePath, textColor string) (uint, error) {
	if ownerID == 0 {
		return 0, errMissingOwner
	}
	if textColor == "" {
		textColor = DefaultTextColor
	}
	note := Note{
		OwnerID:   ownerID,
		Title:     title,
		Content:   content,
		ImagePath: imagePath,
		TextColor: textColor,
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logger.Error("note create failed", zap.Uint("owner_id", ownerID), zap.Error(err))
		return 0, fmt.Errorf("notes: create: %w", err)
	}
	return note.ID, nil
}

// Get loads a note on behalf of the caller. The existence check precedes the
// ownership check, so an unknown id yields ErrNoteNotFound for any caller and
// a foreign note yields ErrNotOwner without disclosing its content.
func (s *Service) Get(ctx context.Context, callerID, noteID uint) (Note, error) {
	return s.authorize(ctx, s.db, callerID, noteID)
}

// Update replaces title, content and color of a caller-owned note. The image
// reference changes only when req.ImagePath is non-nil.
func (s *Service) Update(ctx context.Context, callerID, noteID uint, req UpdateRequest) error {
	textColor := req.TextColor
	if textColor == "" {
		textColor = DefaultTextColor
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, err := s.authorize(ctx, tx, callerID, noteID)
		if err != nil {
			return err
		}
		columns := map[string]interface{}{
			"title":      req.Title,
			"content":    req.Content,
			"text_color": textColor,
		}
		if req.ImagePath != nil {
			columns["image_path"] = *req.ImagePath
		}
		if err := tx.Model(&Note{}).Where("id = ?", note.ID).Updates(columns).Error; err != nil {
			s.logger.Error("note update failed", zap.Uint("note_id", noteID), zap.Error(err))
			return fmt.Errorf("notes: update: %w", err)
		}
		return nil
	})
}

// Delete removes a caller-owned note and returns the deleted record so the
// caller can reconcile any attachment file.
func (s *Service) Delete(ctx context.Context, callerID, noteID uint) (Note, error) {
	var deleted Note
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, err := s.authorize(ctx, tx, callerID, noteID)
		if err != nil {
			return err
		}
		if err := tx.Delete(&Note{}, note.ID).Error; err != nil {
			s.logger.Error("note delete failed", zap.Uint("note_id", noteID), zap.Error(err))
			return fmt.Errorf("notes: delete: %w", err)
		}
		deleted = note
		return nil
	})
	if txErr != nil {
		return Note{}, txErr
	}
	return deleted, nil
}

func (s *Service) authorize(ctx context.Context, db *gorm.DB, callerID, noteID uint) (Note, error) {
	if callerID == 0 {
		return Note{}, errMissingOwner
	}
	var note Note
	err := db.WithContext(ctx).Take(&note, noteID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, ErrNoteNotFound
	}
	if err != nil {
		s.logger.Error("note lookup failed", zap.Uint("note_id", noteID), zap.Error(err))
		return Note{}, fmt.Errorf("notes: lookup: %w", err)
	}
	if note.OwnerID != callerID {
		return Note{}, ErrNotOwner
	}
	return note, nil
}
