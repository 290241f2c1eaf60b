// internal/services/track_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/config"
	"github.com/javajoker/wavhaven-backend/internal/database"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/policy"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

type TrackService struct {
	db          *gorm.DB
	storage     FileStorage
	maxUploadMB int
}

type CreateTrackRequest struct {
	Title       string   `json:"title" validate:"required,min=1,max=200"`
	Description string   `json:"description" validate:"max=5000"`
	BPM         *int     `json:"bpm" validate:"omitempty,min=1,max=400"`
	Key         string   `json:"key" validate:"track_key"`
	Genres      []string `json:"genres" validate:"max=5,dive,min=1,max=60"`
	Moods       []string `json:"moods" validate:"max=5,dive,min=1,max=60"`
	Tags        []string `json:"tags" validate:"max=10,dive,min=1,max=60"`
}

// UpdateTrackRequest changes metadata only. Nil fields are left untouched.
type UpdateTrackRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string  `json:"description" validate:"omitempty,max=5000"`
	BPM         *int     `json:"bpm" validate:"omitempty,min=1,max=400"`
	Key         *string  `json:"key" validate:"omitempty,track_key"`
	Genres      []string `json:"genres" validate:"omitempty,max=5,dive,min=1,max=60"`
	Moods       []string `json:"moods" validate:"omitempty,max=5,dive,min=1,max=60"`
	Tags        []string `json:"tags" validate:"omitempty,max=10,dive,min=1,max=60"`
}

type FileUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type DeleteTrackResult struct {
	Unpublished bool `json:"unpublished"`
	Deleted     bool `json:"deleted"`
}

func NewTrackService(db *gorm.DB, storage FileStorage, cfg config.AWSConfig) *TrackService {
	return &TrackService{
		db:          db,
		storage:     storage,
		maxUploadMB: cfg.MaxUploadMB,
	}
}

func (s *TrackService) Create(ctx context.Context, actor policy.Subject, req *CreateTrackRequest) (*models.Track, error) {
	if d := policy.Authorize(actor, policy.On(policy.ResourceTrack), policy.ActionCreate); !d.Allowed {
		return nil, apperrors.Forbidden("only producers can upload tracks")
	}
	if err := utils.ValidateRequest(req); err != nil {
		return nil, err
	}

	track := &models.Track{
		ProducerID:  actor.UserID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		BPM:         req.BPM,
		Key:         strings.TrimSpace(req.Key),
		Status:      models.TrackStatusDraft,
	}

	// A concurrent upload can take the same slug between lookup and insert.
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			slug, err := uniqueSlug(tx, track.Title)
			if err != nil {
				return err
			}
			track.ID = uuid.Nil
			track.Slug = slug
			if err := tx.Omit(clause.Associations).Create(track).Error; err != nil {
				return err
			}
			return replaceTrackTags(tx, track, req.Genres, req.Moods, req.Tags)
		})
		if !database.IsUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return nil, apperrors.Internal("failed to create track", err)
	}

	logrus.WithFields(logrus.Fields{
		"track_id":    track.ID,
		"producer_id": actor.UserID,
		"slug":        track.Slug,
	}).Info("Track created")

	return s.GetForOwner(ctx, actor, track.ID)
}

// GetForOwner returns a track with its files and licenses for the producer
// dashboard.
func (s *TrackService) GetForOwner(ctx context.Context, actor policy.Subject, trackID uuid.UUID) (*models.Track, error) {
	var track models.Track
	err := s.db.WithContext(ctx).
		Preload("Licenses", func(db *gorm.DB) *gorm.DB { return db.Order("licenses.price ASC") }).
		Preload("Files").
		Preload("Genres").
		Preload("Moods").
		Preload("Tags").
		First(&track, "id = ?", trackID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("track")
		}
		return nil, apperrors.Internal("failed to load track", err)
	}
	if !policy.Allowed(actor, policy.Owned(policy.ResourceTrack, track.ProducerID), policy.ActionUpdate) {
		return nil, apperrors.Forbidden("not allowed to manage this track")
	}
	return &track, nil
}

func (s *TrackService) ListMine(ctx context.Context, producerID uuid.UUID, params utils.PaginationParams) ([]models.Track, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Track{}).Where("producer_id = ?", producerID)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, apperrors.Internal("failed to count tracks", err)
	}

	var tracks []models.Track
	err := utils.ApplySort(query, params, []string{"created_at", "title", "play_count", "sales_count"}).
		Preload("Licenses").
		Offset(params.Offset()).
		Limit(params.Limit).
		Find(&tracks).Error
	if err != nil {
		return nil, 0, apperrors.Internal("failed to list tracks", err)
	}
	return tracks, total, nil
}

func (s *TrackService) Update(ctx context.Context, actor policy.Subject, trackID uuid.UUID, req *UpdateTrackRequest) (*models.Track, error) {
	if err := utils.ValidateRequest(req); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		track, err := loadTrackForUpdate(tx, actor, trackID, policy.ActionUpdate)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if req.Title != nil {
			updates["title"] = strings.TrimSpace(*req.Title)
		}
		if req.Description != nil {
			updates["description"] = *req.Description
		}
		if req.BPM != nil {
			updates["bpm"] = *req.BPM
		}
		if req.Key != nil {
			updates["key"] = strings.TrimSpace(*req.Key)
		}
		if len(updates) > 0 {
			if err := tx.Model(track).Updates(updates).Error; err != nil {
				return err
			}
		}

		return replaceTrackTags(tx, track, req.Genres, req.Moods, req.Tags)
	})
	if err != nil {
		return nil, asServiceError(err, "failed to update track")
	}

	return s.GetForOwner(ctx, actor, trackID)
}

// Delete removes a track that never sold. A track referenced by any order is
// unpublished instead so buyers keep their downloads.
func (s *TrackService) Delete(ctx context.Context, actor policy.Subject, trackID uuid.UUID) (*DeleteTrackResult, error) {
	result := &DeleteTrackResult{}
	var storageKeys []string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		track, err := loadTrackForUpdate(tx, actor, trackID, policy.ActionDelete)
		if err != nil {
			return err
		}

		sold, err := trackHasOrders(tx, trackID)
		if err != nil {
			return err
		}

		if sold {
			result.Unpublished = true
			switch track.Status {
			case models.TrackStatusDraft, models.TrackStatusRejected:
				return nil
			case models.TrackStatusPublished:
				return transitionTrack(tx, track, models.TrackStatusDraft, nil)
			default:
				return apperrors.Conflict("a sold track under review cannot be removed until the review completes")
			}
		}

		var files []models.TrackFile
		if err := tx.Where("track_id = ?", trackID).Find(&files).Error; err != nil {
			return err
		}
		for _, f := range files {
			storageKeys = append(storageKeys, f.StoragePath)
		}

		if err := tx.Where("track_id = ?", trackID).Delete(&models.TrackFile{}).Error; err != nil {
			return err
		}
		if err := tx.Where("track_id = ?", trackID).Delete(&models.License{}).Error; err != nil {
			return err
		}
		if err := tx.Where("track_id = ?", trackID).Delete(&models.TrackLike{}).Error; err != nil {
			return err
		}
		if err := tx.Model(track).Association("Genres").Clear(); err != nil {
			return err
		}
		if err := tx.Model(track).Association("Moods").Clear(); err != nil {
			return err
		}
		if err := tx.Model(track).Association("Tags").Clear(); err != nil {
			return err
		}
		result.Deleted = true
		return tx.Delete(track).Error
	})
	if err != nil {
		return nil, asServiceError(err, "failed to delete track")
	}

	for _, key := range storageKeys {
		if err := s.storage.Delete(ctx, key); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("Failed to delete track file from storage")
		}
	}

	logrus.WithFields(logrus.Fields{
		"track_id":    trackID,
		"unpublished": result.Unpublished,
	}).Info("Track removed")

	return result, nil
}

// UploadFile stores a track file. Each file type holds one file; uploading
// again replaces the previous one. Entitlements cover file types, so buyers
// of a sold track get the replacement.
func (s *TrackService) UploadFile(ctx context.Context, actor policy.Subject, trackID uuid.UUID, fileType models.TrackFileType, upload FileUpload) (*models.TrackFile, error) {
	if !fileType.Valid() {
		return nil, apperrors.Validation("invalid file type", apperrors.FieldError{Field: "file_type", Message: "unknown file type"})
	}

	rule := uploadRules[fileType]
	ext := strings.ToLower(filepath.Ext(upload.FileName))
	if !containsString(rule.extensions, ext) {
		return nil, apperrors.Validation("unsupported file extension", apperrors.FieldError{
			Field:   "file",
			Message: fmt.Sprintf("%s accepts %s", fileType, strings.Join(rule.extensions, ", ")),
		})
	}
	limit := rule.maxBytes
	if global := int64(s.maxUploadMB) * mb; limit == 0 || (global > 0 && global < limit) {
		limit = global
	}
	if upload.Size <= 0 || (limit > 0 && upload.Size > limit) {
		return nil, apperrors.Validation("file too large", apperrors.FieldError{
			Field:   "file",
			Message: fmt.Sprintf("file must be between 1 byte and %d MB", limit/mb),
		})
	}

	// Ownership is checked before anything is written to storage.
	if _, err := s.GetForOwner(ctx, actor, trackID); err != nil {
		return nil, err
	}

	key := storageKey(trackID, fileType, upload.FileName)
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.storage.Upload(ctx, key, upload.Body, contentType, fileType.IsPublic()); err != nil {
		return nil, apperrors.External("storage", err)
	}

	file := &models.TrackFile{
		TrackID:     trackID,
		FileType:    fileType,
		StoragePath: key,
		FileName:    utils.SanitizeFilename(upload.FileName),
		ContentType: contentType,
		SizeBytes:   upload.Size,
	}
	var replaced []string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		track, err := loadTrackForUpdate(tx, actor, trackID, policy.ActionUpdate)
		if err != nil {
			return err
		}

		var previous []models.TrackFile
		if err := tx.Where("track_id = ? AND file_type = ?", trackID, fileType).Find(&previous).Error; err != nil {
			return err
		}
		for _, p := range previous {
			replaced = append(replaced, p.StoragePath)
		}
		if len(previous) > 0 {
			if err := tx.Unscoped().Where("track_id = ? AND file_type = ?", trackID, fileType).Delete(&models.TrackFile{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Create(file).Error; err != nil {
			return err
		}
		return setPublicURL(tx, track, fileType, s.storage.PublicURL(key))
	})
	if err != nil {
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			logrus.WithError(delErr).WithField("key", key).Warn("Failed to clean up orphaned upload")
		}
		return nil, asServiceError(err, "failed to save track file")
	}

	for _, old := range replaced {
		if err := s.storage.Delete(ctx, old); err != nil {
			logrus.WithError(err).WithField("key", old).Warn("Failed to delete replaced track file")
		}
	}

	logrus.WithFields(logrus.Fields{
		"track_id":  trackID,
		"file_type": fileType,
		"size":      upload.Size,
	}).Info("Track file uploaded")

	return file, nil
}

func (s *TrackService) DeleteFile(ctx context.Context, actor policy.Subject, fileID uuid.UUID) error {
	var key string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var file models.TrackFile
		if err := tx.First(&file, "id = ?", fileID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("file")
			}
			return err
		}

		track, err := loadTrackForUpdate(tx, actor, file.TrackID, policy.ActionUpdate)
		if err != nil {
			return err
		}

		if !file.FileType.IsPublic() {
			sold, err := trackHasOrders(tx, track.ID)
			if err != nil {
				return err
			}
			if sold {
				return apperrors.Conflict("files buyers paid for cannot be deleted; upload a replacement instead")
			}
		}

		key = file.StoragePath
		if err := tx.Unscoped().Delete(&file).Error; err != nil {
			return err
		}
		return setPublicURL(tx, track, file.FileType, "")
	})
	if err != nil {
		return asServiceError(err, "failed to delete track file")
	}

	if err := s.storage.Delete(ctx, key); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Failed to delete track file from storage")
	}
	return nil
}

// trackHasOrders reports whether any order that is not FAILED includes the
// track. Pending orders count because they may still complete.
func trackHasOrders(tx *gorm.DB, trackID uuid.UUID) (bool, error) {
	var ordered int64
	err := tx.Model(&models.OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("order_items.track_id = ? AND orders.status <> ?", trackID, models.OrderStatusFailed).
		Count(&ordered).Error
	return ordered > 0, err
}

// loadTrackForUpdate locks the track row and checks that actor may perform
// action on it.
func loadTrackForUpdate(tx *gorm.DB, actor policy.Subject, trackID uuid.UUID, action policy.Action) (*models.Track, error) {
	var track models.Track
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&track, "id = ?", trackID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("track")
		}
		return nil, err
	}

	if d := policy.Authorize(actor, policy.Owned(policy.ResourceTrack, track.ProducerID), action); !d.Allowed {
		return nil, apperrors.Forbidden("not allowed to manage this track")
	}
	return &track, nil
}

func setPublicURL(tx *gorm.DB, track *models.Track, fileType models.TrackFileType, url string) error {
	switch fileType {
	case models.TrackFileTypePreviewAudio:
		return tx.Model(track).Update("preview_url", url).Error
	case models.TrackFileTypeCoverImage:
		return tx.Model(track).Update("cover_image_url", url).Error
	}
	return nil
}

// uniqueSlug derives a slug from title, appending -2, -3... when taken.
// Soft deleted tracks keep their slug reserved.
func uniqueSlug(tx *gorm.DB, title string) (string, error) {
	base := utils.Slugify(title)
	if base == "" {
		base = "track"
	}
	if len(base) > 200 {
		base = strings.TrimRight(base[:200], "-")
	}

	var taken []string
	err := tx.Unscoped().Model(&models.Track{}).
		Where("slug = ? OR slug LIKE ?", base, base+"-%").
		Pluck("slug", &taken).Error
	if err != nil {
		return "", err
	}

	used := make(map[string]bool, len(taken))
	for _, s := range taken {
		used[s] = true
	}
	if !used[base] {
		return base, nil
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if !used[candidate] {
			return candidate, nil
		}
	}
}

// replaceTrackTags swaps the facet associations that were supplied. A nil
// slice leaves that facet unchanged.
func replaceTrackTags(tx *gorm.DB, track *models.Track, genres, moods, keywords []string) error {
	facets := []struct {
		association string
		kind        models.TagKind
		names       []string
	}{
		{"Genres", models.TagKindGenre, genres},
		{"Moods", models.TagKindMood, moods},
		{"Tags", models.TagKindKeyword, keywords},
	}

	for _, f := range facets {
		if f.names == nil {
			continue
		}
		tags, err := resolveTags(tx, f.kind, f.names)
		if err != nil {
			return err
		}
		if err := tx.Model(track).Association(f.association).Replace(tags); err != nil {
			return err
		}
	}
	return nil
}

func resolveTags(tx *gorm.DB, kind models.TagKind, names []string) ([]models.Tag, error) {
	tags := make([]models.Tag, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		slug := utils.Slugify(name)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true

		tag := models.Tag{Kind: kind, Name: name, Slug: slug}
		if err := tx.Where("kind = ? AND slug = ?", kind, slug).FirstOrCreate(&tag).Error; err != nil {
			return nil, fmt.Errorf("failed to resolve %s %q: %w", kind, name, err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// asServiceError passes typed errors through and wraps everything else as
// an internal error.
func asServiceError(err error, message string) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.Internal(message, err)
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
