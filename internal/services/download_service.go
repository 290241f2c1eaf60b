// internal/services/download_service.go
package services

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/config"
	"github.com/javajoker/wavhaven-backend/internal/metrics"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

// errDownloadForbidden is returned for every denied download. Callers cannot
// tell a missing file from a missing entitlement.
var errDownloadForbidden = apperrors.Forbidden("forbidden")

type DownloadLink struct {
	FileID    uuid.UUID            `json:"file_id"`
	FileType  models.TrackFileType `json:"file_type"`
	FileName  string               `json:"file_name"`
	URL       string               `json:"url"`
	ExpiresAt *time.Time           `json:"expires_at,omitempty"`
}

type LibraryFile struct {
	ID        uuid.UUID            `json:"id"`
	FileType  models.TrackFileType `json:"file_type"`
	FileName  string               `json:"file_name"`
	SizeBytes int64                `json:"size_bytes"`
}

type PurchasedLicense struct {
	OrderID     uuid.UUID          `json:"order_id"`
	LicenseID   uuid.UUID          `json:"license_id"`
	LicenseName string             `json:"license_name"`
	LicenseType models.LicenseType `json:"license_type"`
	PurchasedAt time.Time          `json:"purchased_at"`
}

// LibraryEntry is one purchased track in the buyer's library.
type LibraryEntry struct {
	TrackID       uuid.UUID          `json:"track_id"`
	TrackTitle    string             `json:"track_title"`
	TrackSlug     string             `json:"track_slug"`
	CoverImageURL string             `json:"cover_image_url"`
	Licenses      []PurchasedLicense `json:"licenses"`
	Files         []LibraryFile      `json:"files"`
}

type DownloadService struct {
	db      *gorm.DB
	storage FileStorage
	metrics *metrics.Metrics
	linkTTL time.Duration
}

func NewDownloadService(db *gorm.DB, storage FileStorage, m *metrics.Metrics, cfg config.AWSConfig) *DownloadService {
	ttl := time.Duration(cfg.SignedURLTTL) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &DownloadService{
		db:      db,
		storage: storage,
		metrics: m,
		linkTTL: ttl,
	}
}

// Authorize decides whether viewer may fetch fileID and, if so, returns a
// link. Public files need no identity. Every other file needs a permission
// from a COMPLETED order whose license covers the file type.
func (s *DownloadService) Authorize(ctx context.Context, viewer *uuid.UUID, fileID uuid.UUID) (*DownloadLink, error) {
	var file models.TrackFile
	if err := s.db.WithContext(ctx).Preload("Track").First(&file, "id = ?", fileID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithError(err).WithField("file_id", fileID).Error("Failed to load track file")
		}
		s.metrics.Download("denied")
		return nil, errDownloadForbidden
	}
	if file.Track == nil {
		s.metrics.Download("denied")
		return nil, errDownloadForbidden
	}

	if file.FileType.IsPublic() {
		s.metrics.Download("public")
		return &DownloadLink{
			FileID:   file.ID,
			FileType: file.FileType,
			FileName: file.FileName,
			URL:      s.storage.PublicURL(file.StoragePath),
		}, nil
	}

	if viewer == nil {
		s.metrics.Download("denied")
		return nil, errDownloadForbidden
	}

	allowed, err := s.entitled(ctx, *viewer, &file)
	if err != nil {
		// Access decisions never fail open.
		return nil, apperrors.Internal("failed to check download permission", err)
	}
	if !allowed {
		s.metrics.Download("denied")
		logrus.WithFields(logrus.Fields{"user_id": *viewer, "file_id": fileID}).Info("Download denied")
		return nil, errDownloadForbidden
	}

	link, err := s.signedLink(ctx, &file, file.Track, s.linkTTL)
	if err != nil {
		return nil, err
	}
	s.metrics.Download("allowed")
	return link, nil
}

func (s *DownloadService) entitled(ctx context.Context, userID uuid.UUID, file *models.TrackFile) (bool, error) {
	permissions, err := s.completedPermissions(s.db.WithContext(ctx).Where("user_download_permissions.track_id = ?", file.TrackID), userID)
	if err != nil {
		return false, err
	}
	for _, p := range permissions {
		if p.License != nil && p.License.Covers(file.FileType) {
			return true, nil
		}
	}
	return false, nil
}

// completedPermissions loads the user's permissions whose order is still
// COMPLETED. Licenses are loaded even if later deleted by the producer.
func (s *DownloadService) completedPermissions(query *gorm.DB, userID uuid.UUID) ([]models.UserDownloadPermission, error) {
	var permissions []models.UserDownloadPermission
	err := query.
		Joins("JOIN orders ON orders.id = user_download_permissions.order_id").
		Where("user_download_permissions.user_id = ? AND orders.status = ?", userID, models.OrderStatusCompleted).
		Preload("License", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Order("user_download_permissions.created_at ASC").
		Find(&permissions).Error
	return permissions, err
}

// ListDownloads returns the user's library: one entry per purchased track
// with every file their licenses cover.
func (s *DownloadService) ListDownloads(ctx context.Context, userID uuid.UUID) ([]LibraryEntry, error) {
	permissions, err := s.completedPermissions(s.db.WithContext(ctx).Preload("Order"), userID)
	if err != nil {
		return nil, apperrors.Internal("failed to load downloads", err)
	}
	if len(permissions) == 0 {
		return []LibraryEntry{}, nil
	}

	trackIDs := make([]uuid.UUID, 0, len(permissions))
	seen := map[uuid.UUID]bool{}
	for _, p := range permissions {
		if !seen[p.TrackID] {
			seen[p.TrackID] = true
			trackIDs = append(trackIDs, p.TrackID)
		}
	}

	var tracks []models.Track
	if err := s.db.WithContext(ctx).Unscoped().Preload("Files").Where("id IN ?", trackIDs).Find(&tracks).Error; err != nil {
		return nil, apperrors.Internal("failed to load purchased tracks", err)
	}
	trackByID := make(map[uuid.UUID]*models.Track, len(tracks))
	for i := range tracks {
		trackByID[tracks[i].ID] = &tracks[i]
	}

	entries := make([]LibraryEntry, 0, len(trackIDs))
	index := map[uuid.UUID]int{}
	for _, p := range permissions {
		track := trackByID[p.TrackID]
		if track == nil || p.License == nil {
			continue
		}

		i, ok := index[p.TrackID]
		if !ok {
			entries = append(entries, LibraryEntry{
				TrackID:       track.ID,
				TrackTitle:    track.Title,
				TrackSlug:     track.Slug,
				CoverImageURL: track.CoverImageURL,
				Licenses:      []PurchasedLicense{},
				Files:         []LibraryFile{},
			})
			i = len(entries) - 1
			index[p.TrackID] = i
		}

		purchased := PurchasedLicense{
			OrderID:     p.OrderID,
			LicenseID:   p.LicenseID,
			LicenseName: p.License.Name,
			LicenseType: p.License.Type,
			PurchasedAt: p.CreatedAt,
		}
		if p.Order != nil && p.Order.CompletedAt != nil {
			purchased.PurchasedAt = *p.Order.CompletedAt
		}
		entries[i].Licenses = append(entries[i].Licenses, purchased)

		for _, f := range track.Files {
			if f.FileType.IsPublic() || !p.License.Covers(f.FileType) || hasFile(entries[i].Files, f.ID) {
				continue
			}
			entries[i].Files = append(entries[i].Files, LibraryFile{
				ID:        f.ID,
				FileType:  f.FileType,
				FileName:  f.FileName,
				SizeBytes: f.SizeBytes,
			})
		}
	}

	for i := range entries {
		sort.Slice(entries[i].Files, func(a, b int) bool {
			return fileTypeRank(entries[i].Files[a].FileType) < fileTypeRank(entries[i].Files[b].FileType)
		})
	}
	return entries, nil
}

// EmailLinks signs one link per purchased file category of order for the
// confirmation email.
func (s *DownloadService) EmailLinks(ctx context.Context, order *models.Order, ttl time.Duration) ([]ConfirmationItem, error) {
	items := make([]ConfirmationItem, 0, len(order.Items))
	for _, item := range order.Items {
		entry := ConfirmationItem{
			TrackTitle:  item.TrackTitle,
			LicenseName: item.LicenseName,
			Price:       item.PriceAtPurchase,
		}

		var license models.License
		if err := s.db.WithContext(ctx).Unscoped().First(&license, "id = ?", item.LicenseID).Error; err != nil {
			return nil, err
		}
		var track models.Track
		if err := s.db.WithContext(ctx).Unscoped().Preload("Files").First(&track, "id = ?", item.TrackID).Error; err != nil {
			return nil, err
		}

		files := append([]models.TrackFile(nil), track.Files...)
		sort.Slice(files, func(a, b int) bool { return fileTypeRank(files[a].FileType) < fileTypeRank(files[b].FileType) })
		for i := range files {
			f := &files[i]
			if f.FileType.IsPublic() || !license.Covers(f.FileType) {
				continue
			}
			link, err := s.signedLink(ctx, f, &track, ttl)
			if err != nil {
				return nil, err
			}
			entry.Links = append(entry.Links, DownloadLinkEntry{
				Category: categoryLabel(f.FileType),
				FileName: link.FileName,
				URL:      link.URL,
			})
		}
		items = append(items, entry)
	}
	return items, nil
}

func (s *DownloadService) signedLink(ctx context.Context, file *models.TrackFile, track *models.Track, ttl time.Duration) (*DownloadLink, error) {
	name := downloadName(track, file)
	url, err := s.storage.SignedURL(ctx, file.StoragePath, ttl, name)
	if err != nil {
		return nil, apperrors.External("storage", err)
	}
	expires := time.Now().Add(ttl)
	return &DownloadLink{
		FileID:    file.ID,
		FileType:  file.FileType,
		FileName:  name,
		URL:       url,
		ExpiresAt: &expires,
	}, nil
}

// downloadName builds "<track-slug>-<file-type><ext>".
func downloadName(track *models.Track, file *models.TrackFile) string {
	ext := filepath.Ext(file.FileName)
	if ext == "" {
		ext = filepath.Ext(file.StoragePath)
	}
	return utils.SanitizeFilename(track.Slug + "-" + strings.ToLower(string(file.FileType)) + ext)
}

func categoryLabel(t models.TrackFileType) string {
	switch t {
	case models.TrackFileTypeMainMP3:
		return "MP3"
	case models.TrackFileTypeMainWAV:
		return "WAV"
	case models.TrackFileTypeStems:
		return "Stems"
	}
	return string(t)
}

func fileTypeRank(t models.TrackFileType) int {
	for i, ft := range models.TrackFileTypes {
		if ft == t {
			return i
		}
	}
	return len(models.TrackFileTypes)
}

func hasFile(files []LibraryFile, id uuid.UUID) bool {
	for _, f := range files {
		if f.ID == id {
			return true
		}
	}
	return false
}
