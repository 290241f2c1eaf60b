// internal/services/catalog_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/policy"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

const (
	DefaultCatalogLimit = 12
	MaxKeywordLength    = 100
)

type CatalogSort string

const (
	SortRelevance  CatalogSort = "relevance"
	SortNewest     CatalogSort = "newest"
	SortPopularity CatalogSort = "popularity"
	SortPriceAsc   CatalogSort = "price_asc"
	SortPriceDesc  CatalogSort = "price_desc"
)

// TrackFilter narrows a catalog search. Zero values mean "not filtered";
// Page and Limit default to 1 and DefaultCatalogLimit.
type TrackFilter struct {
	Keyword      string               `json:"keyword" validate:"max=100"`
	Genres       []string             `json:"genres"`
	Moods        []string             `json:"moods"`
	Keys         []string             `json:"keys" validate:"dive,track_key"`
	MinBPM       *int                 `json:"min_bpm" validate:"omitempty,min=1,max=400"`
	MaxBPM       *int                 `json:"max_bpm" validate:"omitempty,min=1,max=400"`
	MinPrice     *decimal.Decimal     `json:"min_price"`
	MaxPrice     *decimal.Decimal     `json:"max_price"`
	LicenseTypes []models.LicenseType `json:"license_types" validate:"dive,license_type"`
	Sort         CatalogSort          `json:"sort" validate:"omitempty,oneof=relevance newest popularity price_asc price_desc"`
	Page         int                  `json:"page" validate:"omitempty,min=1"`
	Limit        int                  `json:"limit" validate:"omitempty,min=1,max=100"`
}

type LicenseSummary struct {
	ID            uuid.UUID          `json:"id"`
	Type          models.LicenseType `json:"type"`
	Name          string             `json:"name"`
	Price         decimal.Decimal    `json:"price"`
	FilesIncluded []string           `json:"files_included"`
}

// TrackListing is the public view of a published track.
type TrackListing struct {
	ID            uuid.UUID              `json:"id"`
	Title         string                 `json:"title"`
	Slug          string                 `json:"slug"`
	Description   string                 `json:"description"`
	BPM           *int                   `json:"bpm"`
	Key           string                 `json:"key"`
	PreviewURL    string                 `json:"preview_url"`
	CoverImageURL string                 `json:"cover_image_url"`
	Genres        []string               `json:"genres"`
	Moods         []string               `json:"moods"`
	Tags          []string               `json:"tags"`
	PlayCount     int64                  `json:"play_count"`
	LikeCount     int64                  `json:"like_count"`
	MinPrice      *decimal.Decimal       `json:"min_price"`
	PublishedAt   *time.Time             `json:"published_at"`
	Producer      models.ProducerSummary `json:"producer"`
	Licenses      []LicenseSummary       `json:"licenses"`
}

type SearchResult struct {
	Tracks []TrackListing `json:"tracks"`
	Total  int64          `json:"total"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

type CatalogService struct {
	db *gorm.DB
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

func (f *TrackFilter) normalize() error {
	if err := utils.ValidateRequest(f); err != nil {
		return err
	}

	var fields []apperrors.FieldError
	if f.MinBPM != nil && f.MaxBPM != nil && *f.MinBPM > *f.MaxBPM {
		fields = append(fields, apperrors.FieldError{Field: "min_bpm", Message: "min_bpm must not exceed max_bpm"})
	}
	if f.MinPrice != nil && f.MinPrice.IsNegative() {
		fields = append(fields, apperrors.FieldError{Field: "min_price", Message: "min_price must not be negative"})
	}
	if f.MaxPrice != nil && f.MaxPrice.IsNegative() {
		fields = append(fields, apperrors.FieldError{Field: "max_price", Message: "max_price must not be negative"})
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		fields = append(fields, apperrors.FieldError{Field: "min_price", Message: "min_price must not exceed max_price"})
	}
	if len(fields) > 0 {
		return apperrors.Validation("invalid filter", fields...)
	}

	f.Keyword = strings.TrimSpace(f.Keyword)
	if f.Sort == "" {
		f.Sort = SortRelevance
	}
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = DefaultCatalogLimit
	}
	return nil
}

// Search returns one page of published tracks matching filter. Total counts
// every match, not only the returned page.
func (s *CatalogService) Search(ctx context.Context, filter TrackFilter) (*SearchResult, error) {
	if err := filter.normalize(); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&models.Track{}).
		Where("tracks.status = ?", models.TrackStatusPublished)

	if filter.Keyword != "" {
		like := "%" + escapeLike(strings.ToLower(filter.Keyword)) + "%"
		query = query.Where(
			"(LOWER(tracks.title) LIKE ? ESCAPE '\\' OR LOWER(tracks.description) LIKE ? ESCAPE '\\' OR "+
				tagNameExists("track_tags")+" OR "+tagNameExists("track_genres")+" OR "+tagNameExists("track_moods")+" OR "+
				"EXISTS (SELECT 1 FROM users WHERE users.id = tracks.producer_id AND LOWER(users.username) LIKE ? ESCAPE '\\'))",
			like, like, like, like, like, like,
		)
	}
	if len(filter.Genres) > 0 {
		query = query.Where(tagSlugExists("track_genres"), slugs(filter.Genres))
	}
	if len(filter.Moods) > 0 {
		query = query.Where(tagSlugExists("track_moods"), slugs(filter.Moods))
	}
	if len(filter.Keys) > 0 {
		query = query.Where("tracks.key IN ?", filter.Keys)
	}
	if filter.MinBPM != nil {
		query = query.Where("tracks.bpm >= ?", *filter.MinBPM)
	}
	if filter.MaxBPM != nil {
		query = query.Where("tracks.bpm <= ?", *filter.MaxBPM)
	}
	if filter.MinPrice != nil || filter.MaxPrice != nil || len(filter.LicenseTypes) > 0 {
		// Price and type must hold for the same license.
		cond := []string{"licenses.track_id = tracks.id", "licenses.deleted_at IS NULL"}
		var args []interface{}
		if filter.MinPrice != nil {
			cond = append(cond, "licenses.price >= ?")
			args = append(args, *filter.MinPrice)
		}
		if filter.MaxPrice != nil {
			cond = append(cond, "licenses.price <= ?")
			args = append(args, *filter.MaxPrice)
		}
		if len(filter.LicenseTypes) > 0 {
			cond = append(cond, "licenses.type IN ?")
			args = append(args, filter.LicenseTypes)
		}
		query = query.Where("EXISTS (SELECT 1 FROM licenses WHERE "+strings.Join(cond, " AND ")+")", args...)
	}

	base := query.Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, apperrors.Internal("failed to count tracks", err)
	}

	result := &SearchResult{Tracks: []TrackListing{}, Total: total, Page: filter.Page, Limit: filter.Limit}
	if total == 0 {
		return result, nil
	}

	var tracks []models.Track
	ordered := applyCatalogSort(base, filter)
	if err := withListingPreloads(ordered).
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&tracks).Error; err != nil {
		return nil, apperrors.Internal("failed to search tracks", err)
	}

	for i := range tracks {
		result.Tracks = append(result.Tracks, toListing(&tracks[i]))
	}
	return result, nil
}

// GetBySlug returns a track page. Unpublished tracks are only visible to
// their producer and admins; everyone else gets NotFound.
func (s *CatalogService) GetBySlug(ctx context.Context, slug string, viewer policy.Subject) (*TrackListing, error) {
	var track models.Track
	err := withListingPreloads(s.db.WithContext(ctx)).
		Where("slug = ?", slug).
		First(&track).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("track")
		}
		return nil, apperrors.Internal("failed to load track", err)
	}

	if !track.IsPublished() && !policy.Allowed(viewer, policy.Owned(policy.ResourceTrack, track.ProducerID), policy.ActionUpdate) {
		return nil, apperrors.NotFound("track")
	}

	listing := toListing(&track)
	return &listing, nil
}

// IncrementPlayCount bumps the play counter. Failures are logged only.
func (s *CatalogService) IncrementPlayCount(ctx context.Context, trackID uuid.UUID) {
	err := s.db.WithContext(ctx).Model(&models.Track{}).
		Where("id = ? AND status = ?", trackID, models.TrackStatusPublished).
		UpdateColumn("play_count", gorm.Expr("play_count + 1")).Error
	if err != nil {
		logrus.WithError(err).WithField("track_id", trackID).Warn("Failed to increment play count")
	}
}

func (s *CatalogService) ListGenres(ctx context.Context) ([]models.Tag, error) {
	return s.listTags(ctx, models.TagKindGenre)
}

func (s *CatalogService) ListMoods(ctx context.Context) ([]models.Tag, error) {
	return s.listTags(ctx, models.TagKindMood)
}

func (s *CatalogService) listTags(ctx context.Context, kind models.TagKind) ([]models.Tag, error) {
	var tags []models.Tag
	if err := s.db.WithContext(ctx).Where("kind = ?", kind).Order("name ASC").Find(&tags).Error; err != nil {
		return nil, apperrors.Internal(fmt.Sprintf("failed to list %s tags", kind), err)
	}
	return tags, nil
}

func withListingPreloads(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Producer").
		Preload("Licenses", func(db *gorm.DB) *gorm.DB {
			return db.Order("licenses.price ASC, licenses.type ASC")
		}).
		Preload("Genres").
		Preload("Moods").
		Preload("Tags")
}

// catalogTieBreak keeps paging stable when the primary sort key ties.
const catalogTieBreak = "tracks.created_at DESC, tracks.id ASC"

func applyCatalogSort(db *gorm.DB, filter TrackFilter) *gorm.DB {
	switch filter.Sort {
	case SortNewest:
		return db.Order("tracks.published_at DESC, " + catalogTieBreak)
	case SortPopularity:
		return db.Order("tracks.sales_count DESC, tracks.play_count DESC, " + catalogTieBreak)
	case SortPriceAsc:
		return db.Order("tracks.min_price ASC, " + catalogTieBreak)
	case SortPriceDesc:
		return db.Order("tracks.min_price DESC, " + catalogTieBreak)
	}

	if filter.Keyword == "" {
		return db.Order(catalogTieBreak)
	}

	// gorm drops an OrderBy expression once plain columns are merged into
	// it, so the rank and the tie-break travel as one expression.
	kw := strings.ToLower(filter.Keyword)
	escaped := escapeLike(kw)
	return db.Order(clause.OrderBy{Expression: clause.Expr{
		SQL: "CASE WHEN LOWER(tracks.title) = ? THEN 0 " +
			"WHEN LOWER(tracks.title) LIKE ? ESCAPE '\\' THEN 1 " +
			"WHEN LOWER(tracks.title) LIKE ? ESCAPE '\\' THEN 2 ELSE 3 END, " + catalogTieBreak,
		Vars:               []interface{}{kw, escaped + "%", "%" + escaped + "%"},
		WithoutParentheses: true,
	}})
}

func tagNameExists(joinTable string) string {
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM %[1]s JOIN tags ON tags.id = %[1]s.tag_id WHERE %[1]s.track_id = tracks.id AND LOWER(tags.name) LIKE ? ESCAPE '\\')",
		joinTable,
	)
}

func tagSlugExists(joinTable string) string {
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM %[1]s JOIN tags ON tags.id = %[1]s.tag_id WHERE %[1]s.track_id = tracks.id AND tags.slug IN ?)",
		joinTable,
	)
}

func slugs(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if s := utils.Slugify(n); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func toListing(t *models.Track) TrackListing {
	listing := TrackListing{
		ID:            t.ID,
		Title:         t.Title,
		Slug:          t.Slug,
		Description:   t.Description,
		BPM:           t.BPM,
		Key:           t.Key,
		PreviewURL:    t.PreviewURL,
		CoverImageURL: t.CoverImageURL,
		Genres:        tagNames(t.Genres),
		Moods:         tagNames(t.Moods),
		Tags:          tagNames(t.Tags),
		PlayCount:     t.PlayCount,
		LikeCount:     t.LikeCount,
		PublishedAt:   t.PublishedAt,
		Licenses:      make([]LicenseSummary, 0, len(t.Licenses)),
	}
	if t.MinPrice.Valid {
		price := t.MinPrice.Decimal
		listing.MinPrice = &price
	}
	if t.Producer != nil {
		listing.Producer = t.Producer.Summary()
	}
	for _, l := range t.Licenses {
		listing.Licenses = append(listing.Licenses, LicenseSummary{
			ID:            l.ID,
			Type:          l.Type,
			Name:          l.Name,
			Price:         l.Price,
			FilesIncluded: []string(l.FilesIncluded),
		})
	}
	return listing
}

func tagNames(tags []models.Tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}
