// internal/services/moderation_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/database"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/policy"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

const (
	minReportReason = 10
	maxReportReason = 1000
)

// trackTransitions lists every allowed track status change.
var trackTransitions = map[models.TrackStatus][]models.TrackStatus{
	models.TrackStatusDraft:         {models.TrackStatusPendingReview},
	models.TrackStatusPendingReview: {models.TrackStatusPublished, models.TrackStatusRejected},
	models.TrackStatusRejected:      {models.TrackStatusPendingReview},
	models.TrackStatusPublished:     {models.TrackStatusDraft},
}

func CanTransition(from, to models.TrackStatus) bool {
	for _, next := range trackTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type ReportAction string

const (
	ReportResolve ReportAction = "resolve"
	ReportDismiss ReportAction = "dismiss"
)

type ResolveReportRequest struct {
	Action ReportAction `json:"action" validate:"required,oneof=resolve dismiss"`
	Note   string       `json:"note" validate:"max=1000"`
	// TakeDown moves the reported track out of the catalog: a published track
	// is unpublished, a track under review is rejected with Note as reason.
	TakeDown bool `json:"take_down"`
}

type ModerationService struct {
	db       *gorm.DB
	notifier Notifier
}

func NewModerationService(db *gorm.DB, notifier Notifier) *ModerationService {
	return &ModerationService{db: db, notifier: notifier}
}

// Submit sends a draft or rejected track to review.
func (s *ModerationService) Submit(ctx context.Context, actor policy.Subject, trackID uuid.UUID) (*models.Track, error) {
	var track *models.Track
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		track, err = loadTrackForUpdate(tx, actor, trackID, policy.ActionSubmit)
		if err != nil {
			return err
		}
		if err := requireLicense(tx, trackID); err != nil {
			return err
		}

		now := time.Now()
		return transitionTrack(tx, track, models.TrackStatusPendingReview, map[string]interface{}{
			"submitted_at":     &now,
			"rejection_reason": "",
		})
	})
	if err != nil {
		return nil, asServiceError(err, "failed to submit track")
	}

	logrus.WithField("track_id", trackID).Info("Track submitted for review")
	return track, nil
}

// Approve publishes a track under review.
func (s *ModerationService) Approve(ctx context.Context, actor policy.Subject, trackID uuid.UUID) (*models.Track, error) {
	var track *models.Track
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		track, err = loadTrackForUpdate(tx, actor, trackID, policy.ActionReview)
		if err != nil {
			return err
		}
		if err := requireLicense(tx, trackID); err != nil {
			return err
		}

		now := time.Now()
		return transitionTrack(tx, track, models.TrackStatusPublished, map[string]interface{}{
			"published_at":     &now,
			"rejection_reason": "",
		})
	})
	if err != nil {
		return nil, asServiceError(err, "failed to approve track")
	}

	s.notifyReview(ctx, track, true, "")
	logrus.WithFields(logrus.Fields{"track_id": trackID, "admin_id": actor.UserID}).Info("Track approved")
	return track, nil
}

// Reject sends a track under review back to its producer.
func (s *ModerationService) Reject(ctx context.Context, actor policy.Subject, trackID uuid.UUID, reason string) (*models.Track, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" || utf8.RuneCountInString(reason) > maxReportReason {
		return nil, apperrors.Validation("invalid rejection reason", apperrors.FieldError{
			Field:   "reason",
			Message: fmt.Sprintf("reason is required and limited to %d characters", maxReportReason),
		})
	}

	var track *models.Track
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		track, err = loadTrackForUpdate(tx, actor, trackID, policy.ActionReview)
		if err != nil {
			return err
		}
		return transitionTrack(tx, track, models.TrackStatusRejected, map[string]interface{}{
			"rejection_reason": reason,
		})
	})
	if err != nil {
		return nil, asServiceError(err, "failed to reject track")
	}

	s.notifyReview(ctx, track, false, reason)
	logrus.WithFields(logrus.Fields{"track_id": trackID, "admin_id": actor.UserID}).Info("Track rejected")
	return track, nil
}

// Unpublish takes a published track out of the catalog. Buyers keep their
// downloads.
func (s *ModerationService) Unpublish(ctx context.Context, actor policy.Subject, trackID uuid.UUID) (*models.Track, error) {
	var track *models.Track
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		track, err = loadTrackForUpdate(tx, actor, trackID, policy.ActionUpdate)
		if err != nil {
			return err
		}
		return transitionTrack(tx, track, models.TrackStatusDraft, nil)
	})
	if err != nil {
		return nil, asServiceError(err, "failed to unpublish track")
	}

	logrus.WithField("track_id", trackID).Info("Track unpublished")
	return track, nil
}

func (s *ModerationService) ListPendingTracks(ctx context.Context, params utils.PaginationParams) ([]models.Track, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Track{}).Where("status = ?", models.TrackStatusPendingReview)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, apperrors.Internal("failed to count pending tracks", err)
	}

	var tracks []models.Track
	err := query.Preload("Producer").Preload("Licenses").Preload("Files").
		Order("submitted_at ASC").Order("id ASC").
		Offset(params.Offset()).Limit(params.Limit).
		Find(&tracks).Error
	if err != nil {
		return nil, 0, apperrors.Internal("failed to list pending tracks", err)
	}
	return tracks, total, nil
}

// ReportTrack files a report against a published track. The track itself is
// not changed until an admin acts on the report.
func (s *ModerationService) ReportTrack(ctx context.Context, reporter policy.Subject, trackID uuid.UUID, reason string) (*models.ModerationQueueEntry, error) {
	if !policy.Allowed(reporter, policy.On(policy.ResourceReport), policy.ActionCreate) {
		return nil, apperrors.Unauthorized("sign in to report a track")
	}

	reason = strings.TrimSpace(reason)
	if n := utf8.RuneCountInString(reason); n < minReportReason || n > maxReportReason {
		return nil, apperrors.Validation("invalid report", apperrors.FieldError{
			Field:   "reason",
			Message: fmt.Sprintf("reason must be between %d and %d characters", minReportReason, maxReportReason),
		})
	}

	var track models.Track
	err := s.db.WithContext(ctx).
		Where("id = ? AND status = ?", trackID, models.TrackStatusPublished).
		First(&track).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("track")
		}
		return nil, apperrors.Internal("failed to load track", err)
	}
	if track.ProducerID == reporter.UserID {
		return nil, apperrors.Validation("invalid report", apperrors.FieldError{Field: "track_id", Message: "you cannot report your own track"})
	}

	var open int64
	err = s.db.WithContext(ctx).Model(&models.ModerationQueueEntry{}).
		Where("track_id = ? AND reporter_id = ? AND status = ?", trackID, reporter.UserID, models.ReportStatusOpen).
		Count(&open).Error
	if err != nil {
		return nil, apperrors.Internal("failed to check existing reports", err)
	}
	if open > 0 {
		return nil, apperrors.Conflict("you already reported this track")
	}

	entry := &models.ModerationQueueEntry{
		TrackID:    trackID,
		ReporterID: reporter.UserID,
		Reason:     reason,
		Status:     models.ReportStatusOpen,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("you already reported this track")
		}
		return nil, apperrors.Internal("failed to create report", err)
	}

	logrus.WithFields(logrus.Fields{
		"report_id":   entry.ID,
		"track_id":    trackID,
		"reporter_id": reporter.UserID,
	}).Info("Track reported")

	return entry, nil
}

func (s *ModerationService) ListReports(ctx context.Context, status models.ReportStatus, params utils.PaginationParams) ([]models.ModerationQueueEntry, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.ModerationQueueEntry{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, apperrors.Internal("failed to count reports", err)
	}

	var entries []models.ModerationQueueEntry
	err := query.Preload("Track").Preload("Reporter").
		Order("created_at ASC").Order("id ASC").
		Offset(params.Offset()).Limit(params.Limit).
		Find(&entries).Error
	if err != nil {
		return nil, 0, apperrors.Internal("failed to list reports", err)
	}
	return entries, total, nil
}

// ResolveReport closes an open report. With TakeDown the track leaves the
// catalog through the regular status transitions.
func (s *ModerationService) ResolveReport(ctx context.Context, actor policy.Subject, reportID uuid.UUID, req *ResolveReportRequest) (*models.ModerationQueueEntry, error) {
	if !policy.Allowed(actor, policy.On(policy.ResourceReport), policy.ActionReview) {
		return nil, apperrors.Forbidden("only admins can resolve reports")
	}
	if err := utils.ValidateRequest(req); err != nil {
		return nil, err
	}

	var entry models.ModerationQueueEntry
	var rejected *models.Track
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&entry, "id = ?", reportID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("report")
			}
			return err
		}
		if entry.Status != models.ReportStatusOpen {
			return apperrors.Conflict("report is already closed")
		}

		status := models.ReportStatusResolved
		if req.Action == ReportDismiss {
			status = models.ReportStatusDismissed
		}
		now := time.Now()
		adminID := actor.UserID
		result := tx.Model(&entry).
			Where("status = ?", models.ReportStatusOpen).
			Updates(map[string]interface{}{
				"status":          status,
				"resolved_by_id":  &adminID,
				"resolved_at":     &now,
				"resolution_note": req.Note,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.Conflict("report is already closed")
		}

		if !req.TakeDown || req.Action == ReportDismiss {
			return nil
		}

		track, err := loadTrackForUpdate(tx, actor, entry.TrackID, policy.ActionReview)
		if err != nil {
			return err
		}
		switch track.Status {
		case models.TrackStatusPublished:
			return transitionTrack(tx, track, models.TrackStatusDraft, nil)
		case models.TrackStatusPendingReview:
			reason := req.Note
			if reason == "" {
				reason = "Removed after a content report"
			}
			if err := transitionTrack(tx, track, models.TrackStatusRejected, map[string]interface{}{"rejection_reason": reason}); err != nil {
				return err
			}
			rejected = track
			return nil
		default:
			return nil
		}
	})
	if err != nil {
		return nil, asServiceError(err, "failed to resolve report")
	}

	if rejected != nil {
		s.notifyReview(ctx, rejected, false, rejected.RejectionReason)
	}

	logrus.WithFields(logrus.Fields{
		"report_id": reportID,
		"action":    req.Action,
		"take_down": req.TakeDown,
		"admin_id":  actor.UserID,
	}).Info("Report closed")

	return &entry, nil
}

// transitionTrack moves track to next. The update is conditional on the
// current status so a concurrent change surfaces as a conflict.
func transitionTrack(tx *gorm.DB, track *models.Track, next models.TrackStatus, extra map[string]interface{}) error {
	if !CanTransition(track.Status, next) {
		return apperrors.Conflict(fmt.Sprintf("cannot move track from %s to %s", track.Status, next))
	}

	updates := map[string]interface{}{"status": next}
	for k, v := range extra {
		updates[k] = v
	}

	result := tx.Model(&models.Track{}).
		Where("id = ? AND status = ?", track.ID, track.Status).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.Conflict("track status changed concurrently")
	}

	track.Status = next
	if reason, ok := updates["rejection_reason"].(string); ok {
		track.RejectionReason = reason
	}
	if v, ok := updates["published_at"].(*time.Time); ok {
		track.PublishedAt = v
	}
	if v, ok := updates["submitted_at"].(*time.Time); ok {
		track.SubmittedAt = v
	}
	return nil
}

// requireLicense enforces that reviewable and published tracks are
// purchasable.
func requireLicense(tx *gorm.DB, trackID uuid.UUID) error {
	var count int64
	if err := tx.Model(&models.License{}).Where("track_id = ? AND price >= 0", trackID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return apperrors.Conflict("track needs at least one license before it can be published")
	}
	return nil
}

func (s *ModerationService) notifyReview(ctx context.Context, track *models.Track, approved bool, reason string) {
	if s.notifier == nil {
		return
	}

	var producer models.User
	if err := s.db.WithContext(ctx).First(&producer, "id = ?", track.ProducerID).Error; err != nil {
		logrus.WithError(err).WithField("track_id", track.ID).Warn("Failed to load producer for review notice")
		return
	}

	s.notifier.EnqueueTrackReviewed(TrackReviewNotice{
		To:           producer.Email,
		ProducerName: producer.DisplayName(),
		TrackTitle:   track.Title,
		TrackSlug:    track.Slug,
		Approved:     approved,
		Reason:       reason,
	})
}
