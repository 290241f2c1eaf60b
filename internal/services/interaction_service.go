// internal/services/interaction_service.go
package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/policy"
)

const likedTracksLimit = 50

type LikeState struct {
	TrackID   uuid.UUID `json:"track_id"`
	Liked     bool      `json:"liked"`
	LikeCount int64     `json:"like_count"`
}

type FollowState struct {
	ProducerID    uuid.UUID `json:"producer_id"`
	Following     bool      `json:"following"`
	FollowerCount int64     `json:"follower_count"`
}

// InteractionService records likes and follows. Both are set operations:
// asking for the current state again changes nothing.
type InteractionService struct {
	db *gorm.DB
}

func NewInteractionService(db *gorm.DB) *InteractionService {
	return &InteractionService{db: db}
}

// SetLike likes or unlikes a track. Only published tracks can be liked; an
// existing like can always be removed.
func (s *InteractionService) SetLike(ctx context.Context, actor policy.Subject, trackID uuid.UUID, liked bool) (*LikeState, error) {
	if err := authorizeInteraction(actor, liked); err != nil {
		return nil, err
	}

	state := &LikeState{TrackID: trackID, Liked: liked}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var track models.Track
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&track, "id = ?", trackID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("track")
			}
			return err
		}

		var delta int64
		if liked {
			if !track.IsPublished() {
				return apperrors.NotFound("track")
			}
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.TrackLike{UserID: actor.UserID, TrackID: trackID})
			if result.Error != nil {
				return result.Error
			}
			delta = result.RowsAffected
		} else {
			result := tx.Where("user_id = ? AND track_id = ?", actor.UserID, trackID).Delete(&models.TrackLike{})
			if result.Error != nil {
				return result.Error
			}
			delta = -result.RowsAffected
		}

		if delta != 0 {
			err := tx.Model(&models.Track{}).Where("id = ?", trackID).
				UpdateColumn("like_count", gorm.Expr("like_count + ?", delta)).Error
			if err != nil {
				return err
			}
		}
		state.LikeCount = track.LikeCount + delta
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "failed to update like")
	}

	logrus.WithFields(logrus.Fields{"user_id": actor.UserID, "track_id": trackID, "liked": liked}).Debug("Track like updated")
	return state, nil
}

// SetFollow follows or unfollows a producer. Users cannot follow themselves.
func (s *InteractionService) SetFollow(ctx context.Context, actor policy.Subject, producerID uuid.UUID, following bool) (*FollowState, error) {
	if err := authorizeInteraction(actor, following); err != nil {
		return nil, err
	}
	if actor.UserID == producerID {
		return nil, apperrors.Validation("cannot follow yourself", apperrors.FieldError{Field: "producer_id", Message: "you cannot follow yourself"})
	}

	state := &FollowState{ProducerID: producerID, Following: following}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if following {
			var producer models.User
			err := tx.Where("id = ? AND role = ? AND status = ?", producerID, models.UserRoleProducer, models.UserStatusActive).
				First(&producer).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperrors.NotFound("producer")
				}
				return err
			}
			err = tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.ProducerFollow{FollowerID: actor.UserID, ProducerID: producerID}).Error
			if err != nil {
				return err
			}
		} else {
			err := tx.Where("follower_id = ? AND producer_id = ?", actor.UserID, producerID).
				Delete(&models.ProducerFollow{}).Error
			if err != nil {
				return err
			}
		}

		var err error
		state.FollowerCount, err = followerCount(tx, producerID)
		return err
	})
	if err != nil {
		return nil, asServiceError(err, "failed to update follow")
	}

	logrus.WithFields(logrus.Fields{"user_id": actor.UserID, "producer_id": producerID, "following": following}).Debug("Producer follow updated")
	return state, nil
}

// LikedTracks returns the caller's most recently liked tracks that are
// still published.
func (s *InteractionService) LikedTracks(ctx context.Context, userID uuid.UUID) ([]TrackListing, error) {
	var tracks []models.Track
	err := withListingPreloads(s.db.WithContext(ctx)).
		Select("tracks.*").
		Joins("JOIN track_likes ON track_likes.track_id = tracks.id").
		Where("track_likes.user_id = ? AND tracks.status = ?", userID, models.TrackStatusPublished).
		Order("track_likes.created_at DESC, tracks.id ASC").
		Limit(likedTracksLimit).
		Find(&tracks).Error
	if err != nil {
		return nil, apperrors.Internal("failed to load liked tracks", err)
	}

	listings := make([]TrackListing, 0, len(tracks))
	for i := range tracks {
		listings = append(listings, toListing(&tracks[i]))
	}
	return listings, nil
}

// Following returns the producers the caller follows.
func (s *InteractionService) Following(ctx context.Context, userID uuid.UUID) ([]models.ProducerSummary, error) {
	var producers []models.User
	err := s.db.WithContext(ctx).
		Select("users.*").
		Joins("JOIN producer_follows ON producer_follows.producer_id = users.id").
		Where("producer_follows.follower_id = ? AND users.status = ?", userID, models.UserStatusActive).
		Order("producer_follows.created_at DESC, users.id ASC").
		Find(&producers).Error
	if err != nil {
		return nil, apperrors.Internal("failed to load followed producers", err)
	}

	out := make([]models.ProducerSummary, 0, len(producers))
	for i := range producers {
		out = append(out, producers[i].Summary())
	}
	return out, nil
}

func authorizeInteraction(actor policy.Subject, adding bool) error {
	action := policy.ActionDelete
	if adding {
		action = policy.ActionCreate
	}
	if d := policy.Authorize(actor, policy.On(policy.ResourceInteraction), action); !d.Allowed {
		if !actor.Authenticated() {
			return apperrors.Unauthorized(d.Reason)
		}
		return apperrors.Forbidden(d.Reason)
	}
	return nil
}

func followerCount(db *gorm.DB, producerID uuid.UUID) (int64, error) {
	var n int64
	err := db.Model(&models.ProducerFollow{}).Where("producer_id = ?", producerID).Count(&n).Error
	return n, err
}
