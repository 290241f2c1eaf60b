package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/policy"
	"github.com/javajoker/wavhaven-backend/internal/testutil"
)

func TestSetLikeIsIdempotent(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	fan := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	other := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Likeable", "10.00")

	state, err := env.Services.Interactions.SetLike(ctx, subject(fan), l.track.ID, true)
	require.NoError(t, err)
	assert.True(t, state.Liked)
	assert.EqualValues(t, 1, state.LikeCount)

	state, err = env.Services.Interactions.SetLike(ctx, subject(fan), l.track.ID, true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, state.LikeCount)

	_, err = env.Services.Interactions.SetLike(ctx, subject(other), l.track.ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), countRows(t, env, &models.TrackLike{}, "track_id = ?", l.track.ID))
	assert.EqualValues(t, 2, reload[models.Track](t, env, l.track.ID).LikeCount)

	state, err = env.Services.Interactions.SetLike(ctx, subject(fan), l.track.ID, false)
	require.NoError(t, err)
	assert.False(t, state.Liked)
	assert.EqualValues(t, 1, state.LikeCount)

	state, err = env.Services.Interactions.SetLike(ctx, subject(fan), l.track.ID, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, state.LikeCount)

	listing, err := env.Services.Catalog.GetBySlug(ctx, l.track.Slug, policy.Guest())
	require.NoError(t, err)
	assert.EqualValues(t, 1, listing.LikeCount)
}

func TestSetLikeOnlyForPublishedTracks(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	fan := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Soon Gone", "10.00")
	draft := testutil.CreateTrack(t, env.DB, l.producer.ID, "Unreleased", models.TrackStatusDraft)

	_, err := env.Services.Interactions.SetLike(ctx, subject(fan), draft.ID, true)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	_, err = env.Services.Interactions.SetLike(ctx, subject(fan), uuid.New(), true)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	_, err = env.Services.Interactions.SetLike(ctx, policy.Guest(), l.track.ID, true)
	assert.True(t, apperrors.Is(err, apperrors.KindUnauthorized))

	_, err = env.Services.Interactions.SetLike(ctx, subject(fan), l.track.ID, true)
	require.NoError(t, err)
	_, err = env.Services.Moderation.Unpublish(ctx, subject(l.producer), l.track.ID)
	require.NoError(t, err)

	liked, err := env.Services.Interactions.LikedTracks(ctx, fan.ID)
	require.NoError(t, err)
	assert.Empty(t, liked)

	// A like on a track that left the catalog can still be withdrawn.
	state, err := env.Services.Interactions.SetLike(ctx, subject(fan), l.track.ID, false)
	require.NoError(t, err)
	assert.EqualValues(t, 0, state.LikeCount)
}

func TestLikedTracksNewestFirst(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	fan := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	first := newListing(t, env, "First Like", "10.00")
	second := newListing(t, env, "Second Like", "10.00")

	_, err := env.Services.Interactions.SetLike(ctx, subject(fan), first.track.ID, true)
	require.NoError(t, err)
	_, err = env.Services.Interactions.SetLike(ctx, subject(fan), second.track.ID, true)
	require.NoError(t, err)
	require.NoError(t, env.DB.Model(&models.TrackLike{}).
		Where("track_id = ?", first.track.ID).
		Update("created_at", time.Now().Add(-time.Hour)).Error)

	liked, err := env.Services.Interactions.LikedTracks(ctx, fan.ID)
	require.NoError(t, err)
	require.Len(t, liked, 2)
	assert.Equal(t, "Second Like", liked[0].Title)
	assert.Equal(t, "First Like", liked[1].Title)
}

func TestDeletingUnsoldTrackClearsLikes(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	fan := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Short Lived", "10.00")

	_, err := env.Services.Interactions.SetLike(ctx, subject(fan), l.track.ID, true)
	require.NoError(t, err)

	result, err := env.Services.Tracks.Delete(ctx, subject(l.producer), l.track.ID)
	require.NoError(t, err)
	assert.True(t, result.Deleted)
	assert.Zero(t, countRows(t, env, &models.TrackLike{}, "track_id = ?", l.track.ID))
}

func TestSetFollow(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	fan := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	producer := testutil.CreateUser(t, env.DB, models.UserRoleProducer)
	customer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)

	state, err := env.Services.Interactions.SetFollow(ctx, subject(fan), producer.ID, true)
	require.NoError(t, err)
	assert.True(t, state.Following)
	assert.EqualValues(t, 1, state.FollowerCount)

	state, err = env.Services.Interactions.SetFollow(ctx, subject(fan), producer.ID, true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, state.FollowerCount)
	assert.Equal(t, int64(1), countRows(t, env, &models.ProducerFollow{}, "producer_id = ?", producer.ID))

	following, err := env.Services.Interactions.Following(ctx, fan.ID)
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, producer.ID, following[0].ID)

	profile, err := env.Services.Users.GetPublicProfile(ctx, *producer.Username)
	require.NoError(t, err)
	assert.EqualValues(t, 1, profile.FollowerCount)

	_, err = env.Services.Interactions.SetFollow(ctx, subject(producer), producer.ID, true)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
	_, err = env.Services.Interactions.SetFollow(ctx, subject(fan), customer.ID, true)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	state, err = env.Services.Interactions.SetFollow(ctx, subject(fan), producer.ID, false)
	require.NoError(t, err)
	assert.False(t, state.Following)
	assert.Zero(t, state.FollowerCount)

	state, err = env.Services.Interactions.SetFollow(ctx, subject(fan), producer.ID, false)
	require.NoError(t, err)
	assert.Zero(t, state.FollowerCount)
}
