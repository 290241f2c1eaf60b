package services_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/services"
	"github.com/javajoker/wavhaven-backend/internal/testutil"
)

func upload(name string, size int) services.FileUpload {
	return services.FileUpload{
		FileName:    name,
		ContentType: "application/octet-stream",
		Size:        int64(size),
		Body:        bytes.NewReader(make([]byte, size)),
	}
}

func TestCreateTrackRequiresProducer(t *testing.T) {
	env := testutil.NewEnv(t)
	customer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)

	_, err := env.Services.Tracks.Create(context.Background(), subject(customer), &services.CreateTrackRequest{Title: "Nope"})
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
}

func TestCreateTrackStartsAsDraftWithUniqueSlug(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	producer := testutil.CreateUser(t, env.DB, models.UserRoleProducer)
	bpm := 92

	first, err := env.Services.Tracks.Create(ctx, subject(producer), &services.CreateTrackRequest{
		Title:  "  Summer Nights ",
		BPM:    &bpm,
		Key:    "A minor",
		Genres: []string{"Lo-Fi", "lo-fi", "Boom Bap"},
		Moods:  []string{"Chill"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.TrackStatusDraft, first.Status)
	assert.Equal(t, "Summer Nights", first.Title)
	assert.Equal(t, "summer-nights", first.Slug)
	assert.Len(t, first.Genres, 2)
	assert.Len(t, first.Moods, 1)
	assert.Equal(t, producer.ID, first.ProducerID)

	second, err := env.Services.Tracks.Create(ctx, subject(producer), &services.CreateTrackRequest{Title: "Summer Nights"})
	require.NoError(t, err)
	assert.Equal(t, "summer-nights-2", second.Slug)
}

func TestCreateTrackValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	producer := testutil.CreateUser(t, env.DB, models.UserRoleProducer)
	bpm := 900

	_, err := env.Services.Tracks.Create(context.Background(), subject(producer), &services.CreateTrackRequest{
		Title: "Bad Tempo",
		BPM:   &bpm,
		Key:   "H major",
	})
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)
	assert.Len(t, appErr.Fields, 2)
}

func TestUpdateTrackOnlyByOwner(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	producer := testutil.CreateUser(t, env.DB, models.UserRoleProducer)
	other := testutil.CreateUser(t, env.DB, models.UserRoleProducer)
	track := testutil.CreateTrack(t, env.DB, producer.ID, "Editable", models.TrackStatusDraft)
	title := "Edited"

	_, err := env.Services.Tracks.Update(ctx, subject(other), track.ID, &services.UpdateTrackRequest{Title: &title})
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))

	updated, err := env.Services.Tracks.Update(ctx, subject(producer), track.ID, &services.UpdateTrackRequest{
		Title: &title,
		Tags:  []string{"guitar"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Edited", updated.Title)
	assert.Equal(t, track.Slug, updated.Slug)
	require.Len(t, updated.Tags, 1)
	assert.Equal(t, "guitar", updated.Tags[0].Name)
}

func TestUploadFileValidatesExtensionAndSize(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	producer := testutil.CreateUser(t, env.DB, models.UserRoleProducer)
	track := testutil.CreateTrack(t, env.DB, producer.ID, "Uploads", models.TrackStatusDraft)

	_, err := env.Services.Tracks.UploadFile(ctx, subject(producer), track.ID, models.TrackFileTypeMainWAV, upload("mix.mp3", 10))
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	_, err = env.Services.Tracks.UploadFile(ctx, subject(producer), track.ID, "OTHER", upload("mix.wav", 10))
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	_, err = env.Services.Tracks.UploadFile(ctx, subject(producer), track.ID, models.TrackFileTypeMainWAV, upload("empty.wav", 0))
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	big := services.FileUpload{FileName: "cover.png", Size: 6 << 20, Body: strings.NewReader("")}
	_, err = env.Services.Tracks.UploadFile(ctx, subject(producer), track.ID, models.TrackFileTypeCoverImage, big)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	assert.Empty(t, env.Storage.Objects)
}

func TestUploadPreviewSetsPublicURL(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	producer := testutil.CreateUser(t, env.DB, models.UserRoleProducer)
	track := testutil.CreateTrack(t, env.DB, producer.ID, "Preview Upload", models.TrackStatusDraft)

	file, err := env.Services.Tracks.UploadFile(ctx, subject(producer), track.ID, models.TrackFileTypePreviewAudio, upload("Preview.MP3", 128))
	require.NoError(t, err)
	assert.True(t, env.Storage.Has(file.StoragePath))
	assert.True(t, strings.HasSuffix(file.StoragePath, ".mp3"))
	assert.Equal(t, "https://cdn.test/"+file.StoragePath, reload[models.Track](t, env, track.ID).PreviewURL)

	// A second preview replaces the first.
	replacement, err := env.Services.Tracks.UploadFile(ctx, subject(producer), track.ID, models.TrackFileTypePreviewAudio, upload("take2.mp3", 64))
	require.NoError(t, err)
	assert.False(t, env.Storage.Has(file.StoragePath))
	assert.EqualValues(t, 1, countRows(t, env, &models.TrackFile{}, "track_id = ?", track.ID))

	require.NoError(t, env.Services.Tracks.DeleteFile(ctx, subject(producer), replacement.ID))
	assert.Empty(t, reload[models.Track](t, env, track.ID).PreviewURL)
	assert.False(t, env.Storage.Has(replacement.StoragePath))
}

func TestUploadFileByStrangerWritesNothing(t *testing.T) {
	env := testutil.NewEnv(t)
	producer := testutil.CreateUser(t, env.DB, models.UserRoleProducer)
	other := testutil.CreateUser(t, env.DB, models.UserRoleProducer)
	track := testutil.CreateTrack(t, env.DB, producer.ID, "Guarded", models.TrackStatusDraft)

	_, err := env.Services.Tracks.UploadFile(context.Background(), subject(other), track.ID, models.TrackFileTypeMainMP3, upload("x.mp3", 16))
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
	assert.Empty(t, env.Storage.Objects)
}

func TestDeleteTrackWithoutOrders(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	producer := testutil.CreateUser(t, env.DB, models.UserRoleProducer)
	track := testutil.CreateTrack(t, env.DB, producer.ID, "Throwaway", models.TrackStatusDraft)
	file := testutil.CreateFile(t, env.DB, track.ID, models.TrackFileTypeMainMP3, "throwaway.mp3")

	result, err := env.Services.Tracks.Delete(ctx, subject(producer), track.ID)
	require.NoError(t, err)
	assert.True(t, result.Deleted)
	assert.False(t, result.Unpublished)
	assert.Contains(t, env.Storage.Deleted, file.StoragePath)

	_, err = env.Services.Tracks.GetForOwner(ctx, subject(producer), track.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestDeleteSoldTrackUnpublishes(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Sold Once", "10.00")
	mp3 := testutil.CreateFile(t, env.DB, l.track.ID, models.TrackFileTypeMainMP3, "sold.mp3")
	purchase(t, env, buyer, l.item())

	result, err := env.Services.Tracks.Delete(ctx, subject(l.producer), l.track.ID)
	require.NoError(t, err)
	assert.True(t, result.Unpublished)
	assert.False(t, result.Deleted)
	assert.Equal(t, models.TrackStatusDraft, reload[models.Track](t, env, l.track.ID).Status)

	// The buyer keeps their download.
	_, err = env.Services.Downloads.Authorize(ctx, &buyer.ID, mp3.ID)
	assert.NoError(t, err)
}

func TestDeleteSoldTrackFollowsStatusMachine(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Under Review Again", "10.00")
	purchase(t, env, buyer, l.item())

	_, err := env.Services.Moderation.Unpublish(ctx, subject(l.producer), l.track.ID)
	require.NoError(t, err)
	_, err = env.Services.Moderation.Submit(ctx, subject(l.producer), l.track.ID)
	require.NoError(t, err)

	_, err = env.Services.Tracks.Delete(ctx, subject(l.producer), l.track.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
	assert.Equal(t, models.TrackStatusPendingReview, reload[models.Track](t, env, l.track.ID).Status)

	admin := testutil.CreateUser(t, env.DB, models.UserRoleAdmin)
	_, err = env.Services.Moderation.Reject(ctx, subject(admin), l.track.ID, "needs a cleaner mix")
	require.NoError(t, err)

	// Already out of the catalog: removing it again changes nothing.
	result, err := env.Services.Tracks.Delete(ctx, subject(l.producer), l.track.ID)
	require.NoError(t, err)
	assert.True(t, result.Unpublished)
	assert.Equal(t, models.TrackStatusRejected, reload[models.Track](t, env, l.track.ID).Status)
}

func TestDeleteFileKeepsPaidFilesOfSoldTracks(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Keep The Files", "10.00")
	mp3 := testutil.CreateFile(t, env.DB, l.track.ID, models.TrackFileTypeMainMP3, "keep.mp3")
	cover := testutil.CreateFile(t, env.DB, l.track.ID, models.TrackFileTypeCoverImage, "cover.jpg")
	purchase(t, env, buyer, l.item())

	err := env.Services.Tracks.DeleteFile(ctx, subject(l.producer), mp3.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
	_, err = env.Services.Downloads.Authorize(ctx, &buyer.ID, mp3.ID)
	assert.NoError(t, err)

	// Public artwork is not part of any entitlement.
	require.NoError(t, env.Services.Tracks.DeleteFile(ctx, subject(l.producer), cover.ID))

	// A replacement keeps the buyer's access to the file type.
	replacement, err := env.Services.Tracks.UploadFile(ctx, subject(l.producer), l.track.ID, models.TrackFileTypeMainMP3, upload("remaster.mp3", 32))
	require.NoError(t, err)
	_, err = env.Services.Downloads.Authorize(ctx, &buyer.ID, replacement.ID)
	assert.NoError(t, err)
}

func TestListMineOnlyOwnTracks(t *testing.T) {
	env := testutil.NewEnv(t)
	producer := testutil.CreateUser(t, env.DB, models.UserRoleProducer)
	other := testutil.CreateUser(t, env.DB, models.UserRoleProducer)
	testutil.CreateTrack(t, env.DB, producer.ID, "Mine A", models.TrackStatusDraft)
	testutil.CreateTrack(t, env.DB, producer.ID, "Mine B", models.TrackStatusPublished)
	testutil.CreateTrack(t, env.DB, other.ID, "Theirs", models.TrackStatusPublished)

	tracks, total, err := env.Services.Tracks.ListMine(context.Background(), producer.ID, pageOf(1, 10))
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, tracks, 2)
}

func TestUpsertLicenseRecomputesMinPrice(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	producer := testutil.CreateUser(t, env.DB, models.UserRoleProducer)
	track := testutil.CreateTrack(t, env.DB, producer.ID, "Priced", models.TrackStatusDraft)
	licenses := env.Services.Licenses

	premium, err := licenses.Upsert(ctx, subject(producer), track.ID, &services.UpsertLicenseRequest{
		Type:          models.LicenseTypePremium,
		Name:          "Premium",
		Price:         decimal.RequireFromString("49.99"),
		FilesIncluded: []models.TrackFileType{models.TrackFileTypeMainMP3, models.TrackFileTypeMainWAV, models.TrackFileTypePreviewAudio, models.TrackFileTypeMainWAV},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"MAIN_MP3", "MAIN_WAV"}, []string(premium.FilesIncluded))

	_, err = licenses.Upsert(ctx, subject(producer), track.ID, &services.UpsertLicenseRequest{
		Type:  models.LicenseTypeBasic,
		Name:  "Basic",
		Price: decimal.RequireFromString("19.99"),
	})
	require.NoError(t, err)
	stored := reload[models.Track](t, env, track.ID)
	require.True(t, stored.MinPrice.Valid)
	assert.True(t, decimal.RequireFromString("19.99").Equal(stored.MinPrice.Decimal))

	// Same type again replaces the existing license.
	again, err := licenses.Upsert(ctx, subject(producer), track.ID, &services.UpsertLicenseRequest{
		Type:  models.LicenseTypePremium,
		Name:  "Premium Plus",
		Price: decimal.RequireFromString("9.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, premium.ID, again.ID)

	list, err := licenses.List(ctx, track.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Premium Plus", list[0].Name)
	assert.True(t, decimal.RequireFromString("9.5").Equal(reload[models.Track](t, env, track.ID).MinPrice.Decimal))
}

func TestUpsertLicenseValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	producer := testutil.CreateUser(t, env.DB, models.UserRoleProducer)
	other := testutil.CreateUser(t, env.DB, models.UserRoleProducer)
	track := testutil.CreateTrack(t, env.DB, producer.ID, "Validated", models.TrackStatusDraft)

	for _, price := range []string{"-1", "10.999", "1000000"} {
		_, err := env.Services.Licenses.Upsert(ctx, subject(producer), track.ID, &services.UpsertLicenseRequest{
			Type:  models.LicenseTypeBasic,
			Name:  "Basic",
			Price: decimal.RequireFromString(price),
		})
		assert.True(t, apperrors.Is(err, apperrors.KindValidation), price)
	}

	_, err := env.Services.Licenses.Upsert(ctx, subject(producer), track.ID, &services.UpsertLicenseRequest{
		Type:  "LIFETIME",
		Name:  "Lifetime",
		Price: decimal.RequireFromString("10"),
	})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	_, err = env.Services.Licenses.Upsert(ctx, subject(other), track.ID, &services.UpsertLicenseRequest{
		Type:  models.LicenseTypeBasic,
		Name:  "Basic",
		Price: decimal.RequireFromString("10"),
	})
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
}
