package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/cart"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/testutil"
)

func TestAuthorizePublicFileWithoutViewer(t *testing.T) {
	env := testutil.NewEnv(t)
	l := newListing(t, env, "Preview Me", "10.00")
	preview := testutil.CreateFile(t, env.DB, l.track.ID, models.TrackFileTypePreviewAudio, "preview.mp3")

	link, err := env.Services.Downloads.Authorize(context.Background(), nil, preview.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/"+preview.StoragePath, link.URL)
	assert.Nil(t, link.ExpiresAt)
}

func TestAuthorizeDeniesUniformly(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	l := newListing(t, env, "Locked", "10.00")
	main := testutil.CreateFile(t, env.DB, l.track.ID, models.TrackFileTypeMainMP3, "locked.mp3")
	stranger := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)

	_, anonymousErr := env.Services.Downloads.Authorize(ctx, nil, main.ID)
	_, noPermissionErr := env.Services.Downloads.Authorize(ctx, &stranger.ID, main.ID)
	_, missingErr := env.Services.Downloads.Authorize(ctx, &stranger.ID, uuid.New())

	for _, err := range []error{anonymousErr, noPermissionErr, missingErr} {
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
	}
	assert.Equal(t, noPermissionErr.Error(), missingErr.Error())
	assert.Equal(t, anonymousErr.Error(), missingErr.Error())
}

func TestAuthorizeProducerNeedsPermissionToo(t *testing.T) {
	env := testutil.NewEnv(t)
	l := newListing(t, env, "My Own", "10.00")
	main := testutil.CreateFile(t, env.DB, l.track.ID, models.TrackFileTypeMainWAV, "own.wav")

	_, err := env.Services.Downloads.Authorize(context.Background(), &l.producer.ID, main.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
}

func TestAuthorizeAfterPurchase(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Bought It", "10.00")
	mp3 := testutil.CreateFile(t, env.DB, l.track.ID, models.TrackFileTypeMainMP3, "bought.mp3")
	stems := testutil.CreateFile(t, env.DB, l.track.ID, models.TrackFileTypeStems, "bought-stems.zip")

	result := checkout(t, env, buyer, l.item())

	// Pending orders grant nothing.
	_, err := env.Services.Downloads.Authorize(ctx, &buyer.ID, mp3.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))

	_, err = env.Services.Fulfillment.HandlePaymentEvent(ctx, paidEvent("evt_bought", result))
	require.NoError(t, err)

	link, err := env.Services.Downloads.Authorize(ctx, &buyer.ID, mp3.ID)
	require.NoError(t, err)
	assert.Contains(t, link.URL, "https://signed.test/"+mp3.StoragePath)
	assert.NotNil(t, link.ExpiresAt)
	assert.Equal(t, l.track.Slug+"-main-mp3.mp3", link.FileName)

	// The basic license only covers the MP3.
	_, err = env.Services.Downloads.Authorize(ctx, &buyer.ID, stems.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
}

func TestAuthorizeSurvivesLicenseDeletion(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Retired License", "10.00")
	testutil.CreateLicense(t, env.DB, l.track.ID, models.LicenseTypePremium, "40.00")
	mp3 := testutil.CreateFile(t, env.DB, l.track.ID, models.TrackFileTypeMainMP3, "retired.mp3")

	purchase(t, env, buyer, l.item())
	require.NoError(t, env.Services.Licenses.Delete(ctx, subject(l.producer), l.license.ID))

	_, err := env.Services.Downloads.Authorize(ctx, &buyer.ID, mp3.ID)
	assert.NoError(t, err)
}

func TestAuthorizeRevokedByRefund(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	admin := testutil.CreateUser(t, env.DB, models.UserRoleAdmin)
	l := newListing(t, env, "Refunded", "10.00")
	mp3 := testutil.CreateFile(t, env.DB, l.track.ID, models.TrackFileTypeMainMP3, "refunded.mp3")

	result := purchase(t, env, buyer, l.item())
	_, err := env.Services.Downloads.Authorize(ctx, &buyer.ID, mp3.ID)
	require.NoError(t, err)

	_, err = env.Services.Admin.RefundOrder(ctx, subject(admin), result.OrderID, "chargeback")
	require.NoError(t, err)

	_, err = env.Services.Downloads.Authorize(ctx, &buyer.ID, mp3.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
}

func TestListDownloadsGroupsByTrack(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)
	l := newListing(t, env, "Library", "10.00")
	premium := testutil.CreateLicense(t, env.DB, l.track.ID, models.LicenseTypePremium, "35.00",
		models.TrackFileTypeMainMP3, models.TrackFileTypeMainWAV)
	testutil.CreateFile(t, env.DB, l.track.ID, models.TrackFileTypePreviewAudio, "library-preview.mp3")
	testutil.CreateFile(t, env.DB, l.track.ID, models.TrackFileTypeMainWAV, "library.wav")
	testutil.CreateFile(t, env.DB, l.track.ID, models.TrackFileTypeMainMP3, "library.mp3")
	testutil.CreateFile(t, env.DB, l.track.ID, models.TrackFileTypeStems, "library-stems.zip")

	other := newListing(t, env, "Not Bought", "10.00")
	testutil.CreateFile(t, env.DB, other.track.ID, models.TrackFileTypeMainMP3, "not-bought.mp3")

	purchase(t, env, buyer, l.item(), cart.Item{TrackID: l.track.ID, LicenseID: premium.ID})

	entries, err := env.Services.Downloads.ListDownloads(ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, l.track.ID, entry.TrackID)
	assert.Len(t, entry.Licenses, 2)
	require.Len(t, entry.Files, 2)
	assert.Equal(t, models.TrackFileTypeMainMP3, entry.Files[0].FileType)
	assert.Equal(t, models.TrackFileTypeMainWAV, entry.Files[1].FileType)
}

func TestListDownloadsEmpty(t *testing.T) {
	env := testutil.NewEnv(t)
	buyer := testutil.CreateUser(t, env.DB, models.UserRoleCustomer)

	entries, err := env.Services.Downloads.ListDownloads(context.Background(), buyer.ID)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}
