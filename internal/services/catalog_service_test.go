package services_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/wavhaven-backend/internal/apperrors"
	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/policy"
	"github.com/javajoker/wavhaven-backend/internal/services"
	"github.com/javajoker/wavhaven-backend/internal/testutil"
)

type CatalogServiceTestSuite struct {
	suite.Suite
	env      *testutil.Env
	producer *models.User
	house    models.Tag
	trap     models.Tag
}

func (s *CatalogServiceTestSuite) SetupTest() {
	s.env = testutil.NewEnv(s.T())
	s.producer = testutil.CreateUser(s.T(), s.env.DB, models.UserRoleProducer)
	s.house = testutil.CreateTag(s.T(), s.env.DB, models.TagKindGenre, "House")
	s.trap = testutil.CreateTag(s.T(), s.env.DB, models.TagKindGenre, "Trap")
}

func (s *CatalogServiceTestSuite) track(title string, status models.TrackStatus, price string, opts ...testutil.TrackOption) *models.Track {
	track := testutil.CreateTrack(s.T(), s.env.DB, s.producer.ID, title, status, opts...)
	if price != "" {
		testutil.CreateLicense(s.T(), s.env.DB, track.ID, models.LicenseTypeBasic, price)
	}
	return track
}

func intPtr(v int) *int { return &v }

func titles(result *services.SearchResult) []string {
	out := make([]string, 0, len(result.Tracks))
	for _, t := range result.Tracks {
		out = append(out, t.Title)
	}
	return out
}

func (s *CatalogServiceTestSuite) TestSearchByGenreAndBPM() {
	s.track("Deep Groove", models.TrackStatusPublished, "20.00", testutil.WithBPM(124), testutil.WithGenres(s.house))
	s.track("Too Fast", models.TrackStatusPublished, "20.00", testutil.WithBPM(140), testutil.WithGenres(s.house))
	s.track("Wrong Genre", models.TrackStatusPublished, "20.00", testutil.WithBPM(125), testutil.WithGenres(s.trap))
	s.track("Unreleased", models.TrackStatusDraft, "20.00", testutil.WithBPM(126), testutil.WithGenres(s.house))
	s.track("Under Review", models.TrackStatusPendingReview, "20.00", testutil.WithBPM(126), testutil.WithGenres(s.house))

	result, err := s.env.Services.Catalog.Search(context.Background(), services.TrackFilter{
		Genres: []string{"house"},
		MinBPM: intPtr(120),
		MaxBPM: intPtr(130),
	})
	s.Require().NoError(err)

	s.EqualValues(1, result.Total)
	s.Equal([]string{"Deep Groove"}, titles(result))
	s.Equal([]string{"House"}, result.Tracks[0].Genres)
	s.Equal(s.producer.ID, result.Tracks[0].Producer.ID)
	s.Require().Len(result.Tracks[0].Licenses, 1)
}

func (s *CatalogServiceTestSuite) TestSearchRejectsInvertedRanges() {
	_, err := s.env.Services.Catalog.Search(context.Background(), services.TrackFilter{
		MinBPM: intPtr(140),
		MaxBPM: intPtr(120),
	})
	appErr, ok := apperrors.As(err)
	s.Require().True(ok)
	s.Equal(apperrors.KindValidation, appErr.Kind)
	s.Equal("min_bpm", appErr.Fields[0].Field)

	lo, hi := decimal.RequireFromString("50"), decimal.RequireFromString("10")
	_, err = s.env.Services.Catalog.Search(context.Background(), services.TrackFilter{MinPrice: &lo, MaxPrice: &hi})
	s.True(apperrors.Is(err, apperrors.KindValidation))
}

func (s *CatalogServiceTestSuite) TestSearchPriceFilterAndSort() {
	s.track("Cheap", models.TrackStatusPublished, "9.99")
	s.track("Middle", models.TrackStatusPublished, "29.99")
	s.track("Pricey", models.TrackStatusPublished, "99.00")

	floor, ceiling := decimal.RequireFromString("10"), decimal.RequireFromString("100")
	result, err := s.env.Services.Catalog.Search(context.Background(), services.TrackFilter{
		MinPrice: &floor,
		MaxPrice: &ceiling,
		Sort:     services.SortPriceDesc,
	})
	s.Require().NoError(err)
	s.Equal([]string{"Pricey", "Middle"}, titles(result))

	result, err = s.env.Services.Catalog.Search(context.Background(), services.TrackFilter{Sort: services.SortPriceAsc})
	s.Require().NoError(err)
	s.Equal([]string{"Cheap", "Middle", "Pricey"}, titles(result))
}

func (s *CatalogServiceTestSuite) TestSearchLicenseTypeAndPriceOnSameLicense() {
	track := s.track("Split Pricing", models.TrackStatusPublished, "10.00")
	testutil.CreateLicense(s.T(), s.env.DB, track.ID, models.LicenseTypeExclusive, "500.00")

	ceiling := decimal.RequireFromString("50")
	result, err := s.env.Services.Catalog.Search(context.Background(), services.TrackFilter{
		MaxPrice:     &ceiling,
		LicenseTypes: []models.LicenseType{models.LicenseTypeExclusive},
	})
	s.Require().NoError(err)
	s.Zero(result.Total)
	s.NotNil(result.Tracks)
}

func (s *CatalogServiceTestSuite) TestSearchKeywordRelevance() {
	s.track("Midnight City Lights", models.TrackStatusPublished, "10.00")
	s.track("Midnight", models.TrackStatusPublished, "10.00")
	s.track("After Midnight", models.TrackStatusPublished, "10.00")
	s.track("Sunrise", models.TrackStatusPublished, "10.00", testutil.WithDescription("warm chords, nothing about midnight"))
	s.track("Unrelated", models.TrackStatusPublished, "10.00")

	result, err := s.env.Services.Catalog.Search(context.Background(), services.TrackFilter{Keyword: "  MIDNIGHT "})
	s.Require().NoError(err)

	s.EqualValues(4, result.Total)
	s.Equal([]string{"Midnight", "Midnight City Lights", "After Midnight", "Sunrise"}, titles(result))
}

func (s *CatalogServiceTestSuite) TestSearchKeywordMatchesProducerAndEscapesWildcards() {
	s.track("Anything", models.TrackStatusPublished, "10.00")

	result, err := s.env.Services.Catalog.Search(context.Background(), services.TrackFilter{Keyword: *s.producer.Username})
	s.Require().NoError(err)
	s.EqualValues(1, result.Total)

	result, err = s.env.Services.Catalog.Search(context.Background(), services.TrackFilter{Keyword: "%"})
	s.Require().NoError(err)
	s.Zero(result.Total)
}

func (s *CatalogServiceTestSuite) TestSearchPagination() {
	for _, title := range []string{"One", "Two", "Three"} {
		s.track(title, models.TrackStatusPublished, "10.00")
	}

	result, err := s.env.Services.Catalog.Search(context.Background(), services.TrackFilter{Page: 2, Limit: 2})
	s.Require().NoError(err)
	s.EqualValues(3, result.Total)
	s.Len(result.Tracks, 1)
	s.Equal(2, result.Page)
}

func (s *CatalogServiceTestSuite) TestSearchRejectsOutOfRangePaging() {
	ctx := context.Background()
	for _, filter := range []services.TrackFilter{{Limit: 500}, {Limit: -1}, {Page: -1}} {
		_, err := s.env.Services.Catalog.Search(ctx, filter)
		s.True(apperrors.Is(err, apperrors.KindValidation), "%+v", filter)
	}
}

func (s *CatalogServiceTestSuite) TestGetBySlugHidesUnpublished() {
	draft := s.track("Work In Progress", models.TrackStatusDraft, "")
	stranger := testutil.CreateUser(s.T(), s.env.DB, models.UserRoleCustomer)
	admin := testutil.CreateUser(s.T(), s.env.DB, models.UserRoleAdmin)
	ctx := context.Background()

	_, err := s.env.Services.Catalog.GetBySlug(ctx, draft.Slug, policy.Guest())
	s.True(apperrors.Is(err, apperrors.KindNotFound))

	_, err = s.env.Services.Catalog.GetBySlug(ctx, draft.Slug, subject(stranger))
	s.True(apperrors.Is(err, apperrors.KindNotFound))

	listing, err := s.env.Services.Catalog.GetBySlug(ctx, draft.Slug, subject(s.producer))
	s.Require().NoError(err)
	s.Equal(draft.ID, listing.ID)
	s.Nil(listing.MinPrice)

	_, err = s.env.Services.Catalog.GetBySlug(ctx, draft.Slug, subject(admin))
	s.NoError(err)

	_, err = s.env.Services.Catalog.GetBySlug(ctx, "no-such-track", policy.Guest())
	s.True(apperrors.Is(err, apperrors.KindNotFound))
}

func (s *CatalogServiceTestSuite) TestIncrementPlayCountOnlyForPublished() {
	published := s.track("Played", models.TrackStatusPublished, "10.00")
	draft := s.track("Hidden", models.TrackStatusDraft, "")
	ctx := context.Background()

	s.env.Services.Catalog.IncrementPlayCount(ctx, published.ID)
	s.env.Services.Catalog.IncrementPlayCount(ctx, published.ID)
	s.env.Services.Catalog.IncrementPlayCount(ctx, draft.ID)

	s.EqualValues(2, reload[models.Track](s.T(), s.env, published.ID).PlayCount)
	s.EqualValues(0, reload[models.Track](s.T(), s.env, draft.ID).PlayCount)
}

func TestCatalogServiceTestSuite(t *testing.T) {
	suite.Run(t, new(CatalogServiceTestSuite))
}

func TestListGenresSorted(t *testing.T) {
	env := testutil.NewEnv(t)
	testutil.CreateTag(t, env.DB, models.TagKindGenre, "Trap")
	testutil.CreateTag(t, env.DB, models.TagKindGenre, "Drill")
	testutil.CreateTag(t, env.DB, models.TagKindMood, "Dark")

	genres, err := env.Services.Catalog.ListGenres(context.Background())
	require.NoError(t, err)
	require.Len(t, genres, 2)
	assert.Equal(t, "Drill", genres[0].Name)
	assert.Equal(t, "Trap", genres[1].Name)
}
