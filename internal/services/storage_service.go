// internal/services/storage_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/wavhaven-backend/internal/config"
	"github.com/javajoker/wavhaven-backend/internal/models"
)

var ErrStorageNotConfigured = errors.New("object storage is not configured")

// FileStorage is the blob store holding track audio, stems and artwork.
type FileStorage interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string, public bool) error
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, expiry time.Duration, downloadName string) (string, error)
	PublicURL(key string) string
}

type StorageService struct {
	s3Client *s3.S3
	uploader *s3manager.Uploader
	config   config.AWSConfig
}

func NewStorageService(cfg config.AWSConfig) (*StorageService, error) {
	if cfg.AccessKeyID == "" {
		// Uploads and signed links fail until credentials are configured
		logrus.Warn("AWS credentials not configured, object storage disabled")
		return &StorageService{config: cfg}, nil
	}

	// Create AWS session
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	client := s3.New(sess)
	return &StorageService{
		s3Client: client,
		uploader: s3manager.NewUploaderWithClient(client),
		config:   cfg,
	}, nil
}

func (s *StorageService) Upload(ctx context.Context, key string, body io.Reader, contentType string, public bool) error {
	if s.uploader == nil {
		return ErrStorageNotConfigured
	}

	input := &s3manager.UploadInput{
		Bucket:      aws.String(s.config.S3Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if public {
		input.ACL = aws.String("public-read")
	}

	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

func (s *StorageService) Delete(ctx context.Context, key string) error {
	if s.s3Client == nil {
		return ErrStorageNotConfigured
	}

	_, err := s.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}

// SignedURL presigns a GET for key. The URL stops working after expiry; S3
// enforces it.
func (s *StorageService) SignedURL(ctx context.Context, key string, expiry time.Duration, downloadName string) (string, error) {
	if s.s3Client == nil {
		return "", ErrStorageNotConfigured
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(key),
	}
	if downloadName != "" {
		input.ResponseContentDisposition = aws.String(mime.FormatMediaType("attachment", map[string]string{"filename": downloadName}))
	}

	req, _ := s.s3Client.GetObjectRequest(input)
	req.SetContext(ctx)

	url, err := req.Presign(expiry)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url, nil
}

func (s *StorageService) PublicURL(key string) string {
	if s.config.CloudFrontURL != "" {
		return fmt.Sprintf("%s/%s", strings.TrimRight(s.config.CloudFrontURL, "/"), key)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s",
		s.config.S3Bucket, s.config.Region, key)
}

type uploadRule struct {
	extensions []string
	maxBytes   int64
}

const mb = 1024 * 1024

// uploadRules lists the accepted extensions and size ceiling per file type.
// A zero ceiling defers to the configured global limit.
var uploadRules = map[models.TrackFileType]uploadRule{
	models.TrackFileTypePreviewAudio: {extensions: []string{".mp3"}, maxBytes: 20 * mb},
	models.TrackFileTypeCoverImage:   {extensions: []string{".jpg", ".jpeg", ".png", ".webp"}, maxBytes: 5 * mb},
	models.TrackFileTypeMainMP3:      {extensions: []string{".mp3"}, maxBytes: 50 * mb},
	models.TrackFileTypeMainWAV:      {extensions: []string{".wav"}},
	models.TrackFileTypeStems:        {extensions: []string{".zip"}},
}

// storageKey builds "tracks/<track>/<type>/<uuid><ext>".
func storageKey(trackID uuid.UUID, fileType models.TrackFileType, originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	return fmt.Sprintf("tracks/%s/%s/%s%s", trackID, strings.ToLower(string(fileType)), uuid.New(), ext)
}
