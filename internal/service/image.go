package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pageza/cookbook/backend/config"
)

const (
	MaxImageSize      = 5 << 20
	maxImageDimension = 1200
	thumbnailSize     = 400
)

var (
	ErrInvalidImage  = errors.New("unsupported or corrupt image")
	ErrImageTooLarge = errors.New("image exceeds 5 MiB")
)

// Upload is an image received from a client.
type Upload struct {
	Filename string
	Data     []byte
}

// StoredImage describes an uploaded image and its thumbnail.
type StoredImage struct {
	Key          string
	URL          string
	ThumbnailURL string
}

var imageFormats = map[string]struct {
	format imaging.Format
	ext    string
}{
	"image/jpeg": {imaging.JPEG, ".jpg"},
	"image/png":  {imaging.PNG, ".png"},
	"image/gif":  {imaging.GIF, ".gif"},
}

// ImageService resizes uploads and writes them to an ImageStore.
type ImageService struct {
	store ImageStore
	log   *zap.Logger
}

func NewImageService(store ImageStore, log *zap.Logger) *ImageService {
	return &ImageService{store: store, log: log}
}

// Save validates up, fits it within 1200px, writes it with a 400px thumbnail
// under prefix and returns the stored locations.
func (s *ImageService) Save(ctx context.Context, prefix string, up Upload) (*StoredImage, error) {
	if len(up.Data) > MaxImageSize {
		return nil, ErrImageTooLarge
	}
	contentType := http.DetectContentType(up.Data)
	f, ok := imageFormats[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidImage, contentType)
	}

	img, err := imaging.Decode(bytes.NewReader(up.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	full, err := encode(imaging.Fit(img, maxImageDimension, maxImageDimension, imaging.Lanczos), f.format)
	if err != nil {
		return nil, err
	}
	thumb, err := encode(imaging.Thumbnail(img, thumbnailSize, thumbnailSize, imaging.Lanczos), f.format)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%s%s", strings.Trim(prefix, "/"), uuid.New(), f.ext)
	url, err := s.store.Put(ctx, key, contentType, full)
	if err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}
	thumbURL, err := s.store.Put(ctx, thumbnailKey(key), contentType, thumb)
	if err != nil {
		_ = s.store.Delete(ctx, key)
		return nil, fmt.Errorf("failed to store thumbnail: %w", err)
	}

	s.log.Debug("Stored image", zap.String("key", key), zap.Int("bytes", len(full)))
	return &StoredImage{Key: key, URL: url, ThumbnailURL: thumbURL}, nil
}

// Delete removes an image and its thumbnail. Failures are logged.
func (s *ImageService) Delete(ctx context.Context, key string) {
	for _, k := range []string{key, thumbnailKey(key)} {
		if err := s.store.Delete(ctx, k); err != nil {
			s.log.Warn("Failed to delete image", zap.String("key", k), zap.Error(err))
		}
	}
}

func encode(img image.Image, format imaging.Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func thumbnailKey(key string) string {
	ext := filepath.Ext(key)
	return strings.TrimSuffix(key, ext) + "_thumb" + ext
}

// NewImageStore returns the store selected by cfg.StorageBackend.
func NewImageStore(ctx context.Context, cfg *config.Config) (ImageStore, error) {
	switch cfg.StorageBackend {
	case config.StorageS3:
		s3Config, err := config.NewS3Config(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to configure S3: %w", err)
		}
		// a path-only base URL belongs to local storage
		base := cfg.PublicBaseURL
		if strings.HasPrefix(base, "/") {
			base = ""
		}
		return NewS3Store(s3Config, base), nil
	case config.StorageLocal:
		return NewLocalStore(cfg.UploadDir, cfg.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
}

// S3Store writes images to an S3 bucket.
type S3Store struct {
	s3Config      *config.S3Config
	publicBaseURL string
}

// NewS3Store returns a store for the configured bucket. Without a public base URL
// objects are addressed by their virtual-hosted bucket URL.
func NewS3Store(s3Config *config.S3Config, publicBaseURL string) *S3Store {
	return &S3Store{s3Config: s3Config, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.s3Config.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.s3Config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key, nil
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.s3Config.BucketName, key), nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.s3Config.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.s3Config.BucketName),
		Key:    aws.String(key),
	})
	return err
}

// LocalStore writes images below a directory served as static files.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) *LocalStore {
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *LocalStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return s.baseURL + "/" + key, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
