// Package storage uploads user images to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MaxImageSize caps a single upload.
const MaxImageSize = 10 << 20

var (
	ErrTooLarge    = errors.New("file exceeds 10 MiB")
	ErrUnsupported = errors.New("only jpeg, png, gif and webp images are accepted")
	ErrDisabled    = errors.New("object storage is not configured")
)

var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL prefixes returned object urls; defaults to the endpoint.
	PublicURL string
}

type Uploaded struct {
	URL  string `json:"url"`
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// ObjectPutter is the slice of the minio client used here.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Store struct {
	client    ObjectPutter
	bucket    string
	publicURL string
	now       func() time.Time
}

// New connects to the endpoint and creates the bucket when missing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, ErrDisabled
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	public := cfg.PublicURL
	if public == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		public = scheme + "://" + cfg.Endpoint + "/" + cfg.Bucket
	}
	return NewWithClient(client, cfg.Bucket, public), nil
}

func NewWithClient(client ObjectPutter, bucket, publicURL string) *Store {
	return &Store{client: client, bucket: bucket, publicURL: strings.TrimRight(publicURL, "/"), now: time.Now}
}

// DetectImageType sniffs the first bytes and returns the content type when it is an accepted image.
func DetectImageType(head []byte) (string, error) {
	ct := http.DetectContentType(head)
	if _, ok := imageExt[ct]; !ok {
		return "", ErrUnsupported
	}
	return ct, nil
}

// ObjectKey is images/<user>/<yyyy>/<mm>/<uuid><ext>.
func ObjectKey(userID uint64, contentType string, at time.Time) string {
	return path.Join("images", fmt.Sprint(userID), at.UTC().Format("2006/01"), uuid.NewString()+imageExt[contentType])
}

// UploadImage validates size and type and stores the object.
func (s *Store) UploadImage(ctx context.Context, userID uint64, r io.Reader, size int64) (*Uploaded, error) {
	if s == nil {
		return nil, ErrDisabled
	}
	if size > MaxImageSize {
		return nil, ErrTooLarge
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	ct, err := DetectImageType(head)
	if err != nil {
		return nil, err
	}
	key := ObjectKey(userID, ct, s.now())
	body := io.MultiReader(bytes.NewReader(head), r)
	info, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: ct})
	if err != nil {
		return nil, fmt.Errorf("put object: %w", err)
	}
	return &Uploaded{URL: s.publicURL + "/" + key, Key: key, Size: info.Size}, nil
}
