package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"
)

// S3Config configures an S3Store.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // set for S3-compatible services; enables path-style addressing
	// PublicBaseURL, when set, replaces the upload location in returned URLs.
	PublicBaseURL   string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store keeps objects in one S3 bucket.
type S3Store struct {
	bucket   string
	baseURL  string
	uploader *s3manager.Uploader
	svc      *s3.S3
}

// NewS3Store opens an AWS session for cfg. Credentials fall back to the
// SDK's default chain when no static key is configured.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("blob: S3 bucket is required")
	}
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("blob: aws session: %w", err)
	}

	return &S3Store{
		bucket:   cfg.Bucket,
		baseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		uploader: s3manager.NewUploader(sess),
		svc:      s3.New(sess),
	}, nil
}

// Put uploads data under a fresh key.
func (s *S3Store) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	key := uuid.NewString() + extensionFor(contentType)
	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("blob: upload to s3: %w", err)
	}
	if s.baseURL != "" {
		return s.baseURL + "/" + key, nil
	}
	return out.Location, nil
}

// Delete removes the object behind rawURL, reporting ErrNotFound when it is
// already gone.
func (s *S3Store) Delete(ctx context.Context, rawURL string) error {
	key, err := s.keyFor(rawURL)
	if err != nil {
		return err
	}

	_, err = s.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var reqErr awserr.RequestFailure
		if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("blob: head s3 object: %w", err)
	}

	_, err = s.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("blob: delete s3 object: %w", err)
	}
	return nil
}

func (s *S3Store) keyFor(rawURL string) (string, error) {
	if s.baseURL != "" {
		if key, ok := keyFromURL(s.baseURL, rawURL); ok {
			return key, nil
		}
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "", fmt.Errorf("%w: %s is not an object url", ErrNotFound, rawURL)
	}
	return path.Base(u.Path), nil
}
