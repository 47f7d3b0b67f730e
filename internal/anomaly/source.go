// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package anomaly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/tomtom215/insiderwatch/internal/config"
	"github.com/tomtom215/insiderwatch/internal/logging"
	"github.com/tomtom215/insiderwatch/internal/metrics"
	"github.com/tomtom215/insiderwatch/internal/models"
)

// maxModelBytes bounds the artifact read from any source.
const maxModelBytes = 64 << 20

// ModelSource loads a fitted model. A missing artifact is reported as
// models.ErrModelUnavailable.
type ModelSource interface {
	Load(ctx context.Context) (*Model, error)
}

// =====================================================
// File
// =====================================================

// FileSource reads the artifact from a local JSON file.
type FileSource struct {
	path string
}

// NewFileSource creates a source for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the artifact path.
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Load(_ context.Context) (*Model, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("model file %s: %w", s.path, models.ErrModelUnavailable)
		}
		return nil, fmt.Errorf("read model file %s: %w", s.path, err)
	}
	if len(data) > maxModelBytes {
		return nil, fmt.Errorf("model file %s exceeds %d bytes", s.path, maxModelBytes)
	}
	m, err := ParseModel(data)
	if err != nil {
		return nil, fmt.Errorf("model file %s: %w", s.path, err)
	}
	metrics.AnomalyModelLoads.WithLabelValues("file").Inc()
	return m, nil
}

// stat returns the file's modification time, or ErrModelUnavailable.
func (s *FileSource) stat() (time.Time, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, fmt.Errorf("model file %s: %w", s.path, models.ErrModelUnavailable)
		}
		return time.Time{}, fmt.Errorf("stat model file %s: %w", s.path, err)
	}
	return info.ModTime(), nil
}

// CachedSource keeps the last model from a FileSource and reloads it only when
// the file's modification time changes.
type CachedSource struct {
	file *FileSource

	mu      sync.Mutex
	model   *Model
	modTime time.Time
}

// NewCachedSource wraps file.
func NewCachedSource(file *FileSource) *CachedSource {
	return &CachedSource{file: file}
}

func (s *CachedSource) Load(ctx context.Context) (*Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	modTime, err := s.file.stat()
	if err != nil {
		s.model = nil
		return nil, err
	}
	if s.model != nil && modTime.Equal(s.modTime) {
		return s.model, nil
	}

	m, err := s.file.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.model = m
	s.modTime = modTime
	logging.Ctx(ctx).Info().
		Str("path", s.file.Path()).
		Time("mod_time", modTime).
		Int("columns", len(m.FeatureColumns)).
		Int("trees", len(m.Forest.Trees)).
		Msg("anomaly model loaded")
	return m, nil
}

// =====================================================
// S3
// =====================================================

// ObjectGetter is the subset of the S3 client used to fetch the artifact.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads the artifact from an S3 object. Successive loads reuse the
// cached model while the object's ETag is unchanged.
type S3Source struct {
	client ObjectGetter
	bucket string
	key    string

	mu    sync.Mutex
	model *Model
	etag  string
}

// NewS3Source creates a source for bucket/key using client.
func NewS3Source(client ObjectGetter, bucket, key string) *S3Source {
	return &S3Source{client: client, bucket: bucket, key: key}
}

// NewS3Client builds an S3 client from the anomaly config. Static
// credentials are used when set, otherwise the default AWS chain.
func NewS3Client(ctx context.Context, cfg *config.AnomalyConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.S3Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		})
	}
	if cfg.S3UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

func (s *S3Source) Load(ctx context.Context) (*Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	}
	if s.model != nil && s.etag != "" {
		in.IfNoneMatch = aws.String(s.etag)
	}

	out, err := s.client.GetObject(ctx, in)
	if err != nil {
		if s.model != nil && notModified(err) {
			return s.model, nil
		}
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		if errors.As(err, &noKey) || errors.As(err, &noBucket) {
			s.model = nil
			return nil, fmt.Errorf("model object s3://%s/%s: %w", s.bucket, s.key, models.ErrModelUnavailable)
		}
		return nil, fmt.Errorf("get model object s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxModelBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read model object s3://%s/%s: %w", s.bucket, s.key, err)
	}
	if len(data) > maxModelBytes {
		return nil, fmt.Errorf("model object s3://%s/%s exceeds %d bytes", s.bucket, s.key, maxModelBytes)
	}
	m, err := ParseModel(data)
	if err != nil {
		return nil, fmt.Errorf("model object s3://%s/%s: %w", s.bucket, s.key, err)
	}

	s.model = m
	s.etag = aws.ToString(out.ETag)
	metrics.AnomalyModelLoads.WithLabelValues("s3").Inc()
	logging.Ctx(ctx).Info().
		Str("bucket", s.bucket).
		Str("key", s.key).
		Str("etag", s.etag).
		Int("trees", len(m.Forest.Trees)).
		Msg("anomaly model loaded")
	return m, nil
}

// notModified reports an HTTP 304 from a conditional GetObject.
func notModified(err error) bool {
	var re interface{ HTTPStatusCode() int }
	return errors.As(err, &re) && re.HTTPStatusCode() == 304
}

// NewSource picks the S3 source when a bucket is configured, otherwise a
// cached file source.
func NewSource(ctx context.Context, cfg *config.AnomalyConfig) (ModelSource, error) {
	if cfg.S3Bucket != "" {
		client, err := NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Source(client, cfg.S3Bucket, cfg.S3Key), nil
	}
	return NewCachedSource(NewFileSource(cfg.ModelPath)), nil
}
