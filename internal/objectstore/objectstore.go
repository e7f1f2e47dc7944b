// Package objectstore wraps S3 GetObject into the streaming reader the
// Decoder consumes, in the idiom of gravwell's own BucketReader session
// setup and ProcessContext (s3Ingester/bucket.go).
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/rezhaque35/wifi-location-data-pipeline/internal/logging"
)

const (
	maxMaxRetries     = 10
	defaultMaxRetries = 3
)

// Config carries the auth/session tunables, mirroring AuthConfig's
// shape from gravwell's bucket.go.
type Config struct {
	Region      string
	Endpoint    string
	ForcePathStyle bool
	MaxRetries  int
	Credentials *credentials.Credentials
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 || c.MaxRetries > maxMaxRetries {
		c.MaxRetries = defaultMaxRetries
	}
	return c
}

// Store fetches objects from S3 as streaming readers.
type Store struct {
	svc *s3.S3
	lg  *logging.Logger
}

// New builds a Store from Config, establishing one AWS session for the
// life of the process (mirrors AuthConfig.getSession).
func New(cfg Config, lg *logging.Logger) (*Store, error) {
	cfg = cfg.withDefaults()
	awsCfg := aws.Config{
		MaxRetries: aws.Int(cfg.MaxRetries),
		Region:     aws.String(cfg.Region),
	}
	if cfg.Credentials != nil {
		awsCfg.Credentials = cfg.Credentials
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(cfg.ForcePathStyle)
	}
	sess, err := session.NewSession(&awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}
	return &Store{svc: s3.New(sess), lg: lg}, nil
}

// ErrNotFound is returned when the object no longer exists (e.g. it was
// expired by a lifecycle rule between notification and fetch).
var ErrNotFound = errors.New("object not found")

// Object is a streaming handle on one S3 object: its declared
// content-length and a ReadCloser over its body. Callers must Close it.
type Object struct {
	Size int64
	Body io.ReadCloser
}

// Get streams one object's body without buffering it in memory,
// mirroring BucketReader.ProcessContext's GetObject call.
func (s *Store) Get(ctx context.Context, bucket, key string) (*Object, error) {
	out, err := s.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	sz := int64(0)
	if out.ContentLength != nil {
		sz = *out.ContentLength
	}
	return &Object{Size: sz, Body: out.Body}, nil
}
