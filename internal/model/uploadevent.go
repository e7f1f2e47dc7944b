package model

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	unknownStreamName  = "unknown"
	maxStreamNameLen    = 200
	minObjectSize       = 0
	maxObjectSize int64 = 5_000_000_000
)

var (
	// ErrMissingBucket mirrors gravwell's own "empty bucket name"
	// guard in manager.go's snsDecode/s3Decode.
	ErrMissingBucket      = errors.New("missing bucket name")
	ErrMissingObjectKey   = errors.New("missing object key")
	ErrInvalidObjectKey   = errors.New("object key contains a path-traversal segment")
	ErrInvalidObjectSize  = errors.New("object size out of range")
	ErrInvalidEventTime   = errors.New("event time out of range")
	ErrInvalidETag        = errors.New("eTag is not a valid MD5 hex digest")
	ErrInvalidBucketName  = errors.New("bucket name does not match the S3 bucket-name grammar")

	// bucketNameGrammar is the standard (simplified) S3 bucket-name
	// grammar: 3-63 chars, lowercase alphanumerics, dots and hyphens,
	// must start/end with an alphanumeric.
	bucketNameGrammar = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

	etagHexGrammar = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
)

// Validate checks every §3 invariant for an UploadEvent.
func (e UploadEvent) Validate(now time.Time) error {
	if e.Bucket == "" {
		return ErrMissingBucket
	}
	if !bucketNameGrammar.MatchString(e.Bucket) {
		return ErrInvalidBucketName
	}
	if e.ObjectKey == "" {
		return ErrMissingObjectKey
	}
	if containsPathTraversal(e.ObjectKey) {
		return ErrInvalidObjectKey
	}
	if e.ObjectSize < minObjectSize || e.ObjectSize > maxObjectSize {
		return ErrInvalidObjectSize
	}
	if e.EventTime.Before(now.AddDate(0, 0, -7)) || e.EventTime.After(now.AddDate(0, 0, 1)) {
		return ErrInvalidEventTime
	}
	if e.ETag != "" {
		tag := strings.Trim(e.ETag, `"`)
		if !etagHexGrammar.MatchString(tag) {
			return ErrInvalidETag
		}
	}
	return nil
}

// containsPathTraversal rejects ".." segments and absolute paths, after
// percent-decoding each '/'-delimited component (decode failures fall
// back to the raw component, per §3).
func containsPathTraversal(key string) bool {
	if strings.HasPrefix(key, "/") {
		return true
	}
	for _, seg := range strings.Split(key, "/") {
		dec, err := url.PathUnescape(seg)
		if err != nil {
			dec = seg
		}
		if dec == ".." || dec == "." {
			return true
		}
	}
	return false
}

// streamNameFromKey derives the delivery-stream name: the path
// component immediately preceding the file segment.
func streamNameFromKey(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) < 2 {
		return unknownStreamName
	}
	raw := parts[len(parts)-2]
	name, err := url.PathUnescape(raw)
	if err != nil {
		name = raw
	}
	if name == "" || len(name) > maxStreamNameLen {
		return unknownStreamName
	}
	return name
}
