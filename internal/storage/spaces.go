package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// SpacesConfig contains configuration for Digital Ocean Spaces or any
// S3-compatible object store
type SpacesConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// Prefix is prepended to every object key. Default: "pinch-state/"
	Prefix string
}

// Spaces is a Store that keeps each key as one object. It lets persisted
// state follow a user across machines.
type Spaces struct {
	client     s3iface.S3API
	bucket     string
	pathPrefix string
}

// NewSpaces creates a new Spaces-backed store
func NewSpaces(config SpacesConfig) (*Spaces, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	sess, err := session.NewSession(&aws.Config{
		Endpoint:    aws.String(config.Endpoint), // e.g., "nyc3.digitaloceanspaces.com"
		Region:      aws.String(config.Region),
		Credentials: credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return NewSpacesWithClient(s3.New(sess), config.Bucket, config.Prefix), nil
}

// NewSpacesWithClient wraps an existing S3 client
func NewSpacesWithClient(client s3iface.S3API, bucket, prefix string) *Spaces {
	if prefix == "" {
		prefix = "pinch-state/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Spaces{client: client, bucket: bucket, pathPrefix: prefix}
}

func (s *Spaces) objectKey(key string) string {
	return s.pathPrefix + key + ".json"
}

// Get downloads the object for key
func (s *Spaces) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// Set uploads value as the object for key
func (s *Spaces) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(value),
		Metadata: map[string]*string{
			"store-key":  aws.String(key),
			"written-at": aws.String(time.Now().UTC().Format(time.RFC3339)),
		},
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

// Delete removes the object for key
func (s *Spaces) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Close is a no-op; the S3 client holds no resources that need releasing
func (s *Spaces) Close() error {
	return nil
}

func isNoSuchKey(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}
