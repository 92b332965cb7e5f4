package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3ImageStore keeps plaque photographs in an S3 bucket and serves
// them by public object URL. Used in Lambda mode where local disk is
// not durable.
type S3ImageStore struct {
	bucket string
	prefix string
	client *s3.Client
}

// NewS3ImageStore creates a new S3-backed image store.
func NewS3ImageStore(bucket, prefix string) (*S3ImageStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket name must not be empty")
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3ImageStore{
		bucket: bucket,
		prefix: prefix,
		client: s3.NewFromConfig(cfg),
	}, nil
}

func (s *S3ImageStore) applyPrefix(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + key
}

// Put uploads the image and returns its key and public URL.
func (s *S3ImageStore) Put(name string, data []byte, contentType string) (string, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key := s.applyPrefix(ImageKey(time.Now(), name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		log.Printf("[ERROR] S3 Put: failed to upload image %s: %v", key, err)
		return "", "", err
	}
	url := fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
	return key, url, nil
}

// Delete removes the image object.
func (s *S3ImageStore) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		log.Printf("[ERROR] S3 Delete: failed to delete image %s: %v", key, err)
	}
	return err
}
