// Package storage implements the durable blob store over S3-compatible
// object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

const opTimeout = 1 * time.Minute

// Options configures the S3 client. AccessKey/SecretKey and Endpoint are
// for MinIO-style deployments; left empty, the default AWS credential
// chain and endpoints apply.
type Options struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

func NewS3Client(ctx context.Context, opts Options) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("error while initializing aws: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return client, nil
}

// S3Store uploads and deletes media objects. Object URLs are
// publicBaseURL + "/" + key, so Delete can map a URL back to its key.
type S3Store struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

func NewS3Store(client *s3.Client, bucket, publicBaseURL string) *S3Store {
	return &S3Store{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Put stores data under a fresh key derived from the original filename and
// returns the object's public URL.
func (s *S3Store) Put(ctx context.Context, data []byte, contentType, filename string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := objectKey(filename)
	input := &s3.PutObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(key),
		Body:              bytes.NewReader(data),
		ContentType:       aws.String(contentType),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("couldn't upload object with key %s: %w", key, err)
	}
	return s.publicBaseURL + "/" + key, nil
}

// Delete removes the object behind url. Deleting an object that is already
// gone succeeds; S3 DeleteObject is a no-op for missing keys.
func (s *S3Store) Delete(ctx context.Context, url string) error {
	key, err := s.keyFromURL(url)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	input := &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if _, err := s.client.DeleteObject(ctx, input); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) keyFromURL(url string) (string, error) {
	prefix := s.publicBaseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", fmt.Errorf("url %q is not under public base %q", url, s.publicBaseURL)
	}
	key := strings.TrimPrefix(url, prefix)
	if key == "" {
		return "", fmt.Errorf("url %q has empty object key", url)
	}
	return key, nil
}

// objectKey spreads objects by date and tags them with a uuid so uploads
// never collide, while keeping the original extension for content
// sniffing.
func objectKey(filename string) string {
	d := time.Now().UTC()
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("media/%d/%02d/%s%s", d.Year(), int(d.Month()), uuid.New(), ext)
}
