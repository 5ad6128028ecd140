// Package archive ships pruned tombstone batches to object storage so the
// deletion trail outlives local housekeeping.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/pasturelabs/herdsync/internal/client/models"
)

// ObjectPutter is the slice of the S3 API the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds object storage settings. An empty Bucket disables archiving.
type Config struct {
	Region       string
	Bucket       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

// Archiver writes JSON batches to a bucket.
type Archiver struct {
	client ObjectPutter
	bucket string
	now    func() time.Time
}

// New builds an Archiver from explicit credentials, MinIO-style endpoints
// included.
func New(ctx context.Context, c Config) (*Archiver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(c.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	if err != nil {
		return nil, fmt.Errorf("failed to load object storage config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
		}
		o.UsePathStyle = true
	})
	return NewWithClient(client, c.Bucket), nil
}

// NewWithClient wires an existing client; tests pass a fake.
func NewWithClient(client ObjectPutter, bucket string) *Archiver {
	return &Archiver{client: client, bucket: bucket, now: time.Now}
}

// ArchiveTombstones uploads one batch and returns its object key.
func (a *Archiver) ArchiveTombstones(ctx context.Context, batch []models.Tombstone) (string, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("failed to encode tombstone batch: %w", err)
	}

	d := a.now().UTC()
	key := fmt.Sprintf("tombstones/%d/%02d/%02d/%v.json", d.Year(), d.Month(), d.Day(), uuid.New())

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload tombstone batch: %w", err)
	}
	return key, nil
}
