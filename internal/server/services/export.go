package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/palette/internal/common"
	"github.com/dmitrijs2005/palette/internal/server/config"
	"github.com/dmitrijs2005/palette/internal/server/repositories/repomanager"
)

// Seams over the AWS SDK for tests.
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) error {
		_, err := c.PutObject(ctx, in)
		return err
	}

	presignGetObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput, ttl time.Duration) (*v4.PresignedHTTPRequest, error) {
		return s3.NewPresignClient(c).PresignGetObject(ctx, in, s3.WithPresignExpires(ttl))
	}
)

// Export is the document written to object storage.
type Export struct {
	ID        string    `json:"id"`
	Colors    []string  `json:"colors"`
	Harmony   string    `json:"harmony"`
	CreatedAt time.Time `json:"createdAt"`
}

// ExportService uploads a generation as JSON and hands back a presigned
// download link.
type ExportService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cfg         *config.Config
	now         func() time.Time
}

func NewExportService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *ExportService {
	return &ExportService{db: db, repomanager: m, cfg: cfg, now: time.Now}
}

func (s *ExportService) storageKey() string {
	d := s.now().UTC()
	return fmt.Sprintf("exports/%d/%02d/%02d/%s.json", d.Year(), d.Month(), d.Day(), uuid.NewString())
}

func (s *ExportService) client(ctx context.Context) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(s.cfg.S3Region)}
	if s.cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.S3AccessKey, s.cfg.S3SecretKey, "")))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if s.cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Export stores the user's generation and returns a URL valid for the
// configured TTL. Generations of other users, and ids that are not UUIDs,
// are reported as not found.
func (s *ExportService) Export(ctx context.Context, userID, generationID string) (string, error) {
	if _, err := uuid.Parse(generationID); err != nil {
		return "", common.ErrorNotFound
	}

	g, err := s.repomanager.Generations(s.db).Get(ctx, userID, generationID)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(Export{ID: g.ID, Colors: g.Colors, Harmony: g.Harmony, CreatedAt: g.CreatedAt})
	if err != nil {
		return "", err
	}

	c, err := s.client(ctx)
	if err != nil {
		return "", err
	}

	bucket, key := s.cfg.S3Bucket, s.storageKey()
	err = putObject(c, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload export: %w", err)
	}

	req, err := presignGetObject(c, ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s.cfg.ExportURLTTL)
	if err != nil {
		return "", fmt.Errorf("presign export: %w", err)
	}
	return req.URL, nil
}
