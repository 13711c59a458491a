package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/231Brooks/HBH-2-sub003/internal/config"
)

// IReportArchive defines the interface for archiving settlement pass
// reports. Each pass uploads one JSON document keyed by run ID.
type IReportArchive interface {
	PutReport(ctx context.Context, runID string, startedAt time.Time, report []byte) (string, error)
}

// s3ReportArchive implements IReportArchive against S3.
type s3ReportArchive struct {
	cfg      *config.Config
	s3Client *s3.Client
}

// NewS3ReportArchive creates a new S3-backed report archive.
func NewS3ReportArchive(cfg *config.Config) (IReportArchive, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(context.TODO(),
		aws_config.WithRegion(cfg.AwsRegion),
		// Use static credentials from config for simplicity
		// For production, prefer IAM roles or other secure credential methods
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"", // session token
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &s3ReportArchive{
		cfg:      cfg,
		s3Client: s3.NewFromConfig(awsCfg),
	}, nil
}

// PutReport uploads one settlement pass report and returns its object key.
func (s *s3ReportArchive) PutReport(ctx context.Context, runID string, startedAt time.Time, report []byte) (string, error) {
	objectKey := fmt.Sprintf("%s%s/%s.json", s.cfg.ReportS3Prefix, startedAt.UTC().Format("2006-01-02"), runID)

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AwsS3Bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(report),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload settlement report %s: %w", objectKey, err)
	}
	return objectKey, nil
}

// LoggingReportArchive logs reports instead of uploading them. Used when
// no S3 bucket is configured.
type LoggingReportArchive struct{}

// PutReport logs the report and returns a pseudo key.
func (l *LoggingReportArchive) PutReport(ctx context.Context, runID string, startedAt time.Time, report []byte) (string, error) {
	log.Printf("--- Settlement Report %s (%s) ---", runID, startedAt.UTC().Format(time.RFC3339))
	log.Println(string(report))
	log.Println("--- End Report ---")
	return "logged/" + runID, nil
}
