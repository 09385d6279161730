package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

type StorageConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	URLTTL    time.Duration
}

// Storage issues time-limited download links for private objects on an
// S3-compatible service.
type Storage struct {
	client *s3.S3
	bucket string
	ttl    time.Duration
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.Endpoint != ""),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("storage session: %w", err)
	}
	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Storage{client: s3.New(sess), bucket: cfg.Bucket, ttl: ttl}, nil
}

// PresignDownload returns a GET URL for key valid for the configured TTL.
func (s *Storage) PresignDownload(key, filename string) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, errors.New("storage: empty object key")
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if filename != "" {
		input.ResponseContentDisposition = aws.String(fmt.Sprintf(`attachment; filename="%s"`, filename))
	}
	req, _ := s.client.GetObjectRequest(input)
	url, err := req.Presign(s.ttl)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign %s: %w", key, err)
	}
	return url, time.Now().Add(s.ttl), nil
}
