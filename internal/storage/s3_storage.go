package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var ErrNoDocument = errors.New("credential has no document reference")

const defaultPresignTTL = 10 * time.Minute

type S3Storage struct {
	client     *s3.Client
	bucket     string
	baseURL    string
	presignTTL time.Duration
}

// DocumentLink is a time-limited link to a credential document.
type DocumentLink struct {
	URL       string     `json:"url"`
	Key       string     `json:"key,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"` // nil for external links
}

func NewS3Storage(region, bucket, accessKeyID, secretAccessKey, baseURL string, presignTTL time.Duration) *S3Storage {
	var cfg aws.Config
	var err error

	// If credentials are provided, use them. Otherwise, use default credential chain
	if accessKeyID != "" && secretAccessKey != "" {
		cfg = aws.Config{
			Region: region,
			Credentials: credentials.NewStaticCredentialsProvider(
				accessKeyID,
				secretAccessKey,
				"",
			),
		}
	} else {
		// Use default credential chain (environment variables, ~/.aws/credentials, IAM role, etc.)
		cfg, err = config.LoadDefaultConfig(context.TODO(),
			config.WithRegion(region),
		)
		if err != nil {
			// If default config fails, create a basic config with region only
			cfg = aws.Config{
				Region: region,
			}
		}
	}

	if presignTTL <= 0 {
		presignTTL = defaultPresignTTL
	}

	return &S3Storage{
		client:     s3.NewFromConfig(cfg),
		bucket:     bucket,
		baseURL:    strings.TrimRight(baseURL, "/"),
		presignTTL: presignTTL,
	}
}

// PresignDocument resolves a stored document reference to a readable link.
// Object keys (and URLs under the configured base URL) get a presigned GET
// URL; any other absolute URL is returned unchanged.
func (s *S3Storage) PresignDocument(ctx context.Context, ref string) (*DocumentLink, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrNoDocument
	}

	key, ok := s.objectKey(ref)
	if !ok {
		return &DocumentLink{URL: ref}, nil
	}

	presignClient := s3.NewPresignClient(s.client)
	presignedReq, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	expiresAt := time.Now().Add(s.presignTTL)
	return &DocumentLink{
		URL:       presignedReq.URL,
		Key:       key,
		ExpiresAt: &expiresAt,
	}, nil
}

// objectKey extracts the bucket key from ref. It reports false for external
// URLs that do not point into this bucket.
func (s *S3Storage) objectKey(ref string) (string, bool) {
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		return strings.TrimLeft(ref, "/"), true
	}

	prefixes := []string{
		fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", s.bucket, s.client.Options().Region),
	}
	if s.baseURL != "" {
		prefixes = append(prefixes, s.baseURL+"/")
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(ref, prefix) {
			return strings.TrimPrefix(ref, prefix), true
		}
	}
	return "", false
}
