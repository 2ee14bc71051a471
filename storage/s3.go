package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"package-registry/config"
)

// ErrIncompleteS3Config is returned when the S3 configuration is incomplete.
var ErrIncompleteS3Config = errors.New("incomplete S3 configuration")

const defaultS3Timeout = 30 * time.Second

// S3Store implements Store over an S3-compatible bucket. Object keys mirror
// the filesystem layout: index/{name}/{version}/{filename}.
type S3Store struct {
	client  *s3.Client
	timeout time.Duration
	bucket  string
}

// NewS3 builds a client from static credentials in the config.
func NewS3(cfg config.S3Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.AccessKey) == "" ||
		strings.TrimSpace(cfg.KeyID) == "" ||
		strings.TrimSpace(cfg.Endpoint) == "" ||
		strings.TrimSpace(cfg.Region) == "" ||
		strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("%w", ErrIncompleteS3Config)
	}

	client := s3.New(s3.Options{
		UsePathStyle: true,
		BaseEndpoint: aws.String(cfg.Endpoint),
		Region:       cfg.Region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.KeyID, cfg.AccessKey, ""),
		),
	})

	timeout := defaultS3Timeout
	if cfg.Timeout != "" {
		parsed, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid S3 timeout value: %w", err)
		}
		timeout = parsed
	}

	return &S3Store{client: client, timeout: timeout, bucket: cfg.Bucket}, nil
}

func (s *S3Store) objectKey(name, version, filename string) string {
	return path.Join("index", name, version, filename)
}

func (s *S3Store) Put(
	ctx context.Context,
	name, version, filename string,
	content []byte,
) error {
	uploader := manager.NewUploader(s.client)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(name, version, filename)),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		var mu manager.MultiUploadFailure
		if errors.As(err, &mu) {
			log.Error().
				Str("upload_id", mu.UploadID()).
				Err(mu).
				Msg("multi-upload failure")

			return fmt.Errorf("multi-upload failure (upload_id: %s): %w", mu.UploadID(), mu)
		}
		log.Error().Err(err).Msg("upload failure")

		return fmt.Errorf("upload failure: %w", err)
	}

	log.Debug().
		Str("location", result.Location).
		Msg("successfully uploaded file to s3 bucket")

	return nil
}

func (s *S3Store) Get(
	ctx context.Context,
	name, version, filename string,
) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(name, version, filename)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer result.Body.Close()

	content, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	return content, nil
}

func (s *S3Store) Exists(
	ctx context.Context,
	name, version, filename string,
) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(name, version, filename)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}

		return false, fmt.Errorf("failed to head object: %w", err)
	}

	return true, nil
}

func (s *S3Store) ListProjects(ctx context.Context) ([]string, error) {
	return s.listPrefix(ctx, "index/")
}

func (s *S3Store) ListVersions(ctx context.Context, name string) ([]string, error) {
	return s.listPrefix(ctx, path.Join("index", name)+"/")
}

func (s *S3Store) ListFiles(ctx context.Context, name, version string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prefix := path.Join("index", name, version) + "/"
	result, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	if len(result.Contents) == 0 {
		return nil, ErrNotFound
	}

	names := make([]string, 0, len(result.Contents))
	for _, object := range result.Contents {
		names = append(names, strings.TrimPrefix(aws.ToString(object.Key), prefix))
	}

	return names, nil
}

// listPrefix enumerates the common prefixes one level below prefix, i.e.
// the "directories" of the bucket layout.
func (s *S3Store) listPrefix(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	if len(result.CommonPrefixes) == 0 && prefix != "index/" {
		return nil, ErrNotFound
	}

	names := make([]string, 0, len(result.CommonPrefixes))
	for _, common := range result.CommonPrefixes {
		segment := strings.TrimPrefix(aws.ToString(common.Prefix), prefix)
		names = append(names, strings.TrimSuffix(segment, "/"))
	}

	return names, nil
}
