package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/mkrupp/feed/internal/domain"
	"github.com/mkrupp/feed/internal/infra/logging"
)

// ErrNoBucket is returned when the S3 repository is configured without a bucket.
var ErrNoBucket = errors.New("s3 bucket not configured")

// S3BlobRepositoryConfig holds configuration for the S3 blob repository.
type S3BlobRepositoryConfig struct {
	Bucket string `env:"BUCKET" default:""`
	Region string `env:"REGION" default:"us-east-1"`

	// Endpoint overrides the service endpoint for S3-compatible stores such as MinIO
	Endpoint     string `env:"ENDPOINT" default:""`
	UsePathStyle bool   `env:"USE_PATH_STYLE" default:"false"`

	// AccessKeyID and SecretAccessKey are optional, the default credential chain is used otherwise
	AccessKeyID     string `env:"ACCESS_KEY_ID" default:""`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY" default:""`

	// KeyPrefix is prepended to every object key
	KeyPrefix string `env:"KEY_PREFIX" default:""`

	CreateBucket bool `env:"CREATE_BUCKET" default:"false"`
}

// S3API is the subset of the S3 client used by the repository.
type S3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Repository implements Repository on an S3 bucket.
type S3Repository struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
	log      logging.Logger
}

var _ Repository = (*S3Repository)(nil)

// S3BlobRepositoryFactory creates a factory function that returns a new S3Repository.
func S3BlobRepositoryFactory(cfg S3BlobRepositoryConfig) RepositoryFactory {
	return func(ctx context.Context) (Repository, error) {
		return NewS3BlobRepository(ctx, cfg)
	}
}

// NewS3BlobRepository creates an S3 client from cfg and the default AWS configuration chain.
func NewS3BlobRepository(ctx context.Context, cfg S3BlobRepositoryConfig) (*S3Repository, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}

		o.UsePathStyle = cfg.UsePathStyle
	})

	if cfg.CreateBucket {
		if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
			//nolint:exhaustruct
			if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
				return nil, fmt.Errorf("create bucket: %w", err)
			}
		}
	}

	return NewS3BlobRepositoryWithClient(client, cfg), nil
}

// NewS3BlobRepositoryWithClient creates an S3Repository on an existing client.
func NewS3BlobRepositoryWithClient(client S3API, cfg S3BlobRepositoryConfig) *S3Repository {
	return &S3Repository{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.KeyPrefix,
		log: logging.GetLogger("repo.blob.s3_repository").With(
			logging.Group("repo", "bucket", cfg.Bucket, "prefix", cfg.KeyPrefix),
		),
	}
}

func (s3Repo *S3Repository) key(id domain.BlobID) string {
	return s3Repo.prefix + string(id)
}

func isNotFound(err error) bool {
	var (
		noSuchKey *types.NoSuchKey
		notFound  *types.NotFound
		apiErr    smithy.APIError
	)

	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return true
	case errors.As(err, &apiErr):
		return apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey"
	default:
		return false
	}
}

// Store implements Repository.Store.
func (s3Repo *S3Repository) Store(ctx context.Context, blob *domain.Blob) (err error) {
	defer func() {
		log := s3Repo.log.With(logging.Group("blob", "id", blob.ID))
		if err != nil {
			log.ErrorContext(ctx, "blob store failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob stored", "size", blob.Size())
		}
	}()

	//nolint:exhaustruct
	if _, err := s3Repo.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s3Repo.bucket),
		Key:           aws.String(s3Repo.key(blob.ID)),
		Body:          bytes.NewReader(blob.Body),
		ContentLength: aws.Int64(blob.Size()),
	}); err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	return nil
}

// Fetch implements Repository.Fetch.
func (s3Repo *S3Repository) Fetch(ctx context.Context, id domain.BlobID) (blob *domain.Blob, err error) {
	defer func() {
		log := s3Repo.log.With(logging.Group("blob", "id", id))
		if err != nil {
			log.ErrorContext(ctx, "blob fetch failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob fetched")
		}
	}()

	//nolint:exhaustruct
	out, err := s3Repo.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s3Repo.bucket),
		Key:    aws.String(s3Repo.key(id)),
	})
	if err != nil {
		if isNotFound(err) {
			err = errors.Join(domain.ErrBlobNotFound, err)
		}

		return nil, fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}

	if out.ContentLength != nil && *out.ContentLength != int64(len(body)) {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrBytesReadMismatch, *out.ContentLength, len(body))
	}

	return domain.NewBlob(id, body), nil
}

// Delete implements Repository.Delete.
// S3 deletes are idempotent, so the object is checked first to report ErrBlobNotFound.
func (s3Repo *S3Repository) Delete(ctx context.Context, id domain.BlobID) (err error) {
	defer func() {
		log := s3Repo.log.With(logging.Group("blob", "id", id))
		if err != nil {
			log.ErrorContext(ctx, "blob delete failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob deleted")
		}
	}()

	//nolint:exhaustruct
	if _, err := s3Repo.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s3Repo.bucket),
		Key:    aws.String(s3Repo.key(id)),
	}); err != nil {
		if isNotFound(err) {
			err = errors.Join(domain.ErrBlobNotFound, err)
		}

		return fmt.Errorf("head object: %w", err)
	}

	//nolint:exhaustruct
	if _, err := s3Repo.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s3Repo.bucket),
		Key:    aws.String(s3Repo.key(id)),
	}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}

	return nil
}

// List implements Repository.List.
func (s3Repo *S3Repository) List(ctx context.Context, prefix string) (infos []domain.BlobInfo, err error) {
	defer func() {
		log := s3Repo.log.With(logging.Group("blob", "prefix", prefix))
		if err != nil {
			log.ErrorContext(ctx, "blob list failed", "error", err)
		} else {
			log.DebugContext(ctx, "blobs listed", "count", len(infos))
		}
	}()

	//nolint:exhaustruct
	paginator := s3.NewListObjectsV2Paginator(s3Repo.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s3Repo.bucket),
		Prefix: aws.String(s3Repo.prefix + prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}

		for _, obj := range page.Contents {
			info := domain.BlobInfo{
				ID:   domain.BlobID(aws.ToString(obj.Key)[len(s3Repo.prefix):]),
				Size: aws.ToInt64(obj.Size),
			}

			if obj.LastModified != nil {
				info.ModTime = *obj.LastModified
			}

			infos = append(infos, info)
		}
	}

	return infos, nil
}
