// Package s3 stores run artifacts in an S3-compatible bucket under
// <prefix>/<request-id>/<name>.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.ArtifactStore = (*Store)(nil)

// ObjectAPI is the subset of the S3 client the store uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// Config holds S3 connection settings.
type Config struct {
	Bucket string
	Region string
	Prefix string

	// Endpoint overrides the service URL for S3-compatible stores such as MinIO.
	Endpoint string

	// AccessKey and SecretKey are optional; the default credential chain is
	// used when they are empty.
	AccessKey string
	SecretKey string
}

// Store implements driven.ArtifactStore on S3.
type Store struct {
	client ObjectAPI
	bucket string
	prefix string
}

// NewStore loads AWS configuration and creates an S3-backed store.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: artifacts.bucket is required for the s3 backend", domain.ErrConfiguration)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: loading AWS config: %w", domain.ErrConfiguration, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewStoreWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewStoreWithClient creates a store around an existing client.
func NewStoreWithClient(client ObjectAPI, bucket, prefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Put uploads an artifact.
func (s *Store) Put(ctx context.Context, requestID, name string, data []byte) (string, error) {
	key, err := s.key(requestID, name)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(domain.ContentType(name)),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// Get downloads an artifact.
func (s *Store) Get(ctx context.Context, requestID, name string) ([]byte, error) {
	key, err := s.key(requestID, name)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: artifact %s/%s", domain.ErrNotFound, requestID, name)
		}
		return nil, fmt.Errorf("downloading %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// List returns the artifacts of a request sorted by name.
func (s *Store) List(ctx context.Context, requestID string) ([]domain.ArtifactInfo, error) {
	objects, err := s.objects(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, requestID)
	}

	infos := make([]domain.ArtifactInfo, 0, len(objects))
	for _, obj := range objects {
		key := aws.ToString(obj.Key)
		name := path.Base(key)
		info := domain.ArtifactInfo{
			Name:     name,
			Kind:     domain.KindOf(name),
			Size:     aws.ToInt64(obj.Size),
			Location: "s3://" + s.bucket + "/" + key,
		}
		if obj.LastModified != nil {
			info.ModifiedAt = *obj.LastModified
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Delete removes every artifact of a request.
func (s *Store) Delete(ctx context.Context, requestID string) error {
	objects, err := s.objects(ctx, requestID)
	if err != nil {
		return err
	}

	for _, obj := range objects {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    obj.Key,
		}); err != nil {
			return fmt.Errorf("deleting %s: %w", aws.ToString(obj.Key), err)
		}
	}
	return nil
}

func (s *Store) objects(ctx context.Context, requestID string) ([]types.Object, error) {
	if !domain.ValidArtifactName(requestID) {
		return nil, fmt.Errorf("%w: request id %q", domain.ErrInvalidInput, requestID)
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.requestPrefix(requestID)),
	})

	var objects []types.Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing artifacts: %w", err)
		}
		objects = append(objects, page.Contents...)
	}
	return objects, nil
}

func (s *Store) requestPrefix(requestID string) string {
	if s.prefix == "" {
		return requestID + "/"
	}
	return s.prefix + "/" + requestID + "/"
}

func (s *Store) key(requestID, name string) (string, error) {
	if !domain.ValidArtifactName(requestID) {
		return "", fmt.Errorf("%w: request id %q", domain.ErrInvalidInput, requestID)
	}
	if !domain.ValidArtifactName(name) {
		return "", fmt.Errorf("%w: artifact name %q", domain.ErrInvalidInput, name)
	}
	return s.requestPrefix(requestID) + name, nil
}
