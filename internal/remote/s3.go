package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"recipebox/internal/config"
	"recipebox/internal/model"
	"recipebox/internal/recipebox"
)

// s3API is the subset of *s3.Client used by S3Remote.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// assetUploader is satisfied by *manager.Uploader.
type assetUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Remote stores recipes as JSON objects in an S3 bucket:
//
//	<prefix>recipes/<id>.json
//	<prefix>assets/<owner>/<name>
type S3Remote struct {
	client   s3API
	uploader assetUploader
	bucket   string
	prefix   string
	sealer   *Sealer

	// mu serializes read-modify-write cycles such as Like.
	mu sync.Mutex
}

// NewS3Remote builds an S3 client from the remote config. Credentials come
// from the config when set, otherwise from the default AWS chain.
func NewS3Remote(ctx context.Context, cfg config.RemoteConfig, sealer *Sealer) (*S3Remote, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 remote requires s3_bucket to be set")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Remote(client, manager.NewUploader(client), cfg.S3Bucket, cfg.S3Prefix, sealer), nil
}

func newS3Remote(client s3API, uploader assetUploader, bucket, prefix string, sealer *Sealer) *S3Remote {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Remote{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
		sealer:   sealer,
	}
}

// Create puts the recipe object, overwriting any existing one.
func (s *S3Remote) Create(ctx context.Context, recipe *model.Recipe) (string, error) {
	if err := validID(recipe.ID); err != nil {
		return "", err
	}
	if err := s.putRecipe(ctx, recipe); err != nil {
		return "", err
	}
	return recipe.ID, nil
}

func (s *S3Remote) Read(ctx context.Context, id string) (*model.Recipe, error) {
	if err := validID(id); err != nil {
		return nil, fmt.Errorf("reading recipe: %w: %w", recipebox.ErrNotFound, err)
	}
	return s.getRecipe(ctx, s.recipeKey(id))
}

func (s *S3Remote) Update(ctx context.Context, id string, recipe *model.Recipe) error {
	if err := validID(id); err != nil {
		return fmt.Errorf("updating recipe: %w: %w", recipebox.ErrNotFound, err)
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.recipeKey(id)),
	})
	if err != nil {
		return mapS3Error("updating recipe "+id, err)
	}

	r := recipe.Clone()
	r.ID = id
	return s.putRecipe(ctx, r)
}

// Delete removes the recipe object. S3 deletes are idempotent.
func (s *S3Remote) Delete(ctx context.Context, id string) error {
	if validID(id) != nil {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.recipeKey(id)),
	})
	if err != nil {
		err = mapS3Error("deleting recipe "+id, err)
		if errors.Is(err, recipebox.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// List fetches every recipe object under the prefix and pages through them in memory.
// Objects that cannot be decoded are skipped.
func (s *S3Remote) List(ctx context.Context, query model.Query) (*model.Page, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + "recipes/"),
	})

	var all []*model.Recipe
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapS3Error("listing recipes", err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			r, err := s.getRecipe(ctx, key)
			if err != nil {
				if errors.Is(err, recipebox.ErrUnauthorized) || errors.Is(err, recipebox.ErrUnreachable) {
					return nil, err
				}
				continue
			}
			all = append(all, r)
		}
	}

	return paginate(all, query)
}

func (s *S3Remote) Like(ctx context.Context, id string, likerID string) (*model.Recipe, error) {
	if err := validID(id); err != nil {
		return nil, fmt.Errorf("liking recipe: %w: %w", recipebox.ErrNotFound, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getRecipe(ctx, s.recipeKey(id))
	if err != nil {
		return nil, err
	}
	if r.Like(likerID) {
		if err := s.putRecipe(ctx, r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// UploadAsset uploads through the multipart upload manager and returns the object URL.
func (s *S3Remote) UploadAsset(ctx context.Context, owner string, asset *model.Asset) (string, error) {
	data, err := s.sealer.seal(asset.Data)
	if err != nil {
		return "", err
	}

	key := s.prefix + path.Join("assets", path.Base("/"+owner), path.Base("/"+asset.Name))
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if asset.ContentType != "" && s.sealer == nil {
		input.ContentType = aws.String(asset.ContentType)
	}

	out, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return "", mapS3Error("uploading asset "+asset.Name, err)
	}
	if out != nil && out.Location != "" {
		return out.Location, nil
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// Ping checks that the bucket exists and the credentials can reach it.
func (s *S3Remote) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		err = mapS3Error("checking bucket "+s.bucket, err)
		if errors.Is(err, recipebox.ErrNotFound) {
			return fmt.Errorf("bucket %s does not exist: %w", s.bucket, recipebox.ErrUnreachable)
		}
		return err
	}
	return nil
}

func (s *S3Remote) recipeKey(id string) string {
	return s.prefix + "recipes/" + id + ".json"
}

func (s *S3Remote) putRecipe(ctx context.Context, r *model.Recipe) error {
	data, err := s.sealer.encodeRecipe(r)
	if err != nil {
		return err
	}

	contentType := "application/json"
	if s.sealer != nil {
		contentType = "application/octet-stream"
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.recipeKey(r.ID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return mapS3Error("putting recipe "+r.ID, err)
	}
	return nil
}

func (s *S3Remote) getRecipe(ctx context.Context, key string) (*model.Recipe, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapS3Error("getting "+key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w: %w", key, recipebox.ErrUnreachable, err)
	}
	return s.sealer.decodeRecipe(data)
}

// mapS3Error translates SDK errors into the remote error kinds.
func mapS3Error(op string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%s: %w", op, recipebox.ErrNotFound)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%s: %w", op, recipebox.ErrNotFound)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return fmt.Errorf("%s: %w: %w", op, recipebox.ErrUnauthorized, err)
		}
	}

	return fmt.Errorf("%s: %w: %w", op, recipebox.ErrUnreachable, err)
}

// Compile-time check that S3Remote implements recipebox.RemoteService interface
var _ recipebox.RemoteService = (*S3Remote)(nil)
