package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Options configures an S3Source. Endpoint is optional and selects an
// S3-compatible store with path-style addressing. Without keys the bucket
// is read anonymously.
type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// objectGetter is the part of *s3.Client the source uses.
type objectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads documents straight from the portal's bucket.
type S3Source struct {
	client objectGetter
	bucket string
}

// NewS3Source builds an S3Source for opts.
func NewS3Source(opts S3Options) (*S3Source, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	region := opts.Region
	if region == "" {
		region = "ap-southeast-1"
	}
	o := s3.Options{Region: region}
	if opts.AccessKeyID != "" {
		o.Credentials = credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")
	} else {
		o.Credentials = aws.AnonymousCredentials{}
	}
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(strings.TrimRight(opts.Endpoint, "/"))
		o.UsePathStyle = true
	}
	return &S3Source{client: s3.New(o), bucket: opts.Bucket}, nil
}

// Get reads the object named by key. Any query string is dropped since
// bucket objects are addressed by path alone.
func (s *S3Source) Get(ctx context.Context, key string) ([]byte, error) {
	objKey := strings.TrimLeft(key, "/")
	if i := strings.IndexByte(objKey, '?'); i >= 0 {
		objKey = objKey[:i]
	}
	if objKey == "" || strings.Contains(objKey, "..") {
		return nil, fmt.Errorf("s3: invalid key %q", key)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s/%s: %w", s.bucket, objKey, wrapS3Error(err))
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read body %s/%s: %w", s.bucket, objKey, err)
	}
	return data, nil
}

func wrapS3Error(err error) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return ErrNotFound
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return ErrNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return ErrNotFound
		}
	}
	return err
}
