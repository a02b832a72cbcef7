package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"backtranslate/internal/logging"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"
)

// s3API is the part of the S3 client the store uses.
type s3API interface {
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// S3Config configures the S3 session.
type S3Config struct {
	Region    string
	Endpoint  string
	PathStyle bool
}

// S3 reads and writes objects in S3 or an S3-compatible service.
type S3 struct {
	svc s3API
}

// NewS3 creates an S3 store from the default credential chain.
func NewS3(cfg S3Config) (*S3, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.PathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &S3{svc: s3.New(sess)}, nil
}

// Open streams an object.
func (c *S3) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}

	out, err := c.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", uri, err)
	}
	logging.Get(logging.CategoryStorage).Debug("Opened S3 object",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int64("size", aws.Int64Value(out.ContentLength)))
	return out.Body, nil
}

// Create returns a writer that uploads the buffered object on Close.
func (c *S3) Create(ctx context.Context, uri string) (io.WriteCloser, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("s3 uri has no key: %s", uri)
	}
	return &s3Writer{ctx: ctx, svc: c.svc, bucket: bucket, key: key}, nil
}

type s3Writer struct {
	ctx    context.Context
	svc    s3API
	bucket string
	key    string
	buf    bytes.Buffer
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write to closed s3 object %s/%s", w.bucket, w.key)
	}
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	_, err := w.svc.PutObjectWithContext(w.ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", w.bucket, w.key, err)
	}
	logging.Get(logging.CategoryStorage).Debug("Uploaded S3 object",
		zap.String("bucket", w.bucket),
		zap.String("key", w.key),
		zap.Int("bytes", w.buf.Len()))
	return nil
}
