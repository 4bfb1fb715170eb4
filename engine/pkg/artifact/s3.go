package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used here.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Config struct {
	Logger *slog.Logger
	Client S3API
	Bucket string
	// Prefix is prepended to every name, without a trailing slash.
	Prefix string
}

func (cfg *S3Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("s3 client is required")
	}
	if cfg.Bucket == "" {
		return errors.New("bucket is required")
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return nil
}

// S3 is a Source and Sink over one bucket prefix.
type S3 struct {
	log *slog.Logger
	cfg S3Config
}

var (
	_ Source = (*S3)(nil)
	_ Sink   = (*S3)(nil)
)

func NewS3(cfg S3Config) (*S3, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &S3{log: cfg.Logger, cfg: cfg}, nil
}

func (s *S3) key(name string) string {
	if s.cfg.Prefix == "" {
		return name
	}
	return path.Join(s.cfg.Prefix, name)
}

func (s *S3) List(ctx context.Context) ([]string, error) {
	prefix := ""
	if s.cfg.Prefix != "" {
		prefix = s.cfg.Prefix + "/"
	}
	var names []string
	p := s3.NewListObjectsV2Paginator(s.cfg.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.cfg.Bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name != "" && !strings.HasSuffix(name, "/") {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return names, nil
}

func (s *S3) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.cfg.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.cfg.Bucket, s.key(name))
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", s.cfg.Bucket, s.key(name), err)
	}
	return out.Body, nil
}

// Create spools to a local temporary file and uploads it on Close.
func (s *S3) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	f, err := os.CreateTemp("", "rf2-upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file for %s: %w", name, err)
	}
	return &s3Upload{ctx: ctx, s: s, name: name, file: f}, nil
}

type s3Upload struct {
	ctx    context.Context
	s      *S3
	name   string
	file   *os.File
	closed bool
}

func (u *s3Upload) Write(p []byte) (int, error) { return u.file.Write(p) }

func (u *s3Upload) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	defer os.Remove(u.file.Name())
	defer u.file.Close()

	size, err := u.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := u.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	key := u.s.key(u.name)
	_, err = u.s.cfg.Client.PutObject(u.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          u.file,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", u.s.cfg.Bucket, key, err)
	}
	u.s.log.Debug("artifact: uploaded", "bucket", u.s.cfg.Bucket, "key", key, "bytes", size)
	return nil
}
