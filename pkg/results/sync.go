// Package results uploads benchmark result files to object storage.
//
// Client jobs write their result documents to a local directory; Sync
// pushes that directory to an S3 bucket so results survive scratch
// cleanup and can be consumed off-cluster. Uploads are paced with a
// rate limiter and per-file failures are collected rather than
// aborting the whole sync, except for access errors that would fail
// every subsequent upload anyway.
package results

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config configures a results sync destination.
type Config struct {
	// Bucket is the destination bucket. Required.
	Bucket string

	// Prefix is prepended to every uploaded key.
	Prefix string

	// Region, Endpoint, and Profile follow the AWS SDK's usual meaning;
	// empty values defer to the default resolution chain. Endpoint
	// supports S3-compatible stores.
	Region   string
	Endpoint string
	Profile  string

	// AccessKeyID and SecretAccessKey override the default credential
	// chain when both are set.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle enables path-style addressing, needed by most
	// S3-compatible endpoints.
	ForcePathStyle bool

	// Include and Exclude are doublestar patterns matched against the
	// slash-separated path relative to the sync root. Include defaults
	// to everything; Exclude wins over Include.
	Include []string
	Exclude []string

	// UploadsPerSecond paces PutObject calls. Default 10.
	UploadsPerSecond float64
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return fmt.Errorf("results bucket is required")
	}
	return nil
}

// objectPutter is the slice of the S3 API the syncer needs. Satisfied by
// *s3.Client; tests substitute a fake.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// FileError records a failed upload.
type FileError struct {
	Path string
	Err  error
}

// Report summarizes one sync run.
type Report struct {
	// Uploaded lists the destination keys written, sorted.
	Uploaded []string

	// Skipped counts files excluded by pattern.
	Skipped int

	// Failed lists files whose upload failed.
	Failed []FileError
}

// Syncer uploads a results directory to a bucket.
type Syncer struct {
	client  objectPutter
	cfg     Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a Syncer with a real S3 client built from the default
// credential chain plus any overrides in cfg.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Syncer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewWithClient(client, cfg, logger), nil
}

// NewWithClient creates a Syncer over an existing client.
func NewWithClient(client objectPutter, cfg Config, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	perSecond := cfg.UploadsPerSecond
	if perSecond <= 0 {
		perSecond = 10
	}
	return &Syncer{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:  logger,
	}
}

// Plan returns the relative paths under dir that would upload, sorted.
// Used for dry runs and exercised heavily by tests.
func (s *Syncer) Plan(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if s.matches(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan results dir: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// Sync uploads every matching file under dir.
//
// Per-file failures are collected in the report; an access-denied
// response aborts immediately because every later upload would fail
// the same way.
func (s *Syncer) Sync(ctx context.Context, dir string) (*Report, error) {
	all, err := s.countAll(dir)
	if err != nil {
		return nil, err
	}
	files, err := s.Plan(dir)
	if err != nil {
		return nil, err
	}

	report := &Report{Skipped: all - len(files)}
	for _, rel := range files {
		if err := s.limiter.Wait(ctx); err != nil {
			return report, err
		}

		key := path.Join(s.cfg.Prefix, rel)
		if err := s.uploadOne(ctx, filepath.Join(dir, rel), key); err != nil {
			if isAccessDenied(err) {
				return report, fmt.Errorf("upload %s: %w", rel, err)
			}
			s.logger.Warn("upload failed",
				zap.String("file", rel),
				zap.Error(err))
			report.Failed = append(report.Failed, FileError{Path: rel, Err: err})
			continue
		}
		report.Uploaded = append(report.Uploaded, key)
		s.logger.Info("uploaded result",
			zap.String("file", rel),
			zap.String("key", key))
	}
	return report, nil
}

func (s *Syncer) uploadOne(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	return err
}

func (s *Syncer) matches(rel string) bool {
	for _, pattern := range s.cfg.Exclude {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return false
		}
	}
	if len(s.cfg.Include) == 0 {
		return true
	}
	for _, pattern := range s.cfg.Include {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (s *Syncer) countAll(dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan results dir: %w", err)
	}
	return n, nil
}

func isAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
		return true
	}
	return false
}
