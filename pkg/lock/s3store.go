package lock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/3leaps/flowreaper/internal/awsconn"
)

// Defaults for the S3 store's timing windows.
const (
	// DefaultSyncWait is how long to wait for marker propagation before
	// the read-back check.
	DefaultSyncWait = 5 * time.Second

	// DefaultMaxLocked is how long an existing marker is honored before it
	// is considered stale and overwritten.
	DefaultMaxLocked = time.Minute
)

// Config configures an S3-backed lock store.
type Config struct {
	// ScratchURI is the s3://bucket/prefix location markers live under.
	ScratchURI string

	// Region, Profile and Endpoint configure the S3 client; see
	// awsconn.Options. Endpoint is for S3-compatible stores.
	Region   string
	Profile  string
	Endpoint string

	// SyncWait overrides DefaultSyncWait when positive.
	SyncWait time.Duration

	// MaxLocked overrides DefaultMaxLocked when positive.
	MaxLocked time.Duration
}

// s3API is the slice of the S3 client the store uses.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes advisory markers as S3 objects.
type S3Store struct {
	client    s3API
	bucket    string
	prefix    string
	syncWait  time.Duration
	maxLocked time.Duration
	now       func() time.Time
}

var _ Store = (*S3Store)(nil)

// NewS3Store creates an S3-backed lock store.
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	bucket, prefix, err := ParseScratchURI(cfg.ScratchURI)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconn.Load(ctx, awsconn.Options{
		Region:  cfg.Region,
		Profile: cfg.Profile,
	})
	if err != nil {
		return nil, fmt.Errorf("lock store: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// S3-compatible services (moto, MinIO, etc.) require path style.
			o.UsePathStyle = true
		})
	}

	syncWait := cfg.SyncWait
	if syncWait <= 0 {
		syncWait = DefaultSyncWait
	}
	maxLocked := cfg.MaxLocked
	if maxLocked <= 0 {
		maxLocked = DefaultMaxLocked
	}

	return &S3Store{
		client:    s3.NewFromConfig(awsCfg, s3Opts...),
		bucket:    bucket,
		prefix:    prefix,
		syncWait:  syncWait,
		maxLocked: maxLocked,
		now:       time.Now,
	}, nil
}

// Acquire implements Store.
//
// Flow: read the marker; a fresh marker means someone else holds the
// slot. Absent markers are created with a conditional put so two writers
// racing on creation cannot both think they won; stale markers are
// overwritten unconditionally. After the sync wait the marker is read
// back and must still carry our holder id.
func (s *S3Store) Acquire(ctx context.Context, key Key, holder string) error {
	obj := key.Object(s.prefix)

	existing, modified, err := s.read(ctx, obj)
	if err != nil {
		return fmt.Errorf("lock %s: %w", obj, err)
	}

	if existing != "" && s.now().Sub(modified) < s.maxLocked {
		return fmt.Errorf("lock %s: held by %s: %w", obj, existing, ErrNotAcquired)
	}

	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(obj),
		Body:   bytes.NewReader([]byte(holder)),
	}
	if existing == "" {
		in.IfNoneMatch = aws.String("*")
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("lock %s: lost create race: %w", obj, ErrNotAcquired)
		}
		return fmt.Errorf("lock %s: %w", obj, err)
	}

	if err := sleepCtx(ctx, s.syncWait); err != nil {
		return err
	}

	current, _, err := s.read(ctx, obj)
	if err != nil {
		return fmt.Errorf("lock %s: %w", obj, err)
	}
	if current != holder {
		return fmt.Errorf("lock %s: taken by %s: %w", obj, current, ErrNotAcquired)
	}

	return nil
}

// read fetches the marker contents and last-modified time. A missing
// object returns empty values with no error.
func (s *S3Store) read(ctx context.Context, obj string) (string, time.Time, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(obj),
	})
	if err != nil {
		if isNotFound(err) {
			return "", time.Time{}, nil
		}
		return "", time.Time{}, err
	}
	defer func() { _ = out.Body.Close() }()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return "", time.Time{}, err
	}

	return string(body), aws.ToTime(out.LastModified), nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "PreconditionFailed" || strings.EqualFold(code, "ConditionalRequestConflict")
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
