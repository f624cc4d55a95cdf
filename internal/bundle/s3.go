package bundle

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/open-verix/timeproof/internal/integrity"
)

// ObjectPutter stores one object.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, sha256 string) error
}

// S3Options configures the S3 client. Empty Endpoint selects AWS itself;
// empty keys select the default credential chain.
type S3Options struct {
	Endpoint       string
	Region         string
	AccessKey      string
	SecretKey      string
	DisableTLS     bool
	ForcePathStyle bool
}

// S3OptionsFromEnv reads S3_ENDPOINT, S3_REGION, S3_ACCESS_KEY,
// S3_SECRET_KEY, S3_DISABLE_TLS and S3_FORCE_PATH_STYLE.
func S3OptionsFromEnv() S3Options {
	opts := S3Options{
		Endpoint:       strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		Region:         os.Getenv("S3_REGION"),
		AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		SecretKey:      os.Getenv("S3_SECRET_KEY"),
		ForcePathStyle: true,
	}
	opts.DisableTLS, _ = strconv.ParseBool(os.Getenv("S3_DISABLE_TLS"))
	if v := strings.TrimSpace(os.Getenv("S3_FORCE_PATH_STYLE")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			opts.ForcePathStyle = parsed
		}
	}
	return opts
}

// S3Client is a thin wrapper around the AWS SDK v2 S3 client.
type S3Client struct {
	api *s3.Client
}

// NewS3Client creates a client from opts.
func NewS3Client(ctx context.Context, opts S3Options) (*S3Client, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	if (opts.AccessKey == "") != (opts.SecretKey == "") {
		return nil, errors.New("S3 access key and secret key must be set together")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 5 * time.Minute}),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := opts.Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		scheme := "https"
		if opts.DisableTLS {
			scheme = "http"
		}
		endpoint = scheme + "://" + endpoint
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.UsePathStyle = opts.ForcePathStyle
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &S3Client{api: client}, nil
}

// PutObject uploads data to the given bucket/key with checksum metadata.
func (c *S3Client) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, sha256 string) error {
	if c == nil {
		return errors.New("nil client")
	}
	checksum, err := encodeSHA256(sha256)
	if err != nil {
		return err
	}

	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            &bucket,
		Key:               &key,
		Body:              r,
		ContentLength:     &size,
		ChecksumAlgorithm: s3types.ChecksumAlgorithmSha256,
		ChecksumSHA256:    &checksum,
		Metadata: map[string]string{
			"sha256": sha256,
		},
	})
	return err
}

// Upload stores the file at p under prefix in bucket and returns its
// s3:// location.
func Upload(ctx context.Context, putter ObjectPutter, bucket, prefix, p string) (string, error) {
	if bucket == "" {
		return "", errors.New("bucket is required")
	}

	h, err := integrity.Compute(ctx, p)
	if err != nil {
		return "", err
	}

	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("open %q for upload: %w", p, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %q: %w", p, err)
	}

	key := path.Join(strings.Trim(prefix, "/"), filepath.Base(p))
	if err := putter.PutObject(ctx, bucket, key, f, info.Size(), h.Value); err != nil {
		return "", fmt.Errorf("upload %q: %w", p, err)
	}
	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}

func encodeSHA256(hexDigest string) (string, error) {
	if hexDigest == "" {
		return "", errors.New("sha256 digest required")
	}
	raw, err := hex.DecodeString(hexDigest)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
