package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Config contains configuration for the S3 sink. Endpoint is only needed
// for S3-compatible stores such as DigitalOcean Spaces or MinIO.
type S3Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// S3Sink uploads exports as objects under <prefix><date>/<name>.jsonl
type S3Sink struct {
	client *s3.S3
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Sink creates an S3 sink. Without static keys the default AWS
// credential chain is used.
func NewS3Sink(config S3Config) (*S3Sink, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket cannot be empty")
	}

	awsConfig := &aws.Config{
		Region:           aws.String(config.Region),
		S3ForcePathStyle: aws.Bool(config.ForcePathStyle),
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &S3Sink{
		client: s3.New(sess),
		bucket: config.Bucket,
		prefix: config.Prefix,
		now:    time.Now,
	}, nil
}

// key builds the object key for an export created at t.
func (s *S3Sink) key(name string, t time.Time) string {
	return fmt.Sprintf("%s%s/%s.jsonl", s.prefix, t.UTC().Format("2006-01-02"), name)
}

// Write implements Sink
func (s *S3Sink) Write(ctx context.Context, name string, records []Record) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	data, err := EncodeJSONLines(records)
	if err != nil {
		return "", err
	}

	created := s.now()
	key := s.key(name, created)

	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
		Metadata: map[string]*string{
			"Record-Count": aws.String(strconv.Itoa(len(records))),
			"Export-Time":  aws.String(created.UTC().Format(time.RFC3339)),
		},
		ContentType: aws.String("application/x-jsonlines"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload export: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Get retrieves an export by object key
func (s *S3Sink) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get export: %w", err)
	}
	defer result.Body.Close()

	return io.ReadAll(result.Body)
}

// List returns the object keys of the exports created on date
func (s *S3Sink) List(ctx context.Context, date time.Time) ([]string, error) {
	prefix := fmt.Sprintf("%s%s/", s.prefix, date.UTC().Format("2006-01-02"))

	var keys []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}
	return keys, nil
}
