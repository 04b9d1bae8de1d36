package notify

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bytedance/sonic"

	"github.com/example/slotmint/internal/domain/booking"
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// MetadataArchiver stores the public metadata document of every newly minted
// token in an S3 bucket. Other event kinds are ignored.
type MetadataArchiver struct {
	Client objectPutter
	Bucket string
	Prefix string
}

type S3Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

func NewS3Client(ctx context.Context, o S3Options) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if o.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(o.Region))
	}
	if o.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
		}
		so.UsePathStyle = o.UsePathStyle
	}), nil
}

func (a MetadataArchiver) Name() string { return "s3-metadata" }

func (a MetadataArchiver) Key(mint string) string {
	prefix := strings.Trim(a.Prefix, "/")
	if prefix == "" {
		return mint + ".json"
	}
	return prefix + "/" + mint + ".json"
}

func (a MetadataArchiver) Publish(ctx context.Context, e booking.Event) error {
	if e.Kind != booking.EventReservationCreated {
		return nil
	}
	var p booking.ReservationCreated
	if err := e.Decode(&p); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	if p.Metadata.Mint == "" {
		return fmt.Errorf("event %d carries no token metadata", e.ID)
	}
	body, err := sonic.Marshal(p.Metadata.Document())
	if err != nil {
		return err
	}
	_, err = a.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(a.Key(p.Metadata.Mint)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	return err
}
