package provider

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"corefetch/internal/folder"
	"corefetch/internal/model"
)

// S3Provider adapts an S3 bucket (or any S3-compatible object store) to
// folder.MetadataProvider, treating "/"-delimited common prefixes as
// directories the way the AWS console does. Grounded on
// forest6511-gdl's internal/protocols/s3 handler for client construction
// and request shape.
type S3Provider struct {
	client *s3.Client
	bucket string
	presig *s3.PresignClient
}

// S3Config mirrors forest6511-gdl's s3.Config fields relevant to a
// read-only listing/fetch client.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// NewS3Provider loads AWS credentials the standard SDK way (env vars,
// shared config, instance role) and builds a client scoped to one bucket.
func NewS3Provider(ctx context.Context, cfg S3Config) (*S3Provider, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("s3 provider: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Provider{
		client: client,
		bucket: cfg.Bucket,
		presig: s3.NewPresignClient(client),
	}, nil
}

// List returns the immediate children of prefix: sub-"directories" as
// CommonPrefixes (delimiter "/") and objects as leaf entries, matching
// Drive's folder/file distinction closely enough for FolderAggregator's
// recursive scan to treat them identically.
func (p *S3Provider) List(ctx context.Context, prefix string) ([]folder.Entry, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var entries []folder.Entry
	var continuation *string
	for {
		out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(p.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w: %w", prefix, model.ErrTransient, err)
		}
		for _, cp := range out.CommonPrefixes {
			key := aws.ToString(cp.Prefix)
			entries = append(entries, folder.Entry{
				ID:    key,
				Name:  path.Base(strings.TrimSuffix(key, "/")),
				IsDir: true,
			})
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				continue
			}
			entries = append(entries, folder.Entry{
				ID:   key,
				Name: path.Base(key),
				Size: aws.ToInt64(obj.Size),
			})
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuation = out.NextContinuationToken
	}
	return entries, nil
}

// Metadata resolves an object key to a presigned GET URL valid for 15
// minutes and its size, via HeadObject.
func (p *S3Provider) Metadata(ctx context.Context, key string) (model.FileMeta, error) {
	head, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return model.FileMeta{}, fmt.Errorf("s3 head %s: %w: %w", key, model.ErrTransient, err)
	}

	req, err := p.presig.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return model.FileMeta{}, fmt.Errorf("s3 presign %s: %w: %w", key, model.ErrTransient, err)
	}

	return model.FileMeta{
		URL:  req.URL,
		Name: path.Base(key),
		Size: aws.ToInt64(head.ContentLength),
		ETag: aws.ToString(head.ETag),
	}, nil
}

// AuthHeaders is empty: S3 presigned URLs carry their own auth in the
// query string, so no per-request header is needed.
func (p *S3Provider) AuthHeaders(ctx context.Context) (map[string]string, error) {
	return nil, nil
}
