package aws

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	appconfig "rsyaclean/internal/config"
)

// ReportArchive keeps the raw TSV of every report that came back ready
type ReportArchive interface {
	Store(ctx context.Context, key string, body []byte) error
	TestConnection(ctx context.Context) error
}

type s3Archive struct {
	s3     *s3.Client
	bucket string
}

// NewReportArchive returns a no-op archive when no bucket is configured
func NewReportArchive(cfg appconfig.AWSConfig) (ReportArchive, error) {
	if cfg.Bucket == "" {
		return NopArchive{}, nil
	}

	credProvider := aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
		}, nil
	})

	awsCfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credProvider),
	)
	if err != nil {
		return nil, err
	}

	return &s3Archive{
		s3:     s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
	}, nil
}

func (a *s3Archive) Store(ctx context.Context, key string, body []byte) error {
	uploader := manager.NewUploader(a.s3)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/tab-separated-values"),
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to archive report")
		return err
	}

	log.Debug().Str("key", key).Int("size", len(body)).Msg("Archived report")
	return nil
}

func (a *s3Archive) TestConnection(ctx context.Context) error {
	_, err := a.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		MaxKeys: aws.Int32(1),
	})
	log.Err(err).Msg("Report archive test connection")

	return err
}

// NopArchive drops everything
type NopArchive struct{}

func (NopArchive) Store(context.Context, string, []byte) error { return nil }
func (NopArchive) TestConnection(context.Context) error        { return nil }

// ReportKey lays reports out as reports/<project>/<campaign hash>/<from>_<to>.tsv
func ReportKey(projectID int64, campaignIDs []int64, from, to time.Time) string {
	ids := slices.Clone(campaignIDs)
	slices.Sort(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	sum := sha1.Sum([]byte(strings.Join(parts, ",")))

	return fmt.Sprintf("reports/%d/%s/%s_%s.tsv",
		projectID, hex.EncodeToString(sum[:8]), from.Format("2006-01-02"), to.Format("2006-01-02"))
}
