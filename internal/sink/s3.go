// Package sink ships completed screening results to object storage.
package sink

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/fentz26/litscreen/internal/export"
	"github.com/fentz26/litscreen/internal/models"
)

// Config controls the optional S3 upload of result bundles. Values left
// empty fall back to the standard AWS configuration chain.
type Config struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	Bucket       string `yaml:"bucket" mapstructure:"bucket"`
	Prefix       string `yaml:"prefix" mapstructure:"prefix"`
	Region       string `yaml:"region" mapstructure:"region"`
	Profile      string `yaml:"profile" mapstructure:"profile"`
	Endpoint     string `yaml:"endpoint" mapstructure:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style" mapstructure:"use_path_style"`
	Format       string `yaml:"format" mapstructure:"format"`
}

// PutObjectAPI is the narrow S3 surface the sink needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads the zip bundle of every completed task.
type S3Sink struct {
	client PutObjectAPI
	bucket string
	prefix string
	format export.Format
	log    *slog.Logger
}

// NewS3 builds a sink from the default AWS configuration chain with
// optional overrides from cfg.
func NewS3(ctx context.Context, cfg Config, logger *slog.Logger) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("sink: bucket is required")
	}
	format, err := export.ParseFormat(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("sink: %w", err)
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return New(client, cfg.Bucket, cfg.Prefix, format, logger), nil
}

// New wraps an existing client.
func New(client PutObjectAPI, bucket, prefix string, format export.Format, logger *slog.Logger) *S3Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Sink{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		format: format,
		log:    logger.With("component", "sink"),
	}
}

// Key returns the object key for a task's bundle.
func (s *S3Sink) Key(taskID, timestamp string) string {
	return path.Join(s.prefix, taskID, export.BundleName(timestamp))
}

// Upload stores the bundle of a completed task and returns its key.
func (s *S3Sink) Upload(ctx context.Context, task *models.Task) (string, error) {
	if task.Status != models.TaskStatusCompleted || task.Result == nil {
		return "", fmt.Errorf("task %s is %s, not completed", task.ID, task.Status)
	}
	file, err := export.Export(task.Result, export.DatasetBoth, s.format)
	if err != nil {
		return "", fmt.Errorf("build bundle: %w", err)
	}

	key := s.Key(task.ID, task.Result.Timestamp)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file.Data),
		ContentType: aws.String(file.ContentType),
		Metadata: map[string]string{
			"task-id":  task.ID,
			"kept":     fmt.Sprint(task.Result.Stats.Kept),
			"excluded": fmt.Sprint(task.Result.Stats.Excluded),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object to S3: %w", err)
	}
	return key, nil
}

// OnComplete is a scheduler completion hook. Failed tasks are skipped and
// upload errors are logged, never propagated.
func (s *S3Sink) OnComplete(ctx context.Context, task *models.Task) {
	if task.Status != models.TaskStatusCompleted {
		return
	}
	key, err := s.Upload(ctx, task)
	if err != nil {
		s.log.Error("upload failed", "task_id", task.ID, "err", err)
		return
	}
	s.log.Info("bundle uploaded", "task_id", task.ID, "bucket", s.bucket, "key", key)
}
