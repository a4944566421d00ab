// Package backup сохраняет архивы экспорта в S3-совместимое хранилище или в каталог.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/afero"
)

const contentType = "application/zip"

// ErrNoDestination возвращается, если не задан ни bucket, ни каталог
var ErrNoDestination = errors.New("backup destination is not configured")

// Sink принимает готовый архив и возвращает его расположение
type Sink interface {
	Write(ctx context.Context, name string, blob []byte) (string, error)
}

// Exporter источник архива
type Exporter interface {
	ExportAll(ctx context.Context) ([]byte, error)
}

// Name имя архива для момента now
func Name(now time.Time) string {
	return "filamentdb-" + now.UTC().Format("20060102T150405Z") + ".zip"
}

// Export выгружает активные записи и передает архив в sink
func Export(ctx context.Context, exporter Exporter, sink Sink, now time.Time) (string, error) {
	blob, err := exporter.ExportAll(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to export records: %w", err)
	}

	location, err := sink.Write(ctx, Name(now), blob)
	if err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	return location, nil
}

// S3API часть клиента S3, нужная для выгрузки
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config параметры подключения к S3 или MinIO
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // пустой для AWS
	Prefix          string
	AccessKeyID     string // пустой использует стандартную цепочку AWS
	SecretAccessKey string
	PathStyle       bool
}

// S3Sink пишет архивы в bucket под префиксом
type S3Sink struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Sink создает sink на клиенте из стандартной конфигурации AWS
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewS3SinkWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3SinkWithClient создает sink на готовом клиенте
func NewS3SinkWithClient(client S3API, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}
}

// Write загружает архив и возвращает s3://bucket/key
func (s *S3Sink) Write(ctx context.Context, name string, blob []byte) (string, error) {
	key := path.Join(s.prefix, name)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(blob),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(blob))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}

	return "s3://" + s.bucket + "/" + key, nil
}

// DirSink пишет архивы в каталог файловой системы
type DirSink struct {
	fs  afero.Fs
	dir string
}

// NewDirSink создает sink в каталоге dir
func NewDirSink(fs afero.Fs, dir string) *DirSink {
	return &DirSink{fs: fs, dir: dir}
}

// Write создает каталог при необходимости и записывает архив атомарно
func (d *DirSink) Write(ctx context.Context, name string, blob []byte) (string, error) {
	if err := d.fs.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup dir: %w", err)
	}

	target := filepath.Join(d.dir, name)
	tmp := target + ".tmp"

	if err := afero.WriteFile(d.fs, tmp, blob, 0o600); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	if err := d.fs.Rename(tmp, target); err != nil {
		_ = d.fs.Remove(tmp)
		return "", fmt.Errorf("failed to finalize backup: %w", err)
	}

	return target, nil
}

// NewSink выбирает S3, если задан bucket, иначе каталог
func NewSink(ctx context.Context, s3cfg S3Config, fs afero.Fs, dir string) (Sink, error) {
	switch {
	case s3cfg.Bucket != "":
		return NewS3Sink(ctx, s3cfg)
	case dir != "":
		return NewDirSink(fs, dir), nil
	default:
		return nil, ErrNoDestination
	}
}
