package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"onenote_feedback/internal/config"
	"onenote_feedback/internal/util"
	"onenote_feedback/pkg/logger"
	"os"
	"path/filepath"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// StorageProvider 定义通用存储接口，Delete 对不存在的对象视为成功
type StorageProvider interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
	UploadFile(ctx context.Context, key string, localPath string, contentType string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	GetURL(key string) string
}

// LocalStorageProvider 本地存储实现
type LocalStorageProvider struct {
	Config *config.StorageConfig
}

func (p *LocalStorageProvider) path(key string) (string, error) {
	root := filepath.Clean(p.Config.LocalPath)
	dst := filepath.Join(root, filepath.FromSlash(key))
	rel, err := filepath.Rel(root, dst)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return dst, nil
}

func (p *LocalStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	dst, err := p.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, reader); err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *LocalStorageProvider) UploadFile(ctx context.Context, key string, localPath string, contentType string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	return p.Upload(ctx, key, src, -1, contentType)
}

func (p *LocalStorageProvider) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	dst, err := p.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dst)
	if errors.Is(err, os.ErrNotExist) {
		return nil, util.ErrFileNotFound
	}
	return f, err
}

func (p *LocalStorageProvider) Delete(ctx context.Context, key string) error {
	dst, err := p.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (p *LocalStorageProvider) GetURL(key string) string {
	return "/uploads/" + key
}

// MinioStorageProvider MinIO存储实现
type MinioStorageProvider struct {
	Config *config.StorageConfig
	Client *minio.Client
}

func NewMinioStorageProvider(cfg *config.StorageConfig) (*MinioStorageProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStorageProvider{Config: cfg, Client: client}, nil
}

func (p *MinioStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := p.Client.PutObject(ctx, p.Config.MinioBucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *MinioStorageProvider) UploadFile(ctx context.Context, key string, localPath string, contentType string) (string, error) {
	_, err := p.Client.FPutObject(ctx, p.Config.MinioBucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *MinioStorageProvider) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := p.Client.GetObject(ctx, p.Config.MinioBucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject 是惰性的，Stat 才会暴露不存在的对象
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, util.ErrFileNotFound
		}
		return nil, err
	}
	return obj, nil
}

func (p *MinioStorageProvider) Delete(ctx context.Context, key string) error {
	return p.Client.RemoveObject(ctx, p.Config.MinioBucket, key, minio.RemoveObjectOptions{})
}

func (p *MinioStorageProvider) GetURL(key string) string {
	return "/" + p.Config.MinioBucket + "/" + key
}

// OSSStorageProvider 阿里云OSS存储实现
type OSSStorageProvider struct {
	Config *config.StorageConfig
	Client *oss.Client
}

func NewOSSStorageProvider(cfg *config.StorageConfig) (*OSSStorageProvider, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	return &OSSStorageProvider{Config: cfg, Client: client}, nil
}

func (p *OSSStorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return "", err
	}
	if err := bucket.PutObject(key, reader, oss.ContentType(contentType), oss.WithContext(ctx)); err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *OSSStorageProvider) UploadFile(ctx context.Context, key string, localPath string, contentType string) (string, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return "", err
	}
	if err := bucket.PutObjectFromFile(key, localPath, oss.ContentType(contentType), oss.WithContext(ctx)); err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *OSSStorageProvider) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return nil, err
	}
	body, err := bucket.GetObject(key, oss.WithContext(ctx))
	if err != nil {
		var se oss.ServiceError
		if errors.As(err, &se) && se.StatusCode == 404 {
			return nil, util.ErrFileNotFound
		}
		return nil, err
	}
	return body, nil
}

func (p *OSSStorageProvider) Delete(ctx context.Context, key string) error {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return err
	}
	return bucket.DeleteObject(key, oss.WithContext(ctx))
}

func (p *OSSStorageProvider) GetURL(key string) string {
	return fmt.Sprintf("https://%s.%s/%s", p.Config.OSSBucket, p.Config.OSSEndpoint, key)
}

// S3StorageProvider 兼容 S3 协议的对象存储
type S3StorageProvider struct {
	Config *config.StorageConfig
	Client *s3.S3
}

func NewS3StorageProvider(cfg *config.StorageConfig) (*S3StorageProvider, error) {
	sess, err := session.NewSession(&aws.Config{
		Credentials:      credentials.NewStaticCredentials(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Endpoint:         aws.String(cfg.S3Endpoint),
		Region:           aws.String(cfg.S3Region),
		DisableSSL:       aws.Bool(!cfg.S3UseSSL),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	return &S3StorageProvider{Config: cfg, Client: s3.New(sess)}, nil
}

func (p *S3StorageProvider) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	body, ok := reader.(io.ReadSeeker)
	if !ok {
		// PutObject 需要可重放的 body
		data, err := io.ReadAll(reader)
		if err != nil {
			return "", err
		}
		body = bytes.NewReader(data)
	}
	_, err := p.Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.Config.S3Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}
	return p.GetURL(key), nil
}

func (p *S3StorageProvider) UploadFile(ctx context.Context, key string, localPath string, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return p.Upload(ctx, key, f, -1, contentType)
}

func (p *S3StorageProvider) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := p.Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.Config.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var ae awserr.Error
		if errors.As(err, &ae) && ae.Code() == s3.ErrCodeNoSuchKey {
			return nil, util.ErrFileNotFound
		}
		return nil, err
	}
	return out.Body, nil
}

func (p *S3StorageProvider) Delete(ctx context.Context, key string) error {
	_, err := p.Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.Config.S3Bucket),
		Key:    aws.String(key),
	})
	return err
}

func (p *S3StorageProvider) GetURL(key string) string {
	return "/" + p.Config.S3Bucket + "/" + key
}

// StorageService 存储服务
type StorageService struct {
	Provider StorageProvider
}

func NewStorageService(cfg *config.Config) *StorageService {
	var (
		provider StorageProvider
		err      error
	)
	switch cfg.Storage.Type {
	case util.StorageMinio:
		provider, err = NewMinioStorageProvider(&cfg.Storage)
	case util.StorageOSS:
		provider, err = NewOSSStorageProvider(&cfg.Storage)
	case util.StorageS3:
		provider, err = NewS3StorageProvider(&cfg.Storage)
	}
	if err != nil {
		logger.Log.Error("Failed to initialize storage provider, falling back to local",
			zap.String("type", cfg.Storage.Type), zap.Error(err))
		provider = nil
	}

	if provider == nil {
		provider = &LocalStorageProvider{Config: &cfg.Storage}
	}

	return &StorageService{Provider: provider}
}

func (s *StorageService) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	return s.Provider.Upload(ctx, key, reader, size, contentType)
}

func (s *StorageService) UploadFile(ctx context.Context, key string, localPath string, contentType string) (string, error) {
	return s.Provider.UploadFile(ctx, key, localPath, contentType)
}

func (s *StorageService) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.Provider.Open(ctx, key)
}

func (s *StorageService) Delete(ctx context.Context, key string) error {
	return s.Provider.Delete(ctx, key)
}

func (s *StorageService) GetURL(key string) string {
	return s.Provider.GetURL(key)
}
