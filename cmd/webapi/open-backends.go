package main

import (
	"context"
	"fmt"

	"github.com/silktrader/deadpoets/pkg/realtime"
	"github.com/silktrader/deadpoets/pkg/storage/images"
	"github.com/sirupsen/logrus"
)

const (
	diskBackend   = "disk"
	minioBackend  = "minio"
	memoryBackend = "memory"
	redisBackend  = "redis"

	// defaultDiskURL matches the default API host, photos being served by the API itself
	defaultDiskURL = "http://localhost:3000/storage"
)

// openBucket picks where profile photos are kept.
func openBucket(ctx context.Context, logger logrus.FieldLogger, cfg WebAPIConfiguration) (images.Bucket, error) {
	switch cfg.Images.Backend {
	case diskBackend:
		var publicURL = cfg.Images.PublicURL
		if publicURL == "" {
			publicURL = defaultDiskURL
		}
		storage, err := images.New(logger, cfg.Images.Path, publicURL)
		if err != nil {
			return nil, err
		}
		return storage, nil
	case minioBackend:
		storage, err := images.NewMinio(ctx, logger, images.MinioConfig{
			Endpoint:   cfg.Images.Endpoint,
			AccessKey:  cfg.Images.AccessKey,
			SecretKey:  cfg.Images.SecretKey,
			Bucket:     cfg.Images.Bucket,
			UseSSL:     cfg.Images.UseSSL,
			PublicBase: cfg.Images.PublicURL,
		})
		if err != nil {
			return nil, err
		}
		return storage, nil
	default:
		return nil, fmt.Errorf("unknown images backend %q", cfg.Images.Backend)
	}
}

// openBroker picks how realtime events reach subscribers; the returned func releases the broker.
func openBroker(ctx context.Context, logger logrus.FieldLogger, cfg WebAPIConfiguration) (realtime.Broker, func(), error) {
	switch cfg.Realtime.Backend {
	case memoryBackend:
		return realtime.NewMemoryBroker(logger), func() {}, nil
	case redisBackend:
		broker, err := realtime.NewRedisBroker(ctx, logger, cfg.Realtime.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return broker, func() {
			if err := broker.Close(); err != nil {
				logger.WithError(err).Warn("error closing redis broker")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown realtime backend %q", cfg.Realtime.Backend)
	}
}
