package minio

import (
	"context"
	"flag"
	"io"
	"path"

	util_io "github.com/ewhitman/davit/pkg/util/io"
	"github.com/go-kit/log"
	"github.com/grafana/dskit/flagext"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

const (
	Bucket = "davit"
)

type Config struct {
	Endpoint  string         `yaml:"endpoint"`
	AccessKey string         `yaml:"access_key"`
	SecretKey flagext.Secret `yaml:"secret_key"`
	Secure    bool           `yaml:"secure"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Endpoint, flagPrefix+"minio.endpoint", "", `Minio endpoint`)
	f.StringVar(&c.AccessKey, flagPrefix+"minio.access-key", "", `Minio access key`)
	f.Var(&c.SecretKey, flagPrefix+"minio.secret-key", `Minio secret key`)
	f.BoolVar(&c.Secure, flagPrefix+"minio.secure", false, `Use TLS for minio`)
}

type MinioWriter struct {
	client minio.Client
	bucket string
	log    log.Logger
}

func NewWriter(cfg Config, bucket string, log log.Logger) (*MinioWriter, error) {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey.String(), ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, errors.Wrap(err, "initialize minio client for writer")
	}

	found, err := minioClient.BucketExists(context.Background(), bucket)
	if err != nil {
		return nil, errors.Wrap(err, "check minio bucket exists")
	}

	if !found {
		if err := minioClient.MakeBucket(context.Background(), bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrap(err, "make minio bucket")
		}
	}

	return &MinioWriter{
		client: *minioClient,
		bucket: bucket,
		log:    log,
	}, nil
}

func (c *MinioWriter) Store(ctx context.Context, dest string, name string, r io.Reader) error {
	// Tar entries stream through with unknown length; minio handles -1.
	size, err := util_io.TryGetSize(r)
	if err != nil {
		size = -1
	}

	objName := path.Join(dest, name)
	_, err = c.client.PutObject(ctx, c.bucket, objName, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return errors.Wrap(err, "store minio object")
	}

	return nil
}
