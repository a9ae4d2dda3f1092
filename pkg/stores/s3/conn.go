package s3

import (
	"bytes"
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ConnConfig holds the S3 endpoint settings for checkpoint storage.
type ConnConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

/*
Conn wraps a minio client pinned to one bucket. The bucket is created on
connect when it does not exist, so a fresh deployment needs no manual
provisioning step.
*/
type Conn struct {
	client *minio.Client
	bucket string
}

// NewConn connects to the S3 endpoint and ensures the bucket exists.
func NewConn(ctx context.Context, config ConnConfig) (*Conn, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, err
	}

	if !exists {
		if err := client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
		log.Info("created checkpoint bucket", "bucket", config.Bucket)
	}

	return &Conn{client: client, bucket: config.Bucket}, nil
}

// Put writes an object under the connection's bucket.
func (conn *Conn) Put(ctx context.Context, key string, body []byte) error {
	_, err := conn.client.PutObject(
		ctx, conn.bucket, key,
		bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)

	return err
}

// Get reads an object fully into memory.
func (conn *Conn) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := conn.client.GetObject(ctx, conn.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	return io.ReadAll(obj)
}

// List returns the object keys under a prefix.
func (conn *Conn) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	for info := range conn.client.ListObjects(ctx, conn.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, info.Err
		}
		keys = append(keys, info.Key)
	}

	return keys, nil
}

// Delete removes an object.
func (conn *Conn) Delete(ctx context.Context, key string) error {
	return conn.client.RemoveObject(ctx, conn.bucket, key, minio.RemoveObjectOptions{})
}

// IsNotFound reports whether an S3 error means the object does not exist.
func IsNotFound(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
