// Package objectstore wraps the S3 client used for state sync, promotion
// and credential checks. Credentials come from the run configuration:
// static keys by default, STS AssumeRole when a role ARN is configured.
package objectstore

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/unosaa/datapipe/internal/config"
)

// assumeRoleSessionName tags STS sessions opened by the pipeline.
const assumeRoleSessionName = "AssumeRoleSession"

// stsEndpoint is the global STS endpoint used for AssumeRole.
const stsEndpoint = "https://sts.amazonaws.com"

// Client is an S3 client bound to the configured state bucket.
type Client struct {
	mc     *minio.Client
	bucket string
}

// New builds a Client from the run configuration.
func New(cfg config.Config) (*Client, error) {
	endpoint, secure, err := parseEndpoint(cfg.AWSEndpointURL)
	if err != nil {
		return nil, err
	}

	creds, err := buildCredentials(cfg)
	if err != nil {
		return nil, err
	}

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:     creds,
		Secure:    secure,
		Region:    cfg.AWSRegion,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return &Client{mc: mc, bucket: cfg.BucketName}, nil
}

func buildCredentials(cfg config.Config) (*credentials.Credentials, error) {
	if cfg.AWSRoleARN != "" {
		creds, err := credentials.NewSTSAssumeRole(stsEndpoint, credentials.STSAssumeRoleOptions{
			AccessKey:       cfg.AWSAccessKeyID,
			SecretKey:       cfg.AWSSecretAccessKey,
			RoleARN:         cfg.AWSRoleARN,
			RoleSessionName: assumeRoleSessionName,
			Location:        cfg.AWSRegion,
		})
		if err != nil {
			return nil, fmt.Errorf("assume role %s: %w", cfg.AWSRoleARN, err)
		}
		return creds, nil
	}
	return credentials.NewStaticV4(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.AWSSessionToken), nil
}

// parseEndpoint splits an endpoint URL into the host form minio expects
// plus the TLS flag. A bare host defaults to TLS.
func parseEndpoint(raw string) (endpoint string, secure bool, err error) {
	if raw == "" {
		return "", false, fmt.Errorf("empty S3 endpoint")
	}
	if !strings.Contains(raw, "://") {
		return raw, true, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse S3 endpoint %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("S3 endpoint %q has no host", raw)
	}
	return u.Host, u.Scheme != "http", nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string { return c.bucket }

// Exists reports whether the object key is present in the bucket.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.mc.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Download fetches an object to a local file path.
func (c *Client) Download(ctx context.Context, key, path string) error {
	return c.mc.FGetObject(ctx, c.bucket, key, path, minio.GetObjectOptions{})
}

// Upload pushes a local file to an object key, overwriting prior content.
func (c *Client) Upload(ctx context.Context, key, path string) error {
	_, err := c.mc.FPutObject(ctx, c.bucket, key, path, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

// Copy performs a server-side copy between keys in the bucket.
func (c *Client) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := c.mc.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: c.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: c.bucket, Object: srcKey},
	)
	return err
}

// List returns every object key under the prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range c.mc.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// ListBuckets names every bucket visible to the credentials. Used by the
// credential check command.
func (c *Client) ListBuckets(ctx context.Context) ([]string, error) {
	buckets, err := c.mc.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(buckets))
	for _, b := range buckets {
		names = append(names, b.Name)
	}
	return names, nil
}

// IsNotFound reports whether an error is the remote saying the object or
// bucket does not exist, as opposed to it being unreachable.
func IsNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return resp.StatusCode == http.StatusNotFound
}
