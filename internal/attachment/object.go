package attachment

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nhle/mail-scheduler/internal/mailer"
)

// ObjectOptions configures the S3-compatible client.
type ObjectOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// ObjectResolver reads s3://bucket/key references from S3-compatible
// storage.
type ObjectResolver struct {
	client *minio.Client
}

// NewObjectResolver builds a MinIO client from opts.
func NewObjectResolver(opts ObjectOptions) (*ObjectResolver, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object storage client: %w", err)
	}
	return &ObjectResolver{client: client}, nil
}

// Resolve downloads the object named by ref.
func (r *ObjectResolver) Resolve(ctx context.Context, ref string) (*mailer.Attachment, error) {
	bucket, key, err := ParseObjectRef(ref)
	if err != nil {
		return nil, err
	}

	obj, err := r.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, ref, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, ref, err)
	}

	name := path.Base(key)
	return &mailer.Attachment{
		Data:     data,
		Filename: name,
		MIMEType: DetectType(name, data),
	}, nil
}

// ParseObjectRef splits s3://bucket/key.
func ParseObjectRef(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(ref, ObjectScheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not an %s reference", ErrUnavailable, ref, ObjectScheme)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || strings.Trim(key, "/") == "" {
		return "", "", fmt.Errorf("%w: %q must look like %sbucket/key", ErrUnavailable, ref, ObjectScheme)
	}
	return bucket, key, nil
}
