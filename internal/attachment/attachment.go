// Package attachment resolves attachment references into payloads at
// send time.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/nhle/mail-scheduler/internal/mailer"
)

// ErrUnavailable is wrapped by every resolver when the referenced payload
// cannot be read.
var ErrUnavailable = errors.New("attachment unavailable")

// Resolver turns a reference into attachment bytes.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (*mailer.Attachment, error)
}

// ObjectScheme prefixes object-storage references: s3://bucket/key.
const ObjectScheme = "s3://"

// Router dispatches object-storage references to Object and everything
// else to File.
type Router struct {
	File   Resolver
	Object Resolver
}

// Resolve implements Resolver.
func (r *Router) Resolve(ctx context.Context, ref string) (*mailer.Attachment, error) {
	if strings.HasPrefix(ref, ObjectScheme) {
		if r.Object == nil {
			return nil, fmt.Errorf("%w: object storage is not configured", ErrUnavailable)
		}
		return r.Object.Resolve(ctx, ref)
	}
	if r.File == nil {
		return nil, fmt.Errorf("%w: file attachments are not configured", ErrUnavailable)
	}
	return r.File.Resolve(ctx, ref)
}

// DetectType returns the media type for a payload: the file extension
// first, then content sniffing. Parameters such as charset are dropped.
func DetectType(filename string, data []byte) string {
	if t := mime.TypeByExtension(path.Ext(filename)); t != "" {
		return mediaType(t)
	}
	return mediaType(mimetype.Detect(data).String())
}

func mediaType(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}
