package attachment

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/nhle/mail-scheduler/internal/mailer"
)

// FileResolver reads attachments from a filesystem.
type FileResolver struct {
	fs afero.Fs
}

// NewFileResolver returns a resolver over fs. A nil fs means the OS
// filesystem.
func NewFileResolver(fs afero.Fs) *FileResolver {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileResolver{fs: fs}
}

// Resolve reads the file at ref.
func (r *FileResolver) Resolve(_ context.Context, ref string) (*mailer.Attachment, error) {
	info, err := r.fs.Stat(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, ref, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnavailable, ref)
	}

	data, err := afero.ReadFile(r.fs, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrUnavailable, ref, err)
	}

	name := filepath.Base(ref)
	return &mailer.Attachment{
		Data:     data,
		Filename: name,
		MIMEType: DetectType(name, data),
	}, nil
}
