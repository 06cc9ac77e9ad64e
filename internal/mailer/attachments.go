package mailer

import (
	"context"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/unclebandit/phishsim-backend/internal/model"
)

// AttachmentStore resolves an attachment record to its bytes.
type AttachmentStore interface {
	Load(ctx context.Context, a *model.Attachment) (*Attachment, error)
}

// FileStore reads attachments from the local filesystem. Relative paths are
// resolved under Root.
type FileStore struct {
	Root string
}

var _ AttachmentStore = (*FileStore)(nil)

func (s *FileStore) Load(ctx context.Context, a *model.Attachment) (*Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.FromSlash(strings.ReplaceAll(a.FilePath, "\\", "/"))
	if !filepath.IsAbs(path) && s.Root != "" {
		path = filepath.Join(s.Root, path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	mimeType := a.FileType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(a.Name))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	name := a.Name
	if name == "" {
		name = filepath.Base(path)
	}
	return &Attachment{Filename: name, MimeType: mimeType, Content: content}, nil
}
