package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store keeps uploaded invoice documents. Refs are slash-separated keys
// relative to the store root, e.g. invoices/2024/01/15/ab12cd34_factura.pdf.
type Store interface {
	Save(ctx context.Context, filename string, r io.Reader, size int64) (string, error)
	// Open makes the document available as a local file. cleanup must be
	// called once the caller is done with the path.
	Open(ctx context.Context, ref string) (localPath string, cleanup func(), err error)
	Remove(ctx context.Context, ref string) error
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectKey builds the ref a new upload is stored under.
func ObjectKey(filename string, now time.Time) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "document"
	}
	prefix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return path.Join("invoices", now.UTC().Format("2006/01/02"), prefix+"_"+base)
}

func checkRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("empty document reference")
	}
	clean := path.Clean("/" + ref)
	if clean != "/"+ref || strings.Contains(ref, "..") {
		return fmt.Errorf("invalid document reference %q", ref)
	}
	return nil
}
