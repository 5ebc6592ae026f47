package localstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/aethra/keybot/engine/infra/registry"
	"github.com/aethra/keybot/pkg/logger"
	"github.com/aethra/keybot/pkg/strmap"
)

// FileRegistry is a registry.Document kept on local disk. Its revision is
// the SHA-256 of the file contents. Commit messages are appended to a
// journal next to the document.
type FileRegistry struct {
	mu      sync.Mutex
	fs      afero.Fs
	path    string
	journal string
	now     func() time.Time
}

var _ registry.Document = (*FileRegistry)(nil)

func NewFileRegistry(fs afero.Fs, path string) *FileRegistry {
	return &FileRegistry{fs: fs, path: path, journal: path + ".log", now: time.Now}
}

func (r *FileRegistry) Name() string { return "file:" + r.path }

func (r *FileRegistry) Read(ctx context.Context) (*strmap.Map, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read(ctx)
}

func (r *FileRegistry) read(ctx context.Context) (*strmap.Map, string, error) {
	data, err := readOptional(r.fs, r.path)
	if err != nil {
		return nil, "", fmt.Errorf("read registry %s: %w", r.path, err)
	}
	if data == nil {
		return strmap.New(), "", nil
	}
	revision := digest(data)
	records, err := strmap.Decode(data)
	if err != nil {
		logger.FromContext(ctx).Warn("Ignoring corrupt registry file", "path", r.path, "error", err)
		return strmap.New(), revision, nil
	}
	return records, revision, nil
}

func (r *FileRegistry) Write(ctx context.Context, records *strmap.Map, revision, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, current, err := r.read(ctx)
	if err != nil {
		return err
	}
	if current != revision {
		return registry.ErrConflict
	}
	data, err := strmap.Encode(records)
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := writeAtomic(r.fs, r.path, data); err != nil {
		return err
	}
	return r.appendJournal(message)
}

// Revision returns the current revision of the document.
func (r *FileRegistry) Revision(ctx context.Context) (string, error) {
	_, revision, err := r.Read(ctx)
	return revision, err
}

func (r *FileRegistry) appendJournal(message string) error {
	f, err := r.fs.OpenFile(r.journal, os.O_APPEND|os.O_CREATE|os.O_WRONLY, FilePermissionsReadWrite)
	if err != nil {
		return fmt.Errorf("open registry journal: %w", err)
	}
	defer f.Close()
	line := fmt.Sprintf("%s %s\n", r.now().UTC().Format(time.RFC3339), message)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append registry journal: %w", err)
	}
	return nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
