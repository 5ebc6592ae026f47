package localstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/aethra/keybot/engine/key"
)

// Ledger stores valid keys as UTF-8 text, one key per line.
type Ledger struct {
	fs   afero.Fs
	path string
}

var _ key.LedgerStore = (*Ledger)(nil)

func NewLedger(fs afero.Fs, path string) *Ledger {
	return &Ledger{fs: fs, path: path}
}

// Load returns trimmed, non-blank lines in file order. A missing file is an
// empty ledger.
func (l *Ledger) Load(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := readOptional(l.fs, l.path)
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", l.path, err)
	}
	return parseLedger(string(data)), nil
}

func (l *Ledger) Save(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeAtomic(l.fs, l.path, []byte(strings.Join(keys, "\n")))
}

func parseLedger(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	keys := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			keys = append(keys, line)
		}
	}
	return keys
}
