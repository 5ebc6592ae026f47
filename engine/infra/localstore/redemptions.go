package localstore

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/aethra/keybot/engine/key"
	"github.com/aethra/keybot/pkg/logger"
	"github.com/aethra/keybot/pkg/strmap"
)

// Redemptions stores requester to key bindings as a JSON object.
type Redemptions struct {
	fs   afero.Fs
	path string
}

var _ key.RedemptionStore = (*Redemptions)(nil)

func NewRedemptions(fs afero.Fs, path string) *Redemptions {
	return &Redemptions{fs: fs, path: path}
}

// Load returns the stored records. A missing or unparsable file yields an
// empty map.
func (r *Redemptions) Load(ctx context.Context) (*strmap.Map, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := readOptional(r.fs, r.path)
	if err != nil {
		return nil, fmt.Errorf("read redemptions %s: %w", r.path, err)
	}
	if len(data) == 0 {
		return strmap.New(), nil
	}
	records, err := strmap.Decode(data)
	if err != nil {
		logger.FromContext(ctx).Warn("Ignoring corrupt redemptions file", "path", r.path, "error", err)
		return strmap.New(), nil
	}
	return records, nil
}

func (r *Redemptions) Save(ctx context.Context, records *strmap.Map) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := strmap.Encode(records)
	if err != nil {
		return fmt.Errorf("encode redemptions: %w", err)
	}
	return writeAtomic(r.fs, r.path, data)
}
