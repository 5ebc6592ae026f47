package dispatch

import (
	"context"
	"errors"

	"github.com/aethra/keybot/pkg/logger"
)

// Audit colors.
const (
	ColorDefault = 0x9b4dff
	ColorSuccess = 0x4dff88
	ColorDanger  = 0xff4d4d
	ColorInfo    = 0x00ccff
	ColorWarning = 0xffcc00
)

// Notice is one audit trail entry.
type Notice struct {
	Title       string
	Description string
	Color       int
}

// Notifier delivers audit notices. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, notice Notice) error
}

// LogNotifier writes notices to the structured log.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, notice Notice) error {
	logger.FromContext(ctx).Info("Audit", "title", notice.Title, "description", notice.Description)
	return nil
}

// MultiNotifier fans a notice out to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, notice Notice) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, notice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
