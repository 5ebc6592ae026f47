package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/aethra/keybot/pkg/strmap"
)

// ErrUnavailable is returned by every operation on a document whose backend
// could not be configured.
var ErrUnavailable = errors.New("registry unavailable")

type unavailable struct {
	name   string
	reason error
}

// Unavailable returns a Document that fails each Read and Write with
// ErrUnavailable wrapping reason. It lets the process start without registry
// credentials and report the problem per operation.
func Unavailable(name string, reason error) Document {
	return &unavailable{name: name, reason: reason}
}

func (u *unavailable) Read(context.Context) (*strmap.Map, string, error) {
	return nil, "", u.err()
}

func (u *unavailable) Write(context.Context, *strmap.Map, string, string) error {
	return u.err()
}

func (u *unavailable) Name() string {
	return u.name
}

func (u *unavailable) err() error {
	return fmt.Errorf("%w: %w", ErrUnavailable, u.reason)
}
