package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/aethra/keybot/engine/key"
	"github.com/aethra/keybot/pkg/logger"
	"github.com/aethra/keybot/pkg/strmap"
)

// ErrConflict is returned by Document.Write when the stored revision no
// longer matches the one the write was based on.
var ErrConflict = errors.New("registry revision conflict")

// Document is a single revisioned JSON object of key to owner label.
type Document interface {
	// Read returns the records and their revision. A missing or corrupt
	// document yields empty records and an empty revision.
	Read(ctx context.Context) (*strmap.Map, string, error)
	// Write stores records if the current revision still equals revision.
	Write(ctx context.Context, records *strmap.Map, revision, message string) error
	// Name identifies the backing document in logs.
	Name() string
}

type Options struct {
	MaxRetries uint64
	Backoff    time.Duration
}

func DefaultOptions() Options {
	return Options{MaxRetries: 3, Backoff: 500 * time.Millisecond}
}

// Store implements key.Registry over a Document, retrying writes that lose a
// revision race.
type Store struct {
	doc  Document
	opts Options
}

var _ key.Registry = (*Store)(nil)

func New(doc Document, opts Options) *Store {
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultOptions().Backoff
	}
	return &Store{doc: doc, opts: opts}
}

func (s *Store) Load(ctx context.Context) (*strmap.Map, error) {
	records, _, err := s.doc.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.doc.Name(), err)
	}
	return records, nil
}

// Save overwrites the document with records, based on whatever revision is
// current at the time of writing.
func (s *Store) Save(ctx context.Context, records *strmap.Map, message string) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		_, revision, err := s.doc.Read(ctx)
		if err != nil {
			return fmt.Errorf("read %s: %w", s.doc.Name(), err)
		}
		return s.write(ctx, records, revision, message)
	})
}

// Update reads the document, applies mutate and writes the result against
// the revision it read. A conflicting write re-reads and re-applies mutate.
func (s *Store) Update(ctx context.Context, mutate key.Mutation) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		records, revision, err := s.doc.Read(ctx)
		if err != nil {
			return fmt.Errorf("read %s: %w", s.doc.Name(), err)
		}
		message, err := mutate(records)
		if errors.Is(err, strmap.ErrUnchanged) {
			return nil
		}
		if err != nil {
			return err
		}
		return s.write(ctx, records, revision, message)
	})
}

func (s *Store) write(ctx context.Context, records *strmap.Map, revision, message string) error {
	err := s.doc.Write(ctx, records, revision, message)
	if errors.Is(err, ErrConflict) {
		logger.FromContext(ctx).Debug("Registry write lost a revision race, retrying",
			"document", s.doc.Name(), "message", message)
		return retry.RetryableError(err)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", s.doc.Name(), err)
	}
	return nil
}

func (s *Store) withRetry(ctx context.Context, fn retry.RetryFunc) error {
	backoff := retry.WithMaxRetries(s.opts.MaxRetries, retry.NewExponential(s.opts.Backoff))
	return retry.Do(ctx, backoff, fn)
}
