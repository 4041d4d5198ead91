package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// unavailable is a Store whose every operation fails with the error that
// prevented the real store from opening.
type unavailable struct {
	err error
}

// Unavailable returns a Store that reports err, wrapped in ErrIndexUnavailable,
// from every Query and Add. It lets callers start without an index and surface
// the failure per request.
func Unavailable(err error) Store {
	return &unavailable{err: err}
}

func (u *unavailable) Query(context.Context, string, int) ([]Result, error) {
	return nil, u.wrap()
}

func (u *unavailable) Add(context.Context, []Document) error {
	return u.wrap()
}

func (u *unavailable) Close() error { return nil }

func (u *unavailable) wrap() error {
	if errors.Is(u.err, ErrIndexUnavailable) {
		return u.err
	}
	return fmt.Errorf("%w: %v", ErrIndexUnavailable, u.err)
}
