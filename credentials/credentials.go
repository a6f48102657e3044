// Package credentials supplies the user identifier and secret used to
// authenticate with a broker.
package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/miladsoleymani/mqrequest/core"
)

// ErrCredentials is returned when no usable credential pair can be read.
var ErrCredentials = errors.New("mqrequest: unable to read user credentials")

// Supplier produces a credential pair.
type Supplier interface {
	Credentials(ctx context.Context) (core.Credentials, error)
}

// File reads a user identifier and a secret, the first two
// whitespace-separated tokens of the file at Path.
type File struct {
	Path string
}

// NewFile returns a File supplier for path.
func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) Credentials(_ context.Context) (core.Credentials, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return core.Credentials{}, fmt.Errorf("%w: %w", ErrCredentials, err)
	}
	defer fh.Close()

	sc := bufio.NewScanner(fh)
	sc.Split(bufio.ScanWords)
	var tokens []string
	for len(tokens) < 2 && sc.Scan() {
		tokens = append(tokens, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return core.Credentials{}, fmt.Errorf("%w: %s: %w", ErrCredentials, f.Path, err)
	}
	if len(tokens) < 2 {
		return core.Credentials{}, fmt.Errorf("%w: %s: want user and secret, found %d token(s)", ErrCredentials, f.Path, len(tokens))
	}
	return core.Credentials{User: tokens[0], Secret: tokens[1]}, nil
}

// Static always returns the same pair.
type Static core.Credentials

func (s Static) Credentials(_ context.Context) (core.Credentials, error) {
	c := core.Credentials(s)
	if !c.Valid() {
		return core.Credentials{}, fmt.Errorf("%w: %w", ErrCredentials, core.ErrEmptyCredentials)
	}
	return c, nil
}
