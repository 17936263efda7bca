// Package keypool holds the credentials used to authenticate against the
// upstream image-generation API and rotates through them.
//
// A Pool is an immutable, ordered list of credentials plus a shared Cursor.
// The active credential is always creds[cursor % len(creds)]. Rotation never
// removes a credential: an exhausted key is revisited after one full cycle.
//
// The cursor is the only shared mutable state. AtomicCursor keeps it in
// process memory; RedisCursor keeps it in Redis so several replicas rotate
// through the same key list together. Concurrent callers may both advance
// the cursor on failure; each caller keeps the credential returned by its own
// Advance, so no caller ever reads a half-updated view.
package keypool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// ErrNoCredentials is returned when the pool holds no credentials.
var ErrNoCredentials = errors.New("keypool: no credentials configured")

// Credential is one API key for the upstream generation service.
type Credential struct {
	// Name is a non-secret label such as "key-1", safe to log.
	Name string
	// Secret is the raw API key.
	Secret string
}

// String returns the credential label without the secret.
func (c Credential) String() string { return c.Name }

// Cursor is a monotonically increasing rotation counter.
type Cursor interface {
	// Load returns the current counter value.
	Load(ctx context.Context) (uint64, error)
	// Next increments the counter and returns the new value.
	Next(ctx context.Context) (uint64, error)
}

// Pool rotates through a fixed list of credentials.
type Pool struct {
	creds  []Credential
	cursor Cursor
}

// Option configures a Pool at construction time.
type Option func(*poolOptions)

type poolOptions struct {
	cursor  Cursor
	shuffle *rand.Rand
}

// WithCursor replaces the default in-process cursor.
func WithCursor(c Cursor) Option {
	return func(o *poolOptions) {
		if c != nil {
			o.cursor = c
		}
	}
}

// WithShuffle randomizes the initial credential order using r. The order is
// fixed once the pool is built.
func WithShuffle(r *rand.Rand) Option {
	return func(o *poolOptions) { o.shuffle = r }
}

// New builds a Pool over a private copy of creds. Entries with an empty
// secret are skipped. An empty pool is valid; Current and Advance report
// ErrNoCredentials on it.
func New(creds []Credential, opts ...Option) *Pool {
	o := poolOptions{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.cursor == nil {
		o.cursor = &AtomicCursor{}
	}

	list := make([]Credential, 0, len(creds))
	for _, c := range creds {
		if strings.TrimSpace(c.Secret) == "" {
			continue
		}
		list = append(list, c)
	}
	if o.shuffle != nil {
		o.shuffle.Shuffle(len(list), func(i, j int) { list[i], list[j] = list[j], list[i] })
	}
	return &Pool{creds: list, cursor: o.cursor}
}

// FromSecrets labels raw secrets "key-1".."key-N" and builds a Pool.
func FromSecrets(secrets []string, opts ...Option) *Pool {
	creds := make([]Credential, 0, len(secrets))
	for i, s := range secrets {
		creds = append(creds, Credential{Name: fmt.Sprintf("key-%d", i+1), Secret: s})
	}
	return New(creds, opts...)
}

// Len returns the number of credentials.
func (p *Pool) Len() int { return len(p.creds) }

// Current returns the credential at the cursor position.
func (p *Pool) Current(ctx context.Context) (Credential, error) {
	if len(p.creds) == 0 {
		return Credential{}, ErrNoCredentials
	}
	n, err := p.cursor.Load(ctx)
	if err != nil {
		return Credential{}, fmt.Errorf("keypool: load cursor: %w", err)
	}
	return p.at(n), nil
}

// Advance moves the cursor forward by one and returns the new current
// credential.
func (p *Pool) Advance(ctx context.Context) (Credential, error) {
	if len(p.creds) == 0 {
		return Credential{}, ErrNoCredentials
	}
	n, err := p.cursor.Next(ctx)
	if err != nil {
		return Credential{}, fmt.Errorf("keypool: advance cursor: %w", err)
	}
	return p.at(n), nil
}

// Names returns the credential labels in rotation order.
func (p *Pool) Names() []string {
	out := make([]string, len(p.creds))
	for i, c := range p.creds {
		out[i] = c.Name
	}
	return out
}

func (p *Pool) at(n uint64) Credential {
	return p.creds[n%uint64(len(p.creds))]
}
