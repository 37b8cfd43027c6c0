package rowcodec

import (
	"fmt"

	"github.com/allyourbase/oraclone/internal/oci"
)

// Binder is a prepared statement parameters can be attached to.
type Binder interface {
	bind(name string, pos int, col *oci.Column) (oci.Bind, error)
	charset() oci.Charset
}

// Binding owns the single-cell buffer of one parameter. Set rewrites it in
// place; the statement picks up the new value on its next execution.
type Binding[V any] struct {
	name     string
	col      *oci.Column
	handle   oci.Bind
	cs       oci.Charset
	declared int
}

// BindName attaches a named parameter of type V to b.
func BindName[V any](b Binder, name string, m Meta) (*Binding[V], error) {
	return attach[V](b, name, 0, m)
}

// BindPos attaches the 1-based positional parameter pos to b.
func BindPos[V any](b Binder, pos int, m Meta) (*Binding[V], error) {
	return attach[V](b, "", pos, m)
}

func attach[V any](b Binder, name string, pos int, m Meta) (*Binding[V], error) {
	if m.Type.IsLob() {
		return nil, fmt.Errorf("bind %s: LOB parameters are not supported", bindLabel(name, pos))
	}
	col := oci.NewColumn(m.Type, m.Size, 1)
	col.SetNull(0)
	h, err := b.bind(name, pos, col)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", bindLabel(name, pos), err)
	}
	return &Binding[V]{name: bindLabel(name, pos), col: col, handle: h, cs: b.charset(), declared: m.Size}, nil
}

func bindLabel(name string, pos int) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf(":%d", pos)
}

// Set stores v. Text longer than the declared capacity is rejected.
func (b *Binding[V]) Set(v V) error {
	if err := oci.PutValue(b.col, 0, any(v), b.cs); err != nil {
		return fmt.Errorf("bind %s: %w", b.name, err)
	}
	if b.col.Lengths != nil && int(b.col.Lengths[0]) > b.declared {
		n := b.col.Lengths[0]
		b.col.SetNull(0)
		return fmt.Errorf("bind %s: value of %d bytes exceeds capacity %d", b.name, n, b.declared)
	}
	return nil
}

// SetNull binds NULL.
func (b *Binding[V]) SetNull() {
	b.col.SetNull(0)
}

// SetAttr forwards a handle attribute, e.g. the bind character set.
func (b *Binding[V]) SetAttr(attr oci.Attribute, value uint32) error {
	return b.handle.SetAttr(attr, value)
}
