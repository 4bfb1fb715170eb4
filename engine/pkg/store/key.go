package store

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"

	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
)

// Key identifies one stored row. SCTID identities order numerically and UUID
// identities by their canonical text; identifier components order by scheme
// id then alternate identifier. Ties break on effective time.
type Key struct {
	Identity      string
	EffectiveTime string

	numeric   bool
	num       int64
	secondary string
}

// NewKey builds the key for an identity as produced by TableSchema.Identity.
func NewKey(schema *rf2.TableSchema, identity, effectiveTime string) (Key, error) {
	k := Key{Identity: identity, EffectiveTime: effectiveTime}
	primary := identity
	if schema.IdentityColumnSpan() == 2 {
		var ok bool
		primary, k.secondary, ok = strings.Cut(identity, rf2.ColumnSeparator)
		if !ok {
			return Key{}, fmt.Errorf("identity %q does not span two columns", identity)
		}
	}
	if schema.Fields[0].Type == rf2.SCTID {
		n, err := strconv.ParseInt(primary, 10, 64)
		if err != nil {
			return Key{}, fmt.Errorf("invalid SCTID identity %q", primary)
		}
		k.numeric = true
		k.num = n
	}
	return k, nil
}

// KeyOf builds the key of a split, normalized row.
func KeyOf(schema *rf2.TableSchema, cols []string) (Key, error) {
	id, et, err := schema.Identity(cols)
	if err != nil {
		return Key{}, err
	}
	return NewKey(schema, id, et)
}

func (k Key) primary() string {
	if i := strings.Index(k.Identity, rf2.ColumnSeparator); i >= 0 {
		return k.Identity[:i]
	}
	return k.Identity
}

// Compare orders keys by identity then effective time.
func (k Key) Compare(o Key) int {
	if c := k.CompareIdentity(o); c != 0 {
		return c
	}
	return cmp.Compare(k.EffectiveTime, o.EffectiveTime)
}

// CompareIdentity orders keys by identity only.
func (k Key) CompareIdentity(o Key) int {
	if k.numeric && o.numeric {
		if c := cmp.Compare(k.num, o.num); c != 0 {
			return c
		}
	} else if c := cmp.Compare(k.primary(), o.primary()); c != 0 {
		return c
	}
	return cmp.Compare(k.secondary, o.secondary)
}

func (k Key) Less(o Key) bool {
	return k.Compare(o) < 0
}

func (k Key) String() string {
	return k.Identity + "@" + k.EffectiveTime
}
