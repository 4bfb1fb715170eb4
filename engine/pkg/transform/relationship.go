package transform

import (
	"context"
	"crypto/sha1"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
)

const statedRelationshipModifier = "S"

// RepeatableRelationshipUUID gives relationships without an id a UUID derived
// from sourceId, destinationId, typeId and relationshipGroup, so a
// relationship re-sent in a later build gets the same SCTID back.
type RepeatableRelationshipUUID struct {
	Stated bool
}

func (t RepeatableRelationshipUUID) TransformLine(_ context.Context, cols []string) error {
	if err := column(cols, 0); err != nil {
		return err
	}
	if !rf2.IsSentinel(cols[0]) {
		return nil
	}
	id, err := RelationshipUUID(cols, t.Stated)
	if err != nil {
		return err
	}
	cols[0] = id.String()
	return nil
}

// RelationshipUUID is the name-based UUID of a relationship row. Extension
// module ids are part of the name so extensions do not collide with the
// international edition.
func RelationshipUUID(cols []string, stated bool) (uuid.UUID, error) {
	if len(cols) < 8 {
		return uuid.Nil, fmt.Errorf("%w: relationship line has %d columns", ErrTransformation, len(cols))
	}
	var b strings.Builder
	if moduleID := cols[3]; moduleID != rf2.InternationalCoreModuleID && moduleID != rf2.InternationalModelModuleID {
		b.WriteString(moduleID)
	}
	b.WriteString(cols[4])
	b.WriteString(cols[5])
	b.WriteString(cols[7])
	b.WriteString(cols[6])
	if stated {
		b.WriteString(statedRelationshipModifier)
	}
	return nameUUID(b.String()), nil
}

// nameUUID is a version 5 UUID over the SHA-1 of name alone. uuid.NewSHA1
// always hashes a namespace first, which would change every published id.
func nameUUID(name string) uuid.UUID {
	sum := sha1.Sum([]byte(name))
	var u uuid.UUID
	copy(u[:], sum[:16])
	u[6] = (u[6] & 0x0f) | 0x50
	u[8] = (u[8] & 0x3f) | 0x80
	return u
}
