// Package idgen assigns permanent identifiers to new components through an
// identifier service, caching the assignments of one build.
package idgen

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Scheme is a legacy alternate identifier scheme.
type Scheme string

const (
	SchemeCTV3ID   Scheme = "CTV3ID"
	SchemeSNOMEDID Scheme = "SNOMEDID"
)

// ErrTransient marks identifier service failures worth re-issuing.
var ErrTransient = errors.New("transient identifier service failure")

// Request carries the qualifiers of an SCTID request.
type Request struct {
	Namespace   int
	PartitionID string
	ReleaseID   string
	ExecutionID string
	ModuleID    string
}

// Comment is the audit comment recorded with every identifier the build
// creates.
func (r Request) Comment() string {
	return fmt.Sprintf("ReleaseId:%s BuildId:%s", r.ReleaseID, r.ExecutionID)
}

// Client creates, or fetches previously created, identifiers for content
// UUIDs.
type Client interface {
	CreateSCTID(ctx context.Context, req Request, id uuid.UUID) (int64, error)
	CreateSCTIDs(ctx context.Context, req Request, ids []uuid.UUID) (map[uuid.UUID]int64, error)
	CreateSchemeIDs(ctx context.Context, scheme Scheme, ids []uuid.UUID, comment string) (map[uuid.UUID]string, error)
}
