// Package patch implements the Patch Store (C5) and Patch Lifecycle (C6),
// SPEC_FULL.md §4.5-§4.7. The controller/policy shape (a small struct with
// functional options and a Logger) is adapted from the
// teacher's orchestration.DefaultInterruptController, generalized from a
// multi-step checkpoint workflow down to this spec's single boolean HITL
// predicate.
package patch

import (
	"sync"

	"github.com/google/uuid"

	coreerrors "github.com/pagi-systems/pagi-core/internal/errors"
)

// PendingPatch is the C5 entity, per SPEC_FULL.md §3.
type PendingPatch struct {
	PatchID      string
	ProposedCode string
	RequiresHITL bool
	Component    string
}

// Store is an in-memory concurrent mapping patch_id -> PendingPatch. No
// persistence across restart: pending patches are transient by design.
type Store struct {
	m sync.Map // string -> *PendingPatch
}

// NewStore builds an empty patch store.
func NewStore() *Store { return &Store{} }

// Insert allocates a fresh UUIDv4 patch_id, stores the pending patch under
// it, and returns the id.
func (s *Store) Insert(proposedCode string, requiresHITL bool, component string) string {
	id := uuid.NewString()
	s.m.Store(id, &PendingPatch{
		PatchID:      id,
		ProposedCode: proposedCode,
		RequiresHITL: requiresHITL,
		Component:    component,
	})
	return id
}

// Get looks up a pending patch by id.
func (s *Store) Get(patchID string) (*PendingPatch, bool) {
	v, ok := s.m.Load(patchID)
	if !ok {
		return nil, false
	}
	return v.(*PendingPatch), true
}

// Remove deletes a pending patch, returning whether it was present. The
// delete is atomic (LoadAndDelete), so of two concurrent Removes of the same
// id exactly one reports true. Apply's step 8 does not check the result.
func (s *Store) Remove(patchID string) bool {
	_, existed := s.m.LoadAndDelete(patchID)
	return existed
}

// lookupOrNotFound is a small helper shared by Apply's step 1.
func (s *Store) lookupOrNotFound(op, patchID string) (*PendingPatch, error) {
	p, ok := s.Get(patchID)
	if !ok {
		return nil, coreerrors.WithID(op, coreerrors.NotFound, "patch not found", patchID, nil)
	}
	return p, nil
}
