package auraflow

import "github.com/google/uuid"

// UIDAllocator produces event_uid values. The allocator runs before the
// insert is issued so the result line can carry the key without relying on
// the store echoing it back.
type UIDAllocator func() string

// NewEventUID returns a random 128-bit identifier in standard UUID form.
func NewEventUID() string {
	return uuid.NewString()
}
