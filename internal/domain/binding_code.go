package domain

import "time"

// BindingCode is a pending request to link a platform identity to a staff record.
// A code moves from pending to consumed once and never back.
type BindingCode struct {
	ID            string
	Code          string
	OwnerIdentity string
	Used          bool
	UsedAt        *time.Time
	UsedBy        *string
	ExpiresAt     *time.Time
	CreatedAt     time.Time
}

// PendingAt reports whether the code can still be consumed.
func (b *BindingCode) PendingAt(now time.Time) bool {
	if b == nil || b.Used {
		return false
	}
	return b.ExpiresAt == nil || now.Before(*b.ExpiresAt)
}

// MarkUsed consumes the code on behalf of the given platform identity.
func (b *BindingCode) MarkUsed(by string, at time.Time) {
	b.Used = true
	b.UsedAt = &at
	b.UsedBy = &by
}
