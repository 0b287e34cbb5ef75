package domain

import "errors"

// Sentinel errors returned by repositories. Services translate these into the
// API error taxonomy at the point of detection.
var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicate        = errors.New("already exists")
	ErrInviteNotPending = errors.New("invite is not pending")
	ErrInviteRedeemed   = errors.New("invite already redeemed")
)
