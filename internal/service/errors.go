package service

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrInvalidInvite      = errors.New("invalid-invite")
	ErrNotOwner           = errors.New("only the room owner may create invites")
	ErrPersistenceFailure = errors.New("failed to persist board")
	ErrInternalServer     = errors.New("internal server error")
)
