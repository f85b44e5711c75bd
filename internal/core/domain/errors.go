package domain

import "errors"

var (
	ErrRoundNotFound      = errors.New("round not found")
	ErrRoundAlreadyExists = errors.New("round already exists")
	// ErrStaleRound is returned by a conditional write whose expected revision
	// no longer matches the stored one. Someone else advanced the round first.
	ErrStaleRound        = errors.New("round was modified concurrently")
	ErrInvalidTransition = errors.New("invalid round transition")
	ErrInvalidConfig     = errors.New("invalid round config")
	ErrAlreadyJoined     = errors.New("user already joined the round")
	ErrRoundClosed       = errors.New("round is closed")
	ErrNothingToResume   = errors.New("round has no disbursement waiting for review")
)
