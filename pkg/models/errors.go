package models

import "errors"

var (
	ErrMissingTrigger      = errors.New("automation has no trigger")
	ErrNodeIDMismatch      = errors.New("node id does not match its key")
	ErrAmbiguousSuccessor  = errors.New("node declares both next and branches")
	ErrDanglingNode        = errors.New("successor node does not exist")
	ErrMultipleStartNodes  = errors.New("more than one node follows the trigger")
	ErrInvalidTransition   = errors.New("invalid execution status transition")
	ErrInvalidActionStatus = errors.New("invalid action log status")
)
