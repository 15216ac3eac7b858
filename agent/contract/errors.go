package contract

import "errors"

var (
	ErrUnknownAction = errors.New("action is not available in current node")
	ErrValidation    = errors.New("validation failed")
	ErrCollaborator  = errors.New("external collaborator failed")
	ErrNodeInvalid   = errors.New("node definition is invalid")
	ErrSessionEnded  = errors.New("session has ended")
)
