package model

import "errors"

// Campaign error taxonomy
var (
	// ErrValidation marks malformed or missing input; raised before a run starts.
	ErrValidation = errors.New("validation failed")
	// ErrAuthentication marks rejected transport credentials; aborts the run.
	ErrAuthentication = errors.New("authentication failed")
	// ErrSend marks a per-recipient transport failure.
	ErrSend = errors.New("send failed")
	// ErrArchive marks a failed sent-copy archival.
	ErrArchive = errors.New("archive failed")
	// ErrPersistence marks a checkpoint or history write failure.
	ErrPersistence = errors.New("persistence failed")
	// ErrNotFound marks a missing checkpoint or record.
	ErrNotFound = errors.New("record not found")
)
