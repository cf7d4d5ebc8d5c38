package repository

import "errors"

var (
	// ErrGroupNotFound indicates no stored group has the requested ID
	ErrGroupNotFound = errors.New("duplicate group not found")

	// ErrRepositoryUnavailable indicates the backing store cannot be used
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)
