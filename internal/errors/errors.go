package errors

import "errors"

var (
	ErrInvalidConfig           = errors.New("invalid deploy configuration")
	ErrInvalidReleaseKeyFormat = errors.New("invalid release key format")
	ErrInvalidReleaseIDFormat  = errors.New("invalid release ID format")
	ErrReleaseNotFound         = errors.New("release not found")
	ErrEnvironmentNotFound     = errors.New("environment not found")
	ErrDistributionNotFound    = errors.New("distribution not found")
	ErrBuildOutputNotFound     = errors.New("build output directory not found")
)
