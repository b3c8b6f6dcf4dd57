package domain

import "errors"

var ErrNotFound = errors.New("not found")
var ErrInvalidFingerprint = errors.New("invalid fingerprint")

// ErrResolution is the root of every failure to turn a locator into a
// fingerprint and download descriptor.
var ErrResolution = errors.New("source resolution failed")
