package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrEngine           = errors.New("engine error")
	ErrInvalidSource    = errors.New("invalid torrent source")
	ErrAdmissionTimeout = errors.New("admission timed out")
	ErrStorageExhausted = errors.New("storage budget exhausted")
	ErrNoCompatibleFile = errors.New("no compatible file")
)

func wrapEngine(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrEngine, err)
}
