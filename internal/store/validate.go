package store

import "github.com/tapehouse/controltape/internal/tape"

// ValidationError pairs a tape's on-disk path with the error found
// while validating it.
type ValidationError struct {
	Path string
	Err  error
}

// Validate runs lenient or strict validation against every loaded
// tape, returning the failures without raising.
func (s *Store) Validate(strict bool) []ValidationError {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []ValidationError
	for i, t := range s.tapes {
		var err error
		if strict {
			err = tape.ValidateStrict(t)
		} else {
			err = tape.ValidateLenient(t)
		}
		if err != nil {
			errs = append(errs, ValidationError{Path: s.paths[i], Err: err})
		}
	}
	return errs
}
