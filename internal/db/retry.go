package db

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is a function that performs an action and returns an error if it fails.
type Operation func() error

// IsRetryable is a function that decides whether an error is worth another attempt.
type IsRetryable func(err error) bool

const DefaultMaxRetries = 3

// ErrConflict is returned by conditional writes whose filter no longer matched,
// i.e. another writer got in between the read and the update. Callers re-read
// and re-validate before retrying.
var ErrConflict = errors.New("concurrent modification conflict")

// Try executes an operation with default retry settings. It retries
// duplicate-key errors and compare-and-set conflicts.
func Try(op Operation) error {
	return WithRetries(op, DefaultMaxRetries, func(err error) bool {
		return IsMongoDuplicateKeyError(err) || errors.Is(err, ErrConflict)
	})
}

// WithRetries executes an operation with a retry mechanism.
// It attempts the operation up to maxRetries times with a small
// incremental backoff between attempts.
func WithRetries(op Operation, maxRetries int, isRetryable IsRetryable) error {
	var err error
	// Loop for initial attempt (attempt = 0) + maxRetries
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil // Success
		}

		// Last attempt failed, return the error.
		if attempt == maxRetries {
			break
		}

		if isRetryable(err) {
			time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond) // Simple incremental backoff
		} else {
			return err // Not retryable, return immediately
		}
	}
	return err // All attempts failed or last attempt failed
}

// IsMongoDuplicateKeyError checks if an error from MongoDB is a duplicate key error (code 11000).
func IsMongoDuplicateKeyError(err error) bool {
	var e mongo.WriteException
	if errors.As(err, &e) {
		for _, we := range e.WriteErrors {
			if we.Code == 11000 {
				return true
			}
		}
	}
	// Also check for BulkWriteException, which can contain duplicate key errors
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, writeError := range bwe.WriteErrors {
			if writeError.Code == 11000 {
				return true
			}
		}
	}
	return false
}
