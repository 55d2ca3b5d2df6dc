// Package errs holds the error taxonomy shared by the session, remote store
// and settings layers. Callers wrap these with fmt.Errorf("...: %w") and test
// with errors.Is.
package errs

import "errors"

var (
	// ErrAuthDenied means the user rejected consent or the provider revoked it.
	ErrAuthDenied = errors.New("authorization denied")

	// ErrUnauthenticated means a remote call was attempted without a valid credential.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrRemoteUnavailable covers network and service failures of the remote store.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrNotFound means a referenced remote resource (sheet, folder, row) is missing.
	ErrNotFound = errors.New("remote resource not found")
)
