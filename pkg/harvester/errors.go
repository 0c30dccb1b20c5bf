package harvester

import "fmt"

// ConnectionError means the SFTP server was unreachable or rejected our
// credentials.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("sftp connection: %s", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ListingError means the remote directory structure was unreadable or not
// what the harvester expects.
type ListingError struct {
	Dir string
	Err error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("sftp listing %s: %s", e.Dir, e.Err)
}

func (e *ListingError) Unwrap() error {
	return e.Err
}
