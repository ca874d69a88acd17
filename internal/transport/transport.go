// Package transport opens authenticated command sessions on network devices.
//
// A Client tries exactly one credential per Connect call; walking the
// credential list in order is the caller's loop. Timeouts and connection
// failures come back as ordinary error values for the caller to inspect.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/topocrawl/topocrawl/internal/credentials"
)

// Sentinel errors the traversal engine classifies on.
var (
	// ErrCommandTimeout means the command did not finish within its timeout.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrCommandFailed means the device answered but the command errored,
	// for example a non-zero exit status.
	ErrCommandFailed = errors.New("command failed")
)

// Session is one authenticated connection to one device. All command
// executions for that device run on the same session, and the session is
// closed before the next device is attempted.
type Session interface {
	// Execute runs a single command and returns its combined output. The
	// timeout bounds the whole execution.
	Execute(ctx context.Context, command string, timeout time.Duration) (string, error)

	// Close tears down the session. Calling Close more than once is safe;
	// later calls are no-ops.
	Close() error
}

// Client establishes sessions using a single credential per attempt.
type Client interface {
	Connect(ctx context.Context, addr string, cred credentials.Credential) (Session, error)
}
