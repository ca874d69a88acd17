package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/masterzen/winrm"

	"github.com/topocrawl/topocrawl/internal/credentials"
)

// WinRMClient opens WinRM sessions, for topologies where a Windows host
// carries the neighbor information (for example Hyper-V switches queried via
// PowerShell). Credentials with only a private key cannot be used here.
type WinRMClient struct {
	port           int
	useHTTPS       bool
	domain         string
	connectTimeout time.Duration
	logger         *slog.Logger
}

// NewWinRMClient creates a WinRM transport. With a non-empty domain the
// client authenticates over NTLM, otherwise Basic.
func NewWinRMClient(port int, useHTTPS bool, domain string, connectTimeout time.Duration, logger *slog.Logger) *WinRMClient {
	if port <= 0 {
		if useHTTPS {
			port = 5986
		} else {
			port = 5985
		}
	}
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WinRMClient{
		port:           port,
		useHTTPS:       useHTTPS,
		domain:         domain,
		connectTimeout: connectTimeout,
		logger:         logger,
	}
}

// Connect builds a client for addr and validates the credential by opening a
// shell. WinRM itself is per-request, so the shell only proves the login
// works before the engine commits to this credential.
func (c *WinRMClient) Connect(ctx context.Context, addr string, cred credentials.Credential) (Session, error) {
	if cred.Password == "" {
		return nil, fmt.Errorf("credential %s: winrm requires a password", cred.Name)
	}

	endpoint := winrm.NewEndpoint(
		addr,
		c.port,
		c.useHTTPS,
		true, // skip certificate verification, same reasoning as SSH host keys
		nil,
		nil,
		nil,
		c.connectTimeout,
	)

	username := cred.Username
	var client *winrm.Client
	var err error
	if c.domain != "" {
		params := winrm.DefaultParameters
		params.TransportDecorator = func() winrm.Transporter {
			return &winrm.ClientNTLM{}
		}
		client, err = winrm.NewClientWithParameters(
			endpoint,
			fmt.Sprintf("%s\\%s", c.domain, username),
			cred.Password,
			params,
		)
	} else {
		client, err = winrm.NewClient(endpoint, username, cred.Password)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create winrm client for %s: %w", addr, err)
	}

	shell, err := client.CreateShell()
	if err != nil {
		return nil, fmt.Errorf("winrm login to %s failed: %w", addr, err)
	}

	c.logger.DebugContext(ctx, "WinRM session established",
		slog.String("addr", addr),
		slog.String("credential", cred.Name),
	)

	return &winrmSession{
		client: client,
		shell:  shell,
		addr:   addr,
	}, nil
}

type winrmSession struct {
	client *winrm.Client
	shell  *winrm.Shell
	addr   string

	closeOnce sync.Once
	closeErr  error
}

// Execute runs one command. Output combines stdout and stderr the way an
// interactive console would show them.
func (s *winrmSession) Execute(ctx context.Context, command string, timeout time.Duration) (string, error) {
	type execResult struct {
		stdout   string
		stderr   string
		exitCode int
		err      error
	}
	done := make(chan execResult, 1)
	go func() {
		stdout, stderr, exitCode, err := s.client.RunWithString(command, "")
		done <- execResult{stdout: stdout, stderr: stderr, exitCode: exitCode, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("%w: %v", ErrCommandFailed, res.err)
		}
		output := res.stdout
		if res.stderr != "" {
			output = strings.TrimRight(output, "\n") + "\n" + res.stderr
		}
		if res.exitCode != 0 {
			return output, fmt.Errorf("%w: exit status %d", ErrCommandFailed, res.exitCode)
		}
		return output, nil

	case <-time.After(timeout):
		return "", fmt.Errorf("%w: %q after %s", ErrCommandTimeout, command, timeout)

	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close releases the validation shell. Only the first call does any work.
func (s *winrmSession) Close() error {
	s.closeOnce.Do(func() {
		if s.shell != nil {
			s.closeErr = s.shell.Close()
		}
	})
	return s.closeErr
}
