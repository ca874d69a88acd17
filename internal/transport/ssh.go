package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/topocrawl/topocrawl/internal/credentials"
)

// SSHClient opens SSH sessions on network devices.
type SSHClient struct {
	port           int
	connectTimeout time.Duration
	logger         *slog.Logger
}

// NewSSHClient creates an SSH transport. The connect timeout bounds both the
// TCP dial and the SSH handshake.
func NewSSHClient(port int, connectTimeout time.Duration, logger *slog.Logger) *SSHClient {
	if port <= 0 {
		port = 22
	}
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SSHClient{
		port:           port,
		connectTimeout: connectTimeout,
		logger:         logger,
	}
}

// Connect dials addr and authenticates with a single credential. A failure
// here, whether network or authentication, means this credential did not
// work; the caller decides whether to try the next one.
func (c *SSHClient) Connect(ctx context.Context, addr string, cred credentials.Credential) (Session, error) {
	config, err := buildSSHConfig(cred)
	if err != nil {
		return nil, err
	}
	config.Timeout = c.connectTimeout

	target := net.JoinHostPort(addr, strconv.Itoa(c.port))

	dialer := &net.Dialer{Timeout: c.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", target, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, target, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", target, err)
	}

	c.logger.DebugContext(ctx, "SSH session established",
		slog.String("addr", addr),
		slog.String("credential", cred.Name),
	)

	return &sshSession{
		client: ssh.NewClient(sshConn, chans, reqs),
		addr:   addr,
		logger: c.logger,
	}, nil
}

// buildSSHConfig assembles auth methods from a credential. Password auth is
// listed before key auth when both are present.
func buildSSHConfig(cred credentials.Credential) (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod

	if cred.Password != "" {
		methods = append(methods, ssh.Password(cred.Password))
	}

	if cred.PrivateKey != "" {
		var signer ssh.Signer
		var err error
		if cred.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(cred.PrivateKey), []byte(cred.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(cred.PrivateKey))
		}
		if err != nil {
			return nil, fmt.Errorf("credential %s: failed to parse private key: %w", cred.Name, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("credential %s: no authentication method (password or private_key required)", cred.Name)
	}

	return &ssh.ClientConfig{
		User: cred.Username,
		Auth: methods,
		// Discovery walks devices it has never seen, so there is no known
		// hosts database to verify against.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}, nil
}

type sshSession struct {
	client *ssh.Client
	addr   string
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Execute runs one command on a fresh exec channel of the session.
func (s *sshSession) Execute(ctx context.Context, command string, timeout time.Duration) (string, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("%w: failed to open channel: %v", ErrCommandFailed, err)
	}
	defer session.Close()

	type execResult struct {
		output []byte
		err    error
	}
	done := make(chan execResult, 1)
	go func() {
		output, err := session.CombinedOutput(command)
		done <- execResult{output: output, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if exitErr, ok := res.err.(*ssh.ExitError); ok {
				return string(res.output), fmt.Errorf("%w: exit status %d", ErrCommandFailed, exitErr.ExitStatus())
			}
			return "", fmt.Errorf("%w: %v", ErrCommandFailed, res.err)
		}
		return string(res.output), nil

	case <-time.After(timeout):
		session.Signal(ssh.SIGKILL)
		return "", fmt.Errorf("%w: %q after %s", ErrCommandTimeout, command, timeout)

	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return "", ctx.Err()
	}
}

// Close shuts the underlying connection down. Only the first call does any
// work.
func (s *sshSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}
