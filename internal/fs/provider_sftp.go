package fs

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/justyntemme/razorlist/internal/debug"
	"github.com/justyntemme/razorlist/internal/model"
)

// SFTPLocation is a parsed sftp:// path.
type SFTPLocation struct {
	User string
	Host string
	Port int
	Path string // remote path; "." is the login directory
}

// Addr returns host:port.
func (l SFTPLocation) Addr() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// URL renders the location for a remote path.
func (l SFTPLocation) URL(remote string) string {
	host := l.Host
	if l.Port != 22 {
		host = l.Addr()
	}
	if remote == "." || remote == "" {
		return fmt.Sprintf("sftp://%s@%s", l.User, host)
	}
	// An absolute remote path renders with a double slash
	return fmt.Sprintf("sftp://%s@%s/%s", l.User, host, remote)
}

// ParseSFTP parses sftp://user@host[:port]/path.
//
//	sftp://user@host/path  → relative to the login directory
//	sftp://user@host//path → absolute /path
//	sftp://user@host       → login directory
func ParseSFTP(raw string, defaultPort int) (SFTPLocation, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return SFTPLocation{}, fmt.Errorf("invalid SFTP URL: %w", err)
	}
	if u.Scheme != SchemeSFTP {
		return SFTPLocation{}, fmt.Errorf("expected sftp:// scheme, got %s://", u.Scheme)
	}
	if u.User == nil || u.User.Username() == "" {
		return SFTPLocation{}, fmt.Errorf("SFTP URL must include username (sftp://user@host/path)")
	}
	if u.Hostname() == "" {
		return SFTPLocation{}, fmt.Errorf("SFTP URL must include host")
	}

	if defaultPort <= 0 {
		defaultPort = 22
	}
	port := defaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return SFTPLocation{}, fmt.Errorf("invalid port number: %w", err)
		}
	}

	remote := u.Path
	switch {
	case remote == "" || remote == "/":
		remote = "."
	case strings.HasPrefix(remote, "//"):
		remote = path.Clean(remote[1:])
	default:
		remote = path.Clean(strings.TrimPrefix(remote, "/"))
	}

	return SFTPLocation{User: u.User.Username(), Host: u.Hostname(), Port: port, Path: remote}, nil
}

// SFTPProvider serves sftp:// paths. Connections are opened lazily and
// kept per user@host:port until Close.
type SFTPProvider struct {
	DefaultPort int

	mu      sync.Mutex
	clients map[string]*sftpConn
}

type sftpConn struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

// NewSFTPProvider creates an sftp provider.
func NewSFTPProvider(defaultPort int) *SFTPProvider {
	return &SFTPProvider{DefaultPort: defaultPort, clients: make(map[string]*sftpConn)}
}

func (p *SFTPProvider) client(loc SFTPLocation) (*sftp.Client, error) {
	key := loc.User + "@" + loc.Addr()

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c.sftp, nil
	}

	auth, err := sshAuthMethods()
	if err != nil {
		return nil, err
	}
	config := &ssh.ClientConfig{
		User:            loc.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback(),
	}
	debug.Log(debug.SOURCE, "sftp: connecting to %s", key)
	sshClient, err := ssh.Dial("tcp", loc.Addr(), config)
	if err != nil {
		return nil, NewError(DeviceUnavailable, loc.URL(loc.Path), fmt.Errorf("SSH connection failed: %w", err))
	}
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("SFTP session creation failed: %w", err)
	}
	p.clients[key] = &sftpConn{ssh: sshClient, sftp: sftpClient}
	return sftpClient, nil
}

func sshAuthMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		var signers []ssh.Signer
		for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
			data, err := os.ReadFile(filepath.Join(home, ".ssh", name))
			if err != nil {
				continue
			}
			signer, err := ssh.ParsePrivateKey(data)
			if err != nil {
				continue
			}
			signers = append(signers, signer)
		}
		if len(signers) > 0 {
			methods = append(methods, ssh.PublicKeys(signers...))
		}
	}

	if len(methods) == 0 {
		return nil, NewError(Unauthorized, "sftp", fmt.Errorf("no SSH authentication methods available (tried SSH agent and default keys)"))
	}
	return methods, nil
}

func hostKeyCallback() ssh.HostKeyCallback {
	home, err := os.UserHomeDir()
	if err == nil {
		if cb, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts")); err == nil {
			return cb
		}
	}
	debug.Log(debug.SOURCE, "sftp: no known_hosts file, host keys are not verified")
	return ssh.InsecureIgnoreHostKey()
}

type sftpFolder struct {
	path    string
	entries []model.RawEntry
}

func (f *sftpFolder) Path() string { return f.path }

func (f *sftpFolder) Enumerate(ctx context.Context) (EntryStream, error) {
	return &sliceStream{entries: f.entries}, nil
}

// GetFolder lists a remote directory.
func (p *SFTPProvider) GetFolder(ctx context.Context, raw string) (Folder, error) {
	loc, err := ParseSFTP(raw, p.DefaultPort)
	if err != nil {
		return nil, NewError(UnsupportedPath, raw, err)
	}
	c, err := p.client(loc)
	if err != nil {
		return nil, err
	}

	infos, err := c.ReadDir(loc.Path)
	if err != nil {
		return nil, MapError(raw, err)
	}
	entries := make([]model.RawEntry, 0, len(infos))
	for _, info := range infos {
		remote := path.Join(loc.Path, info.Name())
		entries = append(entries, model.RawEntry{
			Name:      info.Name(),
			Path:      loc.URL(remote),
			IsDir:     info.IsDir(),
			Size:      info.Size(),
			Mode:      info.Mode(),
			ModTime:   info.ModTime(),
			IsSymlink: info.Mode()&os.ModeSymlink != 0,
			Source:    model.SourceStorage,
		})
	}
	return &sftpFolder{path: raw, entries: entries}, nil
}

// GetFile stats a remote entry.
func (p *SFTPProvider) GetFile(ctx context.Context, raw string) (model.RawEntry, error) {
	loc, err := ParseSFTP(raw, p.DefaultPort)
	if err != nil {
		return model.RawEntry{}, NewError(UnsupportedPath, raw, err)
	}
	c, err := p.client(loc)
	if err != nil {
		return model.RawEntry{}, err
	}
	info, err := c.Lstat(loc.Path)
	if err != nil {
		return model.RawEntry{}, MapError(raw, err)
	}
	return model.RawEntry{
		Name:      path.Base(loc.Path),
		Path:      raw,
		IsDir:     info.IsDir(),
		Size:      info.Size(),
		Mode:      info.Mode(),
		ModTime:   info.ModTime(),
		IsSymlink: info.Mode()&os.ModeSymlink != 0,
		Source:    model.SourceStorage,
	}, nil
}

// Close closes all open connections.
func (p *SFTPProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for key, c := range p.clients {
		if err := c.sftp.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := c.ssh.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.clients, key)
	}
	return firstErr
}
