// SSH client dialing for C14's wire protocol: resolves host aliases
// from the user's ssh_config, authenticates against a running
// ssh-agent by default, verifies the server's host key against the
// user's known_hosts database, and optionally dials through a SOCKS5
// proxy. Grounded on go-git's plumbing/transport/ssh package (common.go's
// dial/host-resolution shape, auth_method.go's agent-based default
// auth) adapted to this module's Conn/Endpoint types instead of
// go-git's own transport.Command abstraction.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	osuser "os/user"
	"path/filepath"

	"github.com/kevinburke/ssh_config"
	"github.com/skeema/knownhosts"
	sshagent "github.com/xanzy/ssh-agent"
	"golang.org/x/crypto/ssh"
	"golang.org/x/net/proxy"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/internal/trace"
)

// Service names the two git-over-SSH commands a server recognizes.
const (
	ServiceUploadPack  = "git-upload-pack"
	ServiceReceivePack = "git-receive-pack"
)

// DefaultSSHUser is used when neither the endpoint nor ssh_config name a
// user and the current OS user cannot be looked up, matching every common
// git host's convention of a shared "git" account.
const DefaultSSHUser = "git"

// SSHDial opens conn to service (one of the Service constants) on ep's
// repository path, per SPEC_FULL.md's C14 domain stack: kevinburke/
// ssh_config resolves Hostname/Port/User aliases, xanzy/ssh-agent
// supplies the default signer set, skeema/knownhosts verifies the host
// key, and golang.org/x/net/proxy dials through SOCKS5 when configured
// in the environment. Pass a non-nil config to override any of this
// (e.g. a caller-supplied private key or an explicit HostKeyCallback).
func SSHDial(ctx context.Context, ep *Endpoint, service string, config *ssh.ClientConfig) (Conn, error) {
	if ep.Scheme != SchemeSSH {
		return nil, core.New(core.KindPrecondition, "ssh dial requires an ssh endpoint").WithPath(ep.Path)
	}

	host, port := resolveSSHHostPort(ep)
	addr := net.JoinHostPort(host, port)

	cfg := config
	if cfg == nil {
		built, err := defaultSSHClientConfig(ep, addr)
		if err != nil {
			return nil, core.Wrap(core.KindIO, "build default ssh client config", err)
		}
		cfg = built
	}

	trace.SSH.Printf("ssh: dialing %s as user=%s", addr, cfg.User)
	client, err := dialSSH(ctx, addr, cfg)
	if err != nil {
		return nil, core.Wrap(core.KindIO, "ssh dial", err)
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, core.Wrap(core.KindIO, "open ssh session", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, core.Wrap(core.KindIO, "open ssh stdin", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, core.Wrap(core.KindIO, "open ssh stdout", err)
	}

	cmd := fmt.Sprintf("%s '%s'", service, ep.Path)
	if err := session.Start(cmd); err != nil {
		session.Close()
		client.Close()
		return nil, core.Wrap(core.KindIO, "start ssh command "+cmd, err)
	}
	trace.SSH.Printf("ssh: started %q on %s", cmd, addr)

	return &sshConn{session: session, client: client, stdin: stdin, stdout: stdout}, nil
}

// sshConn adapts an *ssh.Session's stdin/stdout pipes plus the owning
// client to the Conn interface the fetch/push state machines expect.
type sshConn struct {
	session *ssh.Session
	client  *ssh.Client
	stdin   io.WriteCloser
	stdout  io.Reader
}

func (c *sshConn) Read(p []byte) (int, error)  { return c.stdout.Read(p) }
func (c *sshConn) Write(p []byte) (int, error) { return c.stdin.Write(p) }

func (c *sshConn) Close() error {
	_ = c.stdin.Close()
	_ = c.session.Close()
	return c.client.Close()
}

func dialSSH(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	dialer := proxy.FromEnvironment()
	var conn net.Conn
	var err error
	if ctxDialer, ok := dialer.(proxy.ContextDialer); ok {
		conn, err = ctxDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func defaultSSHClientConfig(ep *Endpoint, hostWithPort string) (*ssh.ClientConfig, error) {
	user := ep.User
	if user == "" {
		user = sshConfigGet(ep.Host, "User")
	}
	if user == "" {
		if u, err := osuser.Current(); err == nil {
			user = u.Username
		}
	}
	if user == "" {
		user = DefaultSSHUser
	}

	auth, err := defaultSSHAuth()
	if err != nil {
		return nil, err
	}
	hostKeyCallback, algos, err := defaultHostKeyCallback(hostWithPort)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:              user,
		Auth:              []ssh.AuthMethod{auth},
		HostKeyCallback:   hostKeyCallback,
		HostKeyAlgorithms: algos,
	}, nil
}

// defaultSSHAuth asks the running ssh-agent (via SSH_AUTH_SOCK) for its
// signers, the auth method every common git-over-ssh client falls back
// to absent an explicit key.
func defaultSSHAuth() (ssh.AuthMethod, error) {
	agentClient, _, err := sshagent.New()
	if err != nil {
		return nil, core.Wrap(core.KindIO, "connect to ssh-agent", err)
	}
	return ssh.PublicKeysCallback(agentClient.Signers), nil
}

// defaultHostKeyCallback verifies the server's host key against the
// files listed in SSH_KNOWN_HOSTS when it is set, and otherwise against
// ~/.ssh/known_hosts and /etc/ssh/ssh_known_hosts, whichever exist.
func defaultHostKeyCallback(hostWithPort string) (ssh.HostKeyCallback, []string, error) {
	files, err := knownHostsFiles()
	if err != nil {
		return nil, nil, err
	}
	db, err := knownhosts.NewDB(files...)
	if err != nil {
		return nil, nil, err
	}
	return db.HostKeyCallback(), db.HostKeyAlgorithms(hostWithPort), nil
}

func knownHostsFiles() ([]string, error) {
	if env := os.Getenv("SSH_KNOWN_HOSTS"); env != "" {
		return filepathSplitList(env), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	candidates := []string{filepath.Join(home, ".ssh", "known_hosts"), "/etc/ssh/ssh_known_hosts"}
	var present []string
	for _, f := range candidates {
		if _, statErr := os.Stat(f); statErr == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil, core.New(core.KindIO, "no known_hosts file found; set SSH_KNOWN_HOSTS or supply an explicit HostKeyCallback")
	}
	return present, nil
}

func filepathSplitList(s string) []string { return filepath.SplitList(s) }

// resolveSSHHostPort applies kevinburke/ssh_config's Hostname/Port
// aliasing on top of whatever ParseEndpoint parsed directly from the
// remote URL, matching ssh(1)'s own config-file precedence.
func resolveSSHHostPort(ep *Endpoint) (string, string) {
	host, port := ep.Host, ep.Port
	if h := sshConfigGet(ep.Host, "Hostname"); h != "" {
		host = h
	}
	if p := sshConfigGet(ep.Host, "Port"); p != "" {
		port = p
	}
	if port == "" {
		port = "22"
	}
	return host, port
}

func sshConfigGet(alias, key string) string {
	v, err := ssh_config.GetStrict(alias, key)
	if err != nil {
		return ""
	}
	return v
}
