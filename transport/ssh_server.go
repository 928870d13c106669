package transport

import (
	"strings"

	gssh "github.com/gliderlabs/ssh"

	"github.com/statewalker/vcs-sub002/core"
	"github.com/statewalker/vcs-sub002/internal/trace"
)

// ServiceHandler handles one accepted git-upload-pack/git-receive-pack
// invocation over an already-authenticated SSH session: service is one
// of the Service constants, path the repository argument the client
// sent, and conn the session itself adapted to the Conn interface
// Fetch/Push/ListRefs already speak.
type ServiceHandler func(service, path string, conn Conn) error

// Server is the reference SSH server transport SPEC_FULL.md's domain
// stack calls for: gliderlabs/ssh owns the protocol/session plumbing
// (key exchange, auth, channel multiplexing); this type only recognizes
// the two git service commands and dispatches each session to handler.
// It is a minimal reference implementation, not a hardened git-daemon
// replacement — auth policy (PublicKeyHandler, PasswordHandler, ...) is
// entirely the caller's to configure via SetOption before ListenAndServe.
type Server struct {
	srv     gssh.Server
	handler ServiceHandler
}

// NewServer builds a Server listening on addr, dispatching every
// accepted session running one of the two recognized git commands to
// handler. Additional gliderlabs/ssh options (host key, auth handlers)
// may be supplied via opts.
func NewServer(addr string, handler ServiceHandler, opts ...gssh.Option) (*Server, error) {
	s := &Server{handler: handler}
	s.srv = gssh.Server{Addr: addr, Handler: s.handleSession}
	for _, opt := range opts {
		if err := s.srv.SetOption(opt); err != nil {
			return nil, core.Wrap(core.KindIO, "configure ssh server option", err)
		}
	}
	return s, nil
}

// ListenAndServe blocks, accepting sessions until the listener fails or
// Close is called.
func (s *Server) ListenAndServe() error { return s.srv.ListenAndServe() }

// Close stops accepting new connections.
func (s *Server) Close() error { return s.srv.Close() }

func (s *Server) handleSession(sess gssh.Session) {
	cmd := sess.Command()
	if len(cmd) == 0 {
		_, _ = sess.Stderr().Write([]byte("no command given\n"))
		_ = sess.Exit(1)
		return
	}

	service := cmd[0]
	if service != ServiceUploadPack && service != ServiceReceivePack {
		_, _ = sess.Stderr().Write([]byte("unsupported service: " + service + "\n"))
		_ = sess.Exit(1)
		return
	}
	path := strings.Trim(strings.Join(cmd[1:], " "), "'")

	trace.SSH.Printf("ssh: server accepted %s %s from %s", service, path, sess.RemoteAddr())
	if err := s.handler(service, path, sessConn{sess}); err != nil {
		_, _ = sess.Stderr().Write([]byte(err.Error() + "\n"))
		_ = sess.Exit(1)
		return
	}
	_ = sess.Exit(0)
}

// sessConn adapts a gliderlabs/ssh Session's Read/Write to Conn; the
// session's lifecycle is owned by the server loop, so Close is a no-op.
type sessConn struct{ gssh.Session }

func (sessConn) Close() error { return nil }
