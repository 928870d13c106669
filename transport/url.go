package transport

import (
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/statewalker/vcs-sub002/core"
)

// EndpointScheme names the dial strategy a parsed Endpoint requires.
type EndpointScheme int

const (
	SchemeSSH EndpointScheme = iota
	SchemeGit
	SchemeFile
)

// Endpoint is a parsed remote address in any of the forms this engine's
// transports dial — ssh://, git://, file://, scp-like "user@host:path",
// or a bare local path.
type Endpoint struct {
	Scheme EndpointScheme
	User   string
	Host   string
	Port   string
	Path   string
}

// ParseEndpoint validates and parses a remote URL/path, grounded on
// make-os-kit's attach command validating its remote address with
// govalidator.IsURL before dialing.
func ParseEndpoint(raw string) (*Endpoint, error) {
	switch {
	case strings.HasPrefix(raw, "ssh://"):
		return parseURLEndpoint(raw, SchemeSSH, "22")
	case strings.HasPrefix(raw, "git://"):
		return parseURLEndpoint(raw, SchemeGit, "9418")
	case strings.HasPrefix(raw, "file://"):
		return &Endpoint{Scheme: SchemeFile, Path: strings.TrimPrefix(raw, "file://")}, nil
	case isSCPLike(raw):
		return parseSCPEndpoint(raw)
	default:
		return &Endpoint{Scheme: SchemeFile, Path: raw}, nil
	}
}

func parseURLEndpoint(raw string, scheme EndpointScheme, defaultPort string) (*Endpoint, error) {
	if !govalidator.IsURL(raw) {
		return nil, core.New(core.KindPrecondition, "invalid remote URL").WithPath(raw)
	}
	rest := raw
	switch scheme {
	case SchemeSSH:
		rest = strings.TrimPrefix(rest, "ssh://")
	case SchemeGit:
		rest = strings.TrimPrefix(rest, "git://")
	}

	user := ""
	if at := strings.IndexByte(rest, '@'); at >= 0 {
		user = rest[:at]
		rest = rest[at+1:]
	}

	hostport, path, ok := strings.Cut(rest, "/")
	if !ok {
		return nil, core.New(core.KindPrecondition, "remote URL missing path").WithPath(raw)
	}
	host, port := hostport, defaultPort
	if h, p, ok := strings.Cut(hostport, ":"); ok {
		host, port = h, p
	}

	return &Endpoint{Scheme: scheme, User: user, Host: host, Port: port, Path: "/" + path}, nil
}

// isSCPLike reports whether raw looks like git's scp shorthand,
// "[user@]host:path": it has a ':' that is not the first character, with
// no '/' or '\' before it. The part after ':' is not inspected, and a
// drive-letter path such as "C:\repo" also matches.
func isSCPLike(raw string) bool {
	colon := strings.IndexByte(raw, ':')
	if colon <= 0 || strings.ContainsAny(raw[:colon], `\/`) {
		return false
	}
	return true
}

func parseSCPEndpoint(raw string) (*Endpoint, error) {
	hostpart, path, ok := strings.Cut(raw, ":")
	if !ok || path == "" {
		return nil, core.New(core.KindPrecondition, "malformed scp-like remote").WithPath(raw)
	}
	user := ""
	host := hostpart
	if at := strings.IndexByte(hostpart, '@'); at >= 0 {
		user, host = hostpart[:at], hostpart[at+1:]
	}
	if host == "" {
		return nil, core.New(core.KindPrecondition, "scp-like remote missing host").WithPath(raw)
	}
	return &Endpoint{Scheme: SchemeSSH, User: user, Host: host, Port: "22", Path: path}, nil
}
