package cvs

import (
	"fmt"
	"strconv"
	"strings"
)

// Root is a parsed CVSROOT such as :pserver:anon@cvs.example.org:2401/cvsroot.
type Root struct {
	Method     string
	User       string
	Host       string
	Port       int
	Repository string
}

// ParseRoot parses the common CVSROOT forms: :method:[user[:password]@]host[:[port]]/path,
// [user@]host:/path and a bare local /path.
func ParseRoot(s string) (Root, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Root{}, fmt.Errorf("empty CVSROOT")
	}

	var root Root
	rest := raw
	if strings.HasPrefix(rest, ":") {
		end := strings.Index(rest[1:], ":")
		if end < 0 {
			return Root{}, fmt.Errorf("CVSROOT %q: unterminated access method", raw)
		}
		root.Method = strings.ToLower(rest[1 : end+1])
		rest = rest[end+2:]
	}

	if strings.HasPrefix(rest, "/") {
		if root.Method == "" {
			root.Method = "local"
		}
		root.Repository = cleanRepository(rest)
		return root, nil
	}

	authority := rest
	if slash := strings.Index(rest, "/"); slash >= 0 {
		authority = rest[:slash]
	}
	if at := strings.LastIndex(authority, "@"); at >= 0 {
		user := rest[:at]
		if colon := strings.Index(user, ":"); colon >= 0 {
			user = user[:colon]
		}
		root.User = user
		rest = rest[at+1:]
	}

	slash := strings.Index(rest, "/")
	if slash < 0 {
		return Root{}, fmt.Errorf("CVSROOT %q: missing repository path", raw)
	}
	hostPort := strings.TrimSuffix(rest[:slash], ":")
	root.Repository = cleanRepository(rest[slash:])

	if colon := strings.Index(hostPort, ":"); colon >= 0 {
		portText := hostPort[colon+1:]
		hostPort = hostPort[:colon]
		if portText != "" {
			port, err := strconv.Atoi(portText)
			if err != nil {
				return Root{}, fmt.Errorf("CVSROOT %q: invalid port %q", raw, portText)
			}
			root.Port = port
		}
	}
	if hostPort == "" {
		return Root{}, fmt.Errorf("CVSROOT %q: missing host", raw)
	}
	root.Host = strings.ToLower(hostPort)
	if root.Method == "" {
		root.Method = "ext"
	}
	return root, nil
}

// Identity names the physical repository, ignoring access method and credentials.
func (r Root) Identity() string {
	if r.Host == "" {
		return r.Repository
	}
	if r.Port != 0 {
		return fmt.Sprintf("%s:%d%s", r.Host, r.Port, r.Repository)
	}
	return r.Host + ":" + r.Repository
}

func cleanRepository(p string) string {
	p = strings.TrimSpace(p)
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
