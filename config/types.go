// Package config holds the in-memory, read-only representation of the
// virtual hosts and location blocks that the router consults, plus the
// nginx-like parser that builds it from a configuration file.
package config

import "strings"

// Method is one of the three request methods this server understands.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodDelete Method = "DELETE"
)

// DefaultClientMaxBodySize is used when no client_max_body_size directive
// is present anywhere in scope, matching the original implementation's
// 1 MiB default.
const DefaultClientMaxBodySize = 1024 * 1024

// DefaultRoot and DefaultIndex are used when a server block declares
// neither, again matching the original implementation's defaults.
const (
	DefaultRoot  = "html"
	DefaultIndex = "index.html"
)

// ListenAddr is one (host, port) pair a virtual host listens on.
type ListenAddr struct {
	Host string
	Port int
}

func (a ListenAddr) String() string {
	return a.Host + ":" + itoa(a.Port)
}

// Redirect describes the single HTTP redirect a location may declare,
// modeled on the teacher's own config.Redirect (config/config.go).
type Redirect struct {
	Status int // 300-399
	URL    string
}

// LocationConfig is a path-prefix-scoped override of its virtual host's
// defaults, per spec.md §3.
type LocationConfig struct {
	Path           string
	Root           *string
	Index          *string
	AllowedMethods []Method // nil = inherit the virtual host's default
	Autoindex      bool
	CGIPass        bool
	CGIExtension   string
	Redirect       *Redirect // nil = no redirect; at most one per location
}

// EffectiveRoot returns the location's root override, or the virtual
// host's root if unset.
func (l *LocationConfig) EffectiveRoot(vhost *ServerConfig) string {
	if l != nil && l.Root != nil {
		return *l.Root
	}
	return vhost.Root
}

// EffectiveIndex returns the location's index override, or the virtual
// host's index if unset.
func (l *LocationConfig) EffectiveIndex(vhost *ServerConfig) string {
	if l != nil && l.Index != nil {
		return *l.Index
	}
	return vhost.Index
}

// EffectiveAllowedMethods returns the location's allowed-method set, or
// the virtual host's default when the location does not override it.
func (l *LocationConfig) EffectiveAllowedMethods(vhost *ServerConfig) []Method {
	if l != nil && l.AllowedMethods != nil {
		return l.AllowedMethods
	}
	return vhost.AllowedMethods
}

// Allows reports whether m is permitted by the effective method set.
func (l *LocationConfig) Allows(vhost *ServerConfig, m Method) bool {
	for _, allowed := range l.EffectiveAllowedMethods(vhost) {
		if allowed == m {
			return true
		}
	}
	return false
}

// ServerConfig is one virtual host, per spec.md §3.
type ServerConfig struct {
	Listen            []ListenAddr
	ServerName        string
	Root              string
	Index             string
	ClientMaxBodySize int64
	ErrorPages        map[int]string
	AllowedMethods    []Method
	// Locations is ordered as declared; LocationFor performs the
	// longest-prefix scan over it rather than relying on map order.
	Locations []*LocationConfig
}

// LocationFor selects the location whose path is the longest prefix of
// requestPath, or nil if none match (caller falls back to vhost
// defaults), per spec.md §4.4.
func (s *ServerConfig) LocationFor(requestPath string) *LocationConfig {
	var best *LocationConfig
	for _, loc := range s.Locations {
		if !strings.HasPrefix(requestPath, loc.Path) {
			continue
		}
		if best == nil || len(loc.Path) > len(best.Path) {
			best = loc
		}
	}
	return best
}

// ListensOn reports whether this virtual host has a listener bound to
// port, regardless of host.
func (s *ServerConfig) ListensOn(port int) bool {
	for _, l := range s.Listen {
		if l.Port == port {
			return true
		}
	}
	return false
}

// ErrorPage returns the configured error page path for a status code
// and whether one was configured.
func (s *ServerConfig) ErrorPage(status int) (string, bool) {
	p, ok := s.ErrorPages[status]
	return p, ok
}

// Tree is the immutable, in-memory configuration root: a top-level
// default client_max_body_size plus the list of virtual hosts, per
// spec.md §3/§9 ("collapse into one tree whose root owns a list of
// ServerConfig").
type Tree struct {
	ClientMaxBodySize int64
	Servers           []*ServerConfig
}

// ListenAddrs enumerates every distinct (host, port) pair across all
// virtual hosts, for the caller to bind one listening socket each,
// per spec.md §4.2(a). Duplicates (same host and port declared by more
// than one server block) are collapsed.
func (t *Tree) ListenAddrs() []ListenAddr {
	seen := make(map[ListenAddr]bool)
	var out []ListenAddr
	for _, s := range t.Servers {
		for _, l := range s.Listen {
			if seen[l] {
				continue
			}
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

// SelectVHost implements spec.md §4.4's virtual-host selection: given
// the port a connection was accepted on and the request's Host header
// (already stripped of any :port suffix), find a server block listening
// on that port whose server_name matches case-insensitively. Returns nil
// if none match.
func (t *Tree) SelectVHost(port int, host string) *ServerConfig {
	for _, s := range t.Servers {
		if !s.ListensOn(port) {
			continue
		}
		if strings.EqualFold(s.ServerName, host) {
			return s
		}
	}
	return nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
