// Package router maps an accepted connection's listening port together
// with a parsed request's Host header and path to a virtual host, a
// location, an absolute filesystem target, and the effective method
// policy, per spec.md §4.4.
package router

import (
	"path"
	"strings"

	"github.com/pmolzer/webserv/config"
)

// Decision is the outcome of routing one request.
type Decision struct {
	VHost    *config.ServerConfig
	Location *config.LocationConfig // nil when the vhost's own defaults apply

	// FSPath is the resolved absolute filesystem target, empty when
	// Redirect is set (redirects short-circuit path resolution).
	FSPath string

	// IsRedirect is set, and RedirectStatus/RedirectURL hold the status
	// code and target URL, when the matched location redirects this
	// request (only a location can declare a redirect).
	RedirectStatus int
	RedirectURL    string
	IsRedirect     bool

	// MethodAllowed is false when the request's method is outside the
	// effective allowed set; AllowedMethods is then the list the
	// response builder must put in the Allow: header.
	MethodAllowed  bool
	AllowedMethods []config.Method
}

// SelectVHost strips any :port suffix from host and returns the matching
// virtual host; nil means no virtual host matched, so the caller answers
// 400, per spec.md §4.4.
func SelectVHost(tree *config.Tree, port int, host string) *config.ServerConfig {
	host = stripPort(host)
	return tree.SelectVHost(port, host)
}

// stripPort removes a trailing ":port" from a Host header value, per
// spec.md §4.4 ("host portion only, port stripped").
func stripPort(host string) string {
	if !strings.HasPrefix(host, "[") && strings.Count(host, ":") > 1 {
		return host // unbracketed IPv6 literal: no port suffix to strip
	}
	if idx := strings.LastIndexByte(host, ':'); idx >= 0 {
		// only strip when what follows is all digits, so IPv6 literals
		// without a bracketed form are left alone rather than mangled.
		rest := host[idx+1:]
		allDigits := rest != ""
		for i := 0; i < len(rest); i++ {
			if rest[i] < '0' || rest[i] > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			return host[:idx]
		}
	}
	return host
}

// Route performs location selection, path resolution, and method policy
// for requestPath/method against the already-selected vhost, per
// spec.md §4.4.
func Route(vhost *config.ServerConfig, requestPath string, method config.Method) Decision {
	loc := vhost.LocationFor(requestPath)

	if code, url, ok := redirectFor(loc, requestPath); ok {
		return Decision{
			VHost:          vhost,
			Location:       loc,
			IsRedirect:     true,
			RedirectStatus: code,
			RedirectURL:    url,
			MethodAllowed:  true,
		}
	}

	allowed := effectiveAllowedMethods(vhost, loc)
	methodAllowed := methodIn(allowed, method)

	fsPath := resolvePath(vhost, loc, requestPath)

	return Decision{
		VHost:          vhost,
		Location:       loc,
		FSPath:         fsPath,
		MethodAllowed:  methodAllowed,
		AllowedMethods: allowed,
	}
}

// redirectFor reports the redirect configured for requestPath on loc,
// if any. Only locations (never vhost defaults) carry redirects, per
// spec.md §3; the data model enforces at most one per location.
func redirectFor(loc *config.LocationConfig, requestPath string) (code int, url string, ok bool) {
	if loc == nil || loc.Redirect == nil {
		return 0, "", false
	}
	return loc.Redirect.Status, loc.Redirect.URL, true
}

func effectiveAllowedMethods(vhost *config.ServerConfig, loc *config.LocationConfig) []config.Method {
	if loc != nil && loc.AllowedMethods != nil {
		return loc.AllowedMethods
	}
	return vhost.AllowedMethods
}

func methodIn(methods []config.Method, m config.Method) bool {
	for _, allowed := range methods {
		if allowed == m {
			return true
		}
	}
	return false
}

// resolvePath implements spec.md §4.4's path-resolution rule: if the
// request path equals the matched location's path exactly, the target
// gains the effective index filename; otherwise the request path is
// appended verbatim to the effective root.
func resolvePath(vhost *config.ServerConfig, loc *config.LocationConfig, requestPath string) string {
	root := loc.EffectiveRoot(vhost)
	index := loc.EffectiveIndex(vhost)

	if loc != nil && requestPath == loc.Path {
		return path.Join(root, requestPath, index)
	}
	return path.Join(root, requestPath)
}
