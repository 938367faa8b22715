package router

import (
	"testing"

	"github.com/pmolzer/webserv/config"
)

func sampleVHost() *config.ServerConfig {
	idx := "index.html"
	cgiRoot := "/var/www/cgi"
	return &config.ServerConfig{
		Listen:            []config.ListenAddr{{Host: "0.0.0.0", Port: 8080}},
		ServerName:        "example.com",
		Root:              "/var/www/html",
		Index:             "index.html",
		ClientMaxBodySize: 1024,
		ErrorPages:        map[int]string{},
		AllowedMethods:    []config.Method{config.MethodGet},
		Locations: []*config.LocationConfig{
			{Path: "/", AllowedMethods: []config.Method{config.MethodGet}},
			{Path: "/cgi-bin", Root: &cgiRoot, Index: &idx, CGIPass: true, CGIExtension: ".py",
				AllowedMethods: []config.Method{config.MethodGet, config.MethodPost}},
			{Path: "/old", Redirect: &config.Redirect{Status: 301, URL: "/new"}},
		},
	}
}

func TestStripPort(t *testing.T) {
	cases := map[string]string{
		"example.com:8080": "example.com",
		"example.com":       "example.com",
		"[::1]:8080":        "[::1]",
	}
	for in, want := range cases {
		if got := stripPort(in); got != want {
			t.Errorf("stripPort(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRouteLongestPrefixMatch(t *testing.T) {
	vhost := sampleVHost()
	d := Route(vhost, "/cgi-bin/hello.py", config.MethodGet)
	if d.Location == nil || d.Location.Path != "/cgi-bin" {
		t.Fatalf("expected /cgi-bin location match, got %+v", d.Location)
	}
	if d.FSPath != "/var/www/cgi/cgi-bin/hello.py" {
		t.Fatalf("unexpected resolved path: %q", d.FSPath)
	}
}

func TestRouteIndexAppendedOnExactLocationMatch(t *testing.T) {
	vhost := sampleVHost()
	d := Route(vhost, "/cgi-bin", config.MethodGet)
	if d.FSPath != "/var/www/cgi/cgi-bin/index.html" {
		t.Fatalf("unexpected resolved path: %q", d.FSPath)
	}
}

func TestRouteFallsBackToVHostDefaults(t *testing.T) {
	vhost := sampleVHost()
	d := Route(vhost, "/about.html", config.MethodGet)
	if d.Location == nil || d.Location.Path != "/" {
		t.Fatalf("expected root location fallback, got %+v", d.Location)
	}
	if d.FSPath != "/var/www/html/about.html" {
		t.Fatalf("unexpected resolved path: %q", d.FSPath)
	}
}

func TestRouteMethodNotAllowedCarriesAllowHeader(t *testing.T) {
	vhost := sampleVHost()
	d := Route(vhost, "/about.html", config.MethodPost)
	if d.MethodAllowed {
		t.Fatalf("expected POST to be disallowed on root location")
	}
	if len(d.AllowedMethods) != 1 || d.AllowedMethods[0] != config.MethodGet {
		t.Fatalf("unexpected allowed methods: %+v", d.AllowedMethods)
	}
}

func TestRouteRedirectShortCircuits(t *testing.T) {
	vhost := sampleVHost()
	d := Route(vhost, "/old", config.MethodGet)
	if !d.IsRedirect || d.RedirectStatus != 301 || d.RedirectURL != "/new" {
		t.Fatalf("expected redirect decision, got %+v", d)
	}
	if d.FSPath != "" {
		t.Fatalf("redirect must not resolve a filesystem path, got %q", d.FSPath)
	}
}

func TestSelectVHostNoMatchReturnsNil(t *testing.T) {
	tree := &config.Tree{Servers: []*config.ServerConfig{sampleVHost()}}
	if got := SelectVHost(tree, 8080, "not-configured.com"); got != nil {
		t.Fatalf("expected nil vhost for unmatched Host header, got %+v", got)
	}
	if got := SelectVHost(tree, 8080, "Example.COM"); got == nil {
		t.Fatalf("expected case-insensitive server_name match to succeed")
	}
}
