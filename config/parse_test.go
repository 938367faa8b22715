package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConf(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "webserv.conf")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseLocationRedirect(t *testing.T) {
	path := writeConf(t, `
server {
    listen 8080;
    server_name s;
    root www;
    index index.html;

    location /old {
        redirect 301 /new;
    }
}
`)

	tree, err := Parse(path, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	loc := tree.Servers[0].Locations[0]
	if loc.Redirect == nil || loc.Redirect.Status != 301 || loc.Redirect.URL != "/new" {
		t.Fatalf("unexpected redirect: %+v", loc.Redirect)
	}
}

func TestParseLocationRejectsSecondRedirect(t *testing.T) {
	path := writeConf(t, `
server {
    listen 8080;
    server_name s;
    root www;
    index index.html;

    location /old {
        redirect 301 /new;
        redirect 302 /other;
    }
}
`)

	if _, err := Parse(path, nil); err == nil {
		t.Fatal("expected an error for a second redirect directive in one location")
	}
}
