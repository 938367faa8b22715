package webservapp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.conf"), zap.NewNop())
	require.Error(t, err)
}

func TestLoadAcceptsMinimalConfig(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "webserv.conf")
	conf := `
server {
    listen 8080;
    server_name s;
    root www;
    index index.html;
}
`
	require.NoError(t, os.WriteFile(confPath, []byte(conf), 0o644))

	app, err := Load(confPath, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, app)
	require.Len(t, app.tree.Servers, 1)
}
