package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/soyeahso/chatdesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "silent"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("TRUE"))
	assert.Equal(t, false, parseValue("false"))
	assert.Equal(t, 18790, parseValue("18790"))
	assert.Equal(t, 1.5, parseValue("1.5"))
	assert.Equal(t, "10.0.0.1", parseValue("10.0.0.1"))
	assert.Equal(t, "localhost:6379", parseValue("localhost:6379"))
}

func TestConfigSetGetUnset(t *testing.T) {
	t.Setenv("CHATDESK_HOME", t.TempDir())
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")

	out, err := run(t, "--config", cfgPath, "config", "set", "gateway.port", "19000")
	require.NoError(t, err)
	assert.Contains(t, out, "Set gateway.port = 19000")

	out, err = run(t, "--config", cfgPath, "config", "get", "gateway.port")
	require.NoError(t, err)
	assert.Equal(t, "19000\n", out)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 19000, cfg.Gateway.Port)

	_, err = run(t, "--config", cfgPath, "config", "set", "redis.addr", "10.0.0.5:6379")
	require.NoError(t, err)
	out, err = run(t, "--config", cfgPath, "config", "get", "redis")
	require.NoError(t, err)
	assert.Contains(t, out, "10.0.0.5:6379")

	_, err = run(t, "--config", cfgPath, "config", "unset", "gateway.port")
	require.NoError(t, err)
	_, err = run(t, "--config", cfgPath, "config", "get", "gateway.port")
	assert.Error(t, err)

	out, err = run(t, "--config", cfgPath, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, cfgPath+"\n", out)
}

func TestConfigGetMasksCredentials(t *testing.T) {
	t.Setenv("CHATDESK_HOME", t.TempDir())
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")

	out, err := run(t, "--config", cfgPath, "config", "set", "redis.password", "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")

	out, err = run(t, "--config", cfgPath, "config", "get", "redis")
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "********")

	out, err = run(t, "--config", cfgPath, "config", "get", "redis.password", "--reveal")
	require.NoError(t, err)
	assert.Equal(t, "hunter2\n", out)

	_, err = run(t, "--config", cfgPath, "config", "set", "plugins.x", "1")
	assert.Error(t, err)
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "chatdesk "))
}

func TestStatusCmd_ProbesServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.UserAgent(), "chatdesk/"))
		w.Write([]byte(`{"status":"ok","version":"dev","clients":3}`))
	}))
	defer ts.Close()

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	home := t.TempDir()
	t.Setenv("CHATDESK_HOME", home)
	cfgPath := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("gateway:\n  port: "+strconv.Itoa(port)+"\n"), 0o600))

	out, err := run(t, "status", "--timeout", (2 * time.Second).String())
	require.NoError(t, err)
	assert.Contains(t, out, "port="+strconv.Itoa(port))
	assert.Contains(t, out, "Redis:   disabled")
	assert.Contains(t, out, "Server:  ok version=dev clients=3")
}

func TestStatusCmd_ServerDown(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CHATDESK_HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte("gateway:\n  port: 1\n"), 0o600))

	out, err := run(t, "status", "--timeout", "200ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Server:  not reachable")
}
