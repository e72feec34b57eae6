package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/hayride-dev/hayride-go/contract"
	"github.com/hayride-dev/hayride-go/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig points every path at a temp home and silences console colour.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	home := t.TempDir()
	path := filepath.Join(home, "config.toml")
	body := "[paths]\nhome = \"" + filepath.ToSlash(home) + "\"\n\n" +
		"[features]\nai = false\n\n" +
		"[logging]\nformat = \"json\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, home
}

func hayride(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeWasm(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "tool.wasm")
	mod := testutil.GuestModule(nil, testutil.EchoExport("acme:tool/tool@1.0.0#echo"))
	require.NoError(t, os.WriteFile(path, mod.Encode(), 0o644))
	return path
}

func TestRun_Version(t *testing.T) {
	cfg, _ := writeConfig(t)
	code, out, _ := hayride(t, "-config", cfg, "version")
	assert.Equal(t, 0, code)
	assert.Equal(t, contract.HayrideVersion+"\n", out)
}

func TestRun_Usage(t *testing.T) {
	cfg, _ := writeConfig(t)

	code, _, stderr := hayride(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "usage: hayride")

	code, _, _ = hayride(t, "-config", cfg, "frobnicate")
	assert.Equal(t, 2, code)

	code, _, _ = hayride(t, "-config", cfg, "install", "acme:tool@1.0.0")
	assert.Equal(t, 2, code)

	code, _, _ = hayride(t, "-config", cfg, "run")
	assert.Equal(t, 2, code)
}

func TestRun_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[silo]\nbogus = 1\n"), 0o644))

	code, _, stderr := hayride(t, "-config", path, "list")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown keys")
}

func TestRun_InstallListUninstall(t *testing.T) {
	cfg, home := writeConfig(t)
	wasm := writeWasm(t, t.TempDir())

	code, out, _ := hayride(t, "-config", cfg, "install", "acme:tool@1.0.0", wasm)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "installed acme:tool@1.0.0")
	assert.FileExists(t, filepath.Join(home, "registry", "acme", "tool", "1.0.0", "tool.wasm"))

	code, out, _ = hayride(t, "-config", cfg, "list")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "REFERENCE")
	assert.Contains(t, out, "acme:tool@1.0.0")

	code, _, _ = hayride(t, "-config", cfg, "uninstall", "acme:tool@1.0.0")
	require.Equal(t, 0, code)

	code, out, _ = hayride(t, "-config", cfg, "list")
	require.Equal(t, 0, code)
	assert.NotContains(t, out, "acme:tool")
	assert.NoDirExists(t, filepath.Join(home, "registry", "acme"))
}

func TestRun_InstallWithManifest(t *testing.T) {
	cfg, _ := writeConfig(t)
	dir := t.TempDir()
	wasm := writeWasm(t, dir)
	manifest := filepath.Join(dir, "component.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(
		"namespace: acme\nname: tool\nversion: 1.0.0\nworld: tool\n"), 0o644))

	code, _, _ := hayride(t, "-config", cfg, "install", "-manifest", manifest, "acme:tool@1.0.0", wasm)
	require.Equal(t, 0, code)

	_, out, _ := hayride(t, "-config", cfg, "list")
	assert.Contains(t, out, "tool")
}

func TestRun_CallComponent(t *testing.T) {
	cfg, _ := writeConfig(t)
	wasm := writeWasm(t, t.TempDir())
	code, _, _ := hayride(t, "-config", cfg, "install", "acme:tool@1.0.0", wasm)
	require.Equal(t, 0, code)

	code, out, stderr := hayride(t, "-config", cfg, "run", "-call", "echo", "-input", "hi", "acme:tool")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "hi\n", out)
}

func TestRun_ComposeDocument(t *testing.T) {
	cfg, _ := writeConfig(t)
	wasm := writeWasm(t, t.TempDir())
	code, _, _ := hayride(t, "-config", cfg, "install", "acme:tool@1.0.0", wasm)
	require.Equal(t, 0, code)

	doc := filepath.Join(t.TempDir(), "compose.yaml")
	require.NoError(t, os.WriteFile(doc, []byte("components:\n  - acme:tool\n"), 0o644))

	code, out, stderr := hayride(t, "-config", cfg, "compose", doc)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, `"acme:tool"`)
}

func TestRun_ComponentNotFound(t *testing.T) {
	cfg, _ := writeConfig(t)
	code, _, stderr := hayride(t, "-config", cfg, "run", "acme:missing")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "component not found")
}
