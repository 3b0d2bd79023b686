package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fentz26/litscreen/internal/dedup"
	"github.com/fentz26/litscreen/internal/delegate"
	"github.com/fentz26/litscreen/internal/screening"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "litscreen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, used, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, used)
	assert.Equal(t, "127.0.0.1:5000", cfg.Server.Listen)
	assert.Equal(t, 50, cfg.Server.MaxUploadMB)
	assert.Equal(t, BackendMemory, cfg.Registry.Backend)
	assert.Equal(t, 10, cfg.Scheduler.GlobalMax)
	assert.Equal(t, delegate.DefaultModel, cfg.AI.Model)
	assert.Equal(t, screening.DefaultCallTimeout, cfg.AI.CallTimeout)
	assert.Equal(t, screening.DefaultBlacklists(), cfg.Screening.Blacklists)
	assert.Equal(t, dedup.MethodDOITitle, cfg.Screening.DedupMethod())
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeFile(t, `
server:
  listen: ":8080"
scheduler:
  global_max: 3
  task_timeout: 10m
registry:
  backend: redis
  redis:
    addr: redis:6379
screening:
  remove_duplicates: false
  blacklists:
    title_abstract: [surgery]
`)

	cfg, used, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 50, cfg.Server.MaxUploadMB, "unset keys keep defaults")
	assert.Equal(t, 3, cfg.Scheduler.GlobalMax)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.TaskTimeout)
	assert.Equal(t, BackendRedis, cfg.Registry.Backend)
	assert.Equal(t, "redis:6379", cfg.Registry.Redis.Addr)
	assert.Equal(t, []string{"surgery"}, cfg.Screening.Blacklists.TitleAbstract)
	assert.Equal(t, screening.DefaultBlacklists().Journal, cfg.Screening.Blacklists.Journal)
	assert.Equal(t, dedup.MethodNone, cfg.Screening.DedupMethod())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LITSCREEN_AI_API_KEY", "sk-test")
	t.Setenv("LITSCREEN_SCHEDULER_GLOBAL_MAX", "7")
	t.Setenv("LITSCREEN_AI_CALL_TIMEOUT", "5s")

	cfg, _, err := Load(writeFile(t, "log_level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.Equal(t, 7, cfg.Scheduler.GlobalMax)
	assert.Equal(t, 5*time.Second, cfg.AI.CallTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, _, err = Load(writeFile(t, "registry:\n  backend: etcd\n"))
	assert.ErrorContains(t, err, "registry.backend")

	_, _, err = Load(writeFile(t, "sink:\n  enabled: true\n"))
	assert.ErrorContains(t, err, "sink.bucket")
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.AI.APIKey = "sk-secret"
	cfg.Scheduler.TaskTimeout = 90 * time.Second
	cfg.Screening.Blacklists.Journal = []string{"chemistry", "medicine"}

	path := filepath.Join(t.TempDir(), "nested", "litscreen.yaml")
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestStringMasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.AI.APIKey = "sk-secret"
	out := cfg.String()
	assert.NotContains(t, out, "sk-secret")
	assert.Contains(t, out, "api_key: '****'")
	assert.Equal(t, "sk-secret", cfg.AI.APIKey)
}

func TestNewDelegate(t *testing.T) {
	ai := Default().AI
	assert.Nil(t, ai.NewDelegate("", ""))

	d := ai.NewDelegate("sk-form", "deepseek-reasoner")
	require.NotNil(t, d)
	assert.Equal(t, "deepseek-reasoner", d.(*delegate.OpenAIClient).Model())

	ai.APIKey = "sk-config"
	d = ai.NewDelegate("", "")
	require.NotNil(t, d)
	assert.Equal(t, delegate.DefaultModel, d.(*delegate.OpenAIClient).Model())
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
