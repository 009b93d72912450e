package kpirewardd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"auxrewards/crypto"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testIdentity(t *testing.T) string {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key.PubKey().String()
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	authority := testIdentity(t)
	path := writeConfig(t, `
data_dir: /var/lib/kpireward
program:
  authority: `+authority+`
admin:
  bearer_token: secret
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":8088", cfg.ListenAddress)
	require.Equal(t, 10*time.Second, cfg.ShutdownTimeout.Duration)
	require.Equal(t, "AUX", cfg.Token.Symbol)
	require.Equal(t, authority, cfg.Token.MintAuthority)
	require.Equal(t, ReplayBackendLevelDB, cfg.Replay.Backend)
	require.Equal(t, filepath.Join("/var/lib/kpireward", "replay"), cfg.Replay.Path)
	require.Equal(t, "@every 1m", cfg.Replay.PruneSchedule)
	require.Equal(t, 120.0, cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, 50, cfg.Batch.MaxClaims)
	require.Equal(t, 8, cfg.Batch.Workers)
}

func TestLoadConfigReadsTokenFromEnv(t *testing.T) {
	t.Setenv("KPIREWARD_TEST_ADMIN", "from-env")
	path := writeConfig(t, `
program:
  authority: `+testIdentity(t)+`
shutdown_timeout: 3s
admin:
  bearer_token_env: KPIREWARD_TEST_ADMIN
replay:
  backend: memory
  prune_schedule: "*/30 * * * * *"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Admin.BearerToken)
	require.Equal(t, 3*time.Second, cfg.ShutdownTimeout.Duration)
	require.Equal(t, ReplayBackendMemory, cfg.Replay.Backend)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	authority := testIdentity(t)
	cases := map[string]string{
		"missing authority":  "admin:\n  bearer_token: x\n",
		"missing token":      "program:\n  authority: " + authority + "\n",
		"unknown field":      "program:\n  authority: " + authority + "\nadmin:\n  bearer_token: x\nsurprise: true\n",
		"bad backend":        "program:\n  authority: " + authority + "\nadmin:\n  bearer_token: x\nreplay:\n  backend: etcd\n",
		"redis without addr": "program:\n  authority: " + authority + "\nadmin:\n  bearer_token: x\nreplay:\n  backend: redis\n",
		"bad schedule":       "program:\n  authority: " + authority + "\nadmin:\n  bearer_token: x\nreplay:\n  prune_schedule: every now and then\n",
		"bad duration":       "program:\n  authority: " + authority + "\nadmin:\n  bearer_token: x\nshutdown_timeout: soon\n",
		"bad sample ratio":   "program:\n  authority: " + authority + "\nadmin:\n  bearer_token: x\ntelemetry:\n  sample_ratio: 2\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}
