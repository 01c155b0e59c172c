package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"securechat/internal/crypto"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load([]byte(`
[Server]
  DataDir = "/var/lib/securechat"
`))
	require.NoError(t, err)

	require.Equal(t, defaultAddress, cfg.Server.Address)
	require.Equal(t, crypto.DefaultRSABits, cfg.Server.RSABits)
	require.Equal(t, defaultHandshakeTimeout, cfg.Server.HandshakeTimeout)
	require.Equal(t, "NOTICE", cfg.Logging.Level)
	require.Equal(t, defaultMaxFailures, cfg.Auth.MaxFailures)
	require.Equal(t, defaultLockoutWindow, cfg.Auth.LockoutWindow)
	require.Equal(t, BackendBolt, cfg.Storage.Backend)
	require.Equal(t, "/var/lib/securechat/securechat.db", cfg.Storage.Database)
	require.Equal(t, defaultHistoryLimit, cfg.Storage.HistoryLimit)
	require.False(t, cfg.Discovery.MDNS)
	require.NotEmpty(t, cfg.Discovery.Instance)
}

func TestLoad_FullConfig(t *testing.T) {
	cfg, err := Load([]byte(`
[Server]
  Address = "127.0.0.1:9443"
  DataDir = "/srv/chat"
  TLSCert = "/srv/chat/cert.pem"
  TLSKey = "/srv/chat/key.pem"
  MetricsAddress = "127.0.0.1:9100"
  HandshakeTimeout = 30000
  RSABits = 2048

[Logging]
  Level = "debug"

[Auth]
  MaxFailures = 3
  LockoutWindow = 60000
  BcryptCost = 12

[Storage]
  Backend = "SQLite"
  ChatLogDir = "logs"
  HistoryLimit = 20

[Discovery]
  MDNS = true
  Instance = "lab"
`))
	require.NoError(t, err)

	require.Equal(t, "DEBUG", cfg.Logging.Level)
	require.Equal(t, 3, cfg.Auth.MaxFailures)
	require.Equal(t, BackendSQLite, cfg.Storage.Backend)
	require.Equal(t, "/srv/chat/securechat.sqlite", cfg.Storage.Database)
	require.Equal(t, "/srv/chat/logs", cfg.Storage.ChatLogDir)
	require.Equal(t, "lab", cfg.Discovery.Instance)

	sc := cfg.Server.serverConfig()
	require.Equal(t, int64(defaultMaxFrameSize), sc.MaxFrameSize)
	require.Equal(t, "30s", sc.HandshakeTimeout.String())
	require.Equal(t, "1m0s", cfg.Auth.lockoutWindow().String())
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"no server block":   `[Logging]` + "\n" + `Level = "INFO"`,
		"relative data dir": `[Server]` + "\n" + `DataDir = "data"`,
		"bad level": `[Server]
DataDir = "/d"
[Logging]
Level = "LOUD"`,
		"bad backend": `[Server]
DataDir = "/d"
[Storage]
Backend = "postgres"`,
		"weak rsa": `[Server]
DataDir = "/d"
RSABits = 1024`,
		"half tls": `[Server]
DataDir = "/d"
TLSCert = "/d/cert.pem"`,
		"bad bcrypt cost": `[Server]
DataDir = "/d"
[Auth]
BcryptCost = 40`,
		"unknown key": `[Server]
DataDir = "/d"
Colour = "blue"`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load([]byte(body)); err == nil {
				t.Fatalf("Load accepted %q", body)
			}
		})
	}
}

func TestLoad_NilBuffer(t *testing.T) {
	_, err := Load(nil)
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "relay.toml")
	body := "[Server]\nDataDir = \"" + filepath.ToSlash(dir) + "\"\n[Storage]\nBackend = \"memory\"\n"
	require.NoError(t, os.WriteFile(f, []byte(body), 0o600))

	cfg, err := LoadFile(f)
	require.NoError(t, err)
	require.Equal(t, BackendMemory, cfg.Storage.Backend)
	require.Empty(t, cfg.Storage.Database)

	_, err = LoadFile(filepath.Join(dir, "missing.toml"))
	require.Error(t, err)
}
