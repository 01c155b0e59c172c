package app

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"securechat/internal/crypto"
)

const (
	defaultAddress          = ":8080"
	defaultLogLevel         = "NOTICE"
	defaultHandshakeTimeout = 120 * 1000 // 120 sec.
	defaultPingInterval     = 30 * 1000  // 30 sec.
	defaultMaxFrameSize     = 64 * 1024
	defaultSendQueueLength  = 64
	defaultMaxFailures      = 5
	defaultLockoutWindow    = 5 * 60 * 1000 // 5 min.
	defaultBcryptCost       = 10
	defaultHistoryLimit     = 50
	defaultSinkQueueLength  = 256
	defaultBoltDB           = "securechat.db"
	defaultSQLiteDB         = "securechat.sqlite"

	// BackendBolt keeps users and history in a bbolt file.
	BackendBolt = "bolt"

	// BackendSQLite keeps users and history in SQLite.
	BackendSQLite = "sqlite"

	// BackendFile keeps users in a JSON file and history in memory.
	BackendFile = "file"

	// BackendMemory keeps everything in memory.
	BackendMemory = "memory"
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

// Server is the listener configuration.
type Server struct {
	// Address is the host:port the relay listens on.
	Address string

	// DataDir is the absolute path to the relay's state files.
	DataDir string

	// PublicDir, if set, is served as static files at "/".
	PublicDir string

	// TLSCert and TLSKey are PEM files. When both are set the listener
	// speaks TLS.
	TLSCert string
	TLSKey  string

	// MetricsAddress is the address/port to bind the prometheus metrics
	// endpoint to. Empty disables it.
	MetricsAddress string

	// HandshakeTimeout is the time in milliseconds a connection has to
	// complete authentication and key exchange.
	HandshakeTimeout int

	// PingInterval is the keepalive ping period in milliseconds.
	PingInterval int

	// MaxFrameSize is the largest inbound frame accepted, in bytes.
	MaxFrameSize int

	// SendQueueLength is the outbound frame queue length per connection.
	SendQueueLength int

	// RSABits is the modulus size of per-connection keypairs.
	RSABits int
}

func (sCfg *Server) applyDefaults() {
	if sCfg.Address == "" {
		sCfg.Address = defaultAddress
	}
	if sCfg.HandshakeTimeout <= 0 {
		sCfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if sCfg.PingInterval <= 0 {
		sCfg.PingInterval = defaultPingInterval
	}
	if sCfg.MaxFrameSize <= 0 {
		sCfg.MaxFrameSize = defaultMaxFrameSize
	}
	if sCfg.SendQueueLength <= 0 {
		sCfg.SendQueueLength = defaultSendQueueLength
	}
	if sCfg.RSABits == 0 {
		sCfg.RSABits = crypto.DefaultRSABits
	}
}

func (sCfg *Server) validate() error {
	if _, _, err := net.SplitHostPort(sCfg.Address); err != nil {
		return fmt.Errorf("config: Server: Address '%v' is invalid: %v", sCfg.Address, err)
	}
	if !filepath.IsAbs(sCfg.DataDir) {
		return fmt.Errorf("config: Server: DataDir '%v' is not an absolute path", sCfg.DataDir)
	}
	if (sCfg.TLSCert == "") != (sCfg.TLSKey == "") {
		return errors.New("config: Server: TLSCert and TLSKey must be set together")
	}
	if sCfg.MetricsAddress != "" {
		if _, _, err := net.SplitHostPort(sCfg.MetricsAddress); err != nil {
			return fmt.Errorf("config: Server: MetricsAddress '%v' is invalid: %v", sCfg.MetricsAddress, err)
		}
	}
	if sCfg.RSABits < crypto.MinRSABits {
		return fmt.Errorf("config: Server: RSABits %d is below %d", sCfg.RSABits, crypto.MinRSABits)
	}
	return nil
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl // Force uppercase.
	return nil
}

// Auth is the authentication configuration.
type Auth struct {
	// MaxFailures is the number of failed logins that locks an identity.
	MaxFailures int

	// LockoutWindow is the lock duration in milliseconds, counted from the
	// most recent failure.
	LockoutWindow int

	// BcryptCost is the bcrypt work factor for new password hashes.
	BcryptCost int
}

func (aCfg *Auth) applyDefaults() {
	if aCfg.MaxFailures <= 0 {
		aCfg.MaxFailures = defaultMaxFailures
	}
	if aCfg.LockoutWindow <= 0 {
		aCfg.LockoutWindow = defaultLockoutWindow
	}
	if aCfg.BcryptCost == 0 {
		aCfg.BcryptCost = defaultBcryptCost
	}
}

func (aCfg *Auth) validate() error {
	// Bounds match golang.org/x/crypto/bcrypt's MinCost and MaxCost.
	if aCfg.BcryptCost < 4 || aCfg.BcryptCost > 31 {
		return fmt.Errorf("config: Auth: BcryptCost %d is out of range", aCfg.BcryptCost)
	}
	return nil
}

// Storage is the persistence configuration.
type Storage struct {
	// Backend is one of "bolt", "sqlite", "file" or "memory".
	Backend string

	// Database is the database file name, relative to DataDir unless
	// absolute.
	Database string

	// ChatLogDir, if set, enables per-conversation daily text logs.
	// Relative paths are resolved against DataDir.
	ChatLogDir string

	// HistoryLimit caps the number of messages one history request
	// returns.
	HistoryLimit int

	// SinkQueueLength is the length of the asynchronous persistence queue.
	SinkQueueLength int
}

func (stCfg *Storage) applyDefaults(dataDir string) {
	if stCfg.Backend == "" {
		stCfg.Backend = BackendBolt
	}
	stCfg.Backend = strings.ToLower(stCfg.Backend)
	if stCfg.Database == "" {
		switch stCfg.Backend {
		case BackendBolt:
			stCfg.Database = defaultBoltDB
		case BackendSQLite:
			stCfg.Database = defaultSQLiteDB
		}
	}
	if stCfg.Database != "" && !filepath.IsAbs(stCfg.Database) {
		stCfg.Database = filepath.Join(dataDir, stCfg.Database)
	}
	if stCfg.ChatLogDir != "" && !filepath.IsAbs(stCfg.ChatLogDir) {
		stCfg.ChatLogDir = filepath.Join(dataDir, stCfg.ChatLogDir)
	}
	if stCfg.HistoryLimit <= 0 {
		stCfg.HistoryLimit = defaultHistoryLimit
	}
	if stCfg.SinkQueueLength <= 0 {
		stCfg.SinkQueueLength = defaultSinkQueueLength
	}
}

func (stCfg *Storage) validate() error {
	switch stCfg.Backend {
	case BackendBolt, BackendSQLite, BackendFile, BackendMemory:
	default:
		return fmt.Errorf("config: Storage: Backend '%v' is invalid", stCfg.Backend)
	}
	return nil
}

// Discovery is the LAN discovery configuration.
type Discovery struct {
	// MDNS advertises the relay over multicast DNS.
	MDNS bool

	// Instance is the advertised instance name, the host name by default.
	Instance string
}

func (dCfg *Discovery) applyDefaults() {
	if dCfg.Instance == "" {
		if h, err := os.Hostname(); err == nil {
			dCfg.Instance = h
		} else {
			dCfg.Instance = "securechat"
		}
	}
}

// Config is the top level relay configuration.
type Config struct {
	Server    *Server
	Logging   *Logging
	Auth      *Auth
	Storage   *Storage
	Discovery *Discovery
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration. Most people should call one of the Load variants
// instead.
func (cfg *Config) FixupAndValidate() error {
	// The Server section is mandatory, everything else is optional.
	if cfg.Server == nil {
		return errors.New("config: No Server block was present")
	}
	if cfg.Logging == nil {
		l := defaultLogging
		cfg.Logging = &l
	}
	if cfg.Auth == nil {
		cfg.Auth = &Auth{}
	}
	if cfg.Storage == nil {
		cfg.Storage = &Storage{}
	}
	if cfg.Discovery == nil {
		cfg.Discovery = &Discovery{}
	}

	cfg.Server.applyDefaults()
	cfg.Auth.applyDefaults()
	cfg.Storage.applyDefaults(cfg.Server.DataDir)
	cfg.Discovery.applyDefaults()

	if err := cfg.Server.validate(); err != nil {
		return err
	}
	if err := cfg.Logging.validate(); err != nil {
		return err
	}
	if err := cfg.Auth.validate(); err != nil {
		return err
	}
	return cfg.Storage.validate()
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("config: no nil buffer as config file")
	}

	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
