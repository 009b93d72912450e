package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"auxrewards/crypto"
)

const (
	defaultEndpoint      = "http://127.0.0.1:8088"
	defaultPassphraseEnv = "KPIREWARD_SIGNER_PASSPHRASE"
	defaultKeystoreName  = "signer.keystore"
)

// Config drives kpirewardctl: which signer key signs claims and which daemon
// receives them.
type Config struct {
	Endpoint           string `toml:"Endpoint"`
	SignerKeystorePath string `toml:"SignerKeystorePath"`
	PassphraseEnv      string `toml:"PassphraseEnv"`
	AdminTokenEnv      string `toml:"AdminTokenEnv,omitempty"`
	RequestTimeoutSecs int    `toml:"RequestTimeoutSecs"`
}

// Passphrase reads the keystore passphrase from the configured environment
// variable. Unset variables yield the empty passphrase.
func (c *Config) Passphrase() string {
	if c == nil || strings.TrimSpace(c.PassphraseEnv) == "" {
		return ""
	}
	return os.Getenv(strings.TrimSpace(c.PassphraseEnv))
}

// AdminToken reads the admin bearer token from the configured environment
// variable.
func (c *Config) AdminToken() string {
	if c == nil || strings.TrimSpace(c.AdminTokenEnv) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(strings.TrimSpace(c.AdminTokenEnv)))
}

// Load loads the configuration from path. A missing file is created with
// defaults together with a freshly generated signer keystore.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0].String())
	}
	applyDefaults(cfg)
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = defaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if strings.TrimSpace(cfg.PassphraseEnv) == "" {
		cfg.PassphraseEnv = defaultPassphraseEnv
	}
	if cfg.RequestTimeoutSecs <= 0 {
		cfg.RequestTimeoutSecs = 10
	}
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.SignerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, cfg.Passphrase()); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.SignerKeystorePath != keystorePath {
		cfg.SignerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.SignerKeystorePath = defaultKeystorePath(path)

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveToKeystore(cfg.SignerKeystorePath, key, cfg.Passphrase()); err != nil {
		return nil, err
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), defaultKeystoreName)
}

// LoadSigner decrypts the signer key referenced by the configuration.
func (c *Config) LoadSigner() (*crypto.PrivateKey, error) {
	if c == nil || strings.TrimSpace(c.SignerKeystorePath) == "" {
		return nil, fmt.Errorf("config: signer keystore path required")
	}
	return crypto.LoadFromKeystore(c.SignerKeystorePath, c.Passphrase())
}
