package crypto

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// keystoreFile is the on-disk envelope for an encrypted Ed25519 signer key.
type keystoreFile struct {
	Identity string              `json:"identity"`
	Crypto   keystore.CryptoJSON `json:"crypto"`
	Version  int                 `json:"version"`
}

const keystoreVersion = 3

// SaveToKeystore encrypts the provided private key with the Ethereum v3 scrypt
// scheme and writes it to path. If the parent directory does not exist it will
// be created with 0700 permissions.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	sealed, err := keystore.EncryptDataV3(key.Bytes(), []byte(passphrase), keystore.StandardScryptN, keystore.StandardScryptP)
	if err != nil {
		return err
	}
	payload, err := json.MarshalIndent(keystoreFile{
		Identity: key.PubKey().String(),
		Crypto:   sealed,
		Version:  keystoreVersion,
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "keystore-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// LoadFromKeystore decrypts a keystore file using the supplied passphrase.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file keystoreFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, err
	}
	if file.Version != keystoreVersion {
		return nil, errors.New("crypto: unsupported keystore version")
	}

	decrypted, err := keystore.DecryptDataV3(file.Crypto, passphrase)
	if err != nil {
		return nil, err
	}
	key, err := PrivateKeyFromBytes(decrypted)
	if err != nil {
		return nil, err
	}
	if file.Identity != "" && key.PubKey().String() != file.Identity {
		return nil, errors.New("crypto: keystore identity mismatch")
	}
	return key, nil
}
