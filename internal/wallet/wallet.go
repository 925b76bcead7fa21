// Package wallet manages secp256k1 keys for signing YieldRisk API requests
// and feedback authorizations. Keys are stored on disk encrypted with a
// password via argon2id and AES-256-GCM.
package wallet

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Wallet is a decrypted in-memory key.
type Wallet struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// New generates a fresh secp256k1 key.
func New() (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Wallet{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// FromKey wraps an existing private key.
func FromKey(key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}
}

// keystoreFile is the on-disk JSON format.
type keystoreFile struct {
	ID         string `json:"id"`
	Address    string `json:"address"`
	Cipher     string `json:"cipher"` // aes-256-gcm
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	CreatedAt  int64  `json:"created_at"`
}

// Save encrypts the private key with password and writes it to path,
// creating parent directories as needed. File mode is 0600.
func (w *Wallet) Save(path, password string, createdAt int64) error {
	ciphertext, salt, nonce, err := encrypt(crypto.FromECDSA(w.Key), password)
	if err != nil {
		return fmt.Errorf("encrypt key: %w", err)
	}

	ks := keystoreFile{
		ID:         uuid.New().String(),
		Address:    w.Address.Hex(),
		Cipher:     "aes-256-gcm",
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		CreatedAt:  createdAt,
	}
	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keystore: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create keystore dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	return nil
}

// Load reads and decrypts a keystore file. A wrong password surfaces as a
// decryption error from GCM authentication.
func Load(path, password string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}

	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("parse keystore: %w", err)
	}
	if ks.Cipher != "aes-256-gcm" {
		return nil, fmt.Errorf("unsupported cipher %q", ks.Cipher)
	}

	raw, err := decrypt(ks.Ciphertext, password, ks.Salt, ks.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decrypt key: %w", err)
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("restore key: %w", err)
	}

	w := FromKey(key)
	if ks.Address != "" && w.Address != common.HexToAddress(ks.Address) {
		return nil, fmt.Errorf("keystore address %s does not match key %s", ks.Address, w.Address.Hex())
	}
	return w, nil
}
