package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the shortest deployment secret accepted by NewKeyVault
const MinSecretLength = 32

const (
	vaultKeySalt = "bsc-custody/key-vault/v1"
	vaultKeyInfo = "aes-256-gcm"
	entropyBits  = 128
)

var (
	ErrSecretTooShort   = errors.New("vault secret too short")
	ErrDecryptionFailed = errors.New("decryption failed")

	newEntropy = bip39.NewEntropy
)

// KeyPair is a freshly generated wallet. PrivateKey is raw 32-byte key material.
type KeyPair struct {
	Address    string
	PrivateKey []byte
	Mnemonic   string
}

// Wipe zeroes the private key
func (k *KeyPair) Wipe() {
	if k != nil {
		Zero(k.PrivateKey)
	}
}

// KeyVault generates wallets and seals key material with AES-256-GCM
type KeyVault struct {
	aead cipher.AEAD
}

// NewKeyVault derives the cipher key from the deployment secret with HKDF-SHA256
func NewKeyVault(secret string) (*KeyVault, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrSecretTooShort, MinSecretLength)
	}

	key := make([]byte, 32)
	defer Zero(key)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), []byte(vaultKeySalt), []byte(vaultKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive vault key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &KeyVault{aead: aead}, nil
}

// GenerateKeyPair creates a BIP-39 mnemonic and derives m/44'/60'/0'/0/0 from it
func (v *KeyVault) GenerateKeyPair() (*KeyPair, error) {
	entropy, err := newEntropy(entropyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate entropy: %w", err)
	}
	defer Zero(entropy)

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("failed to generate mnemonic: %w", err)
	}

	privateKey, err := DeriveAccountKey(mnemonic)
	if err != nil {
		return nil, err
	}

	address, err := AddressFromPrivateKey(privateKey)
	if err != nil {
		Zero(privateKey)
		return nil, err
	}

	return &KeyPair{
		Address:    address,
		PrivateKey: privateKey,
		Mnemonic:   mnemonic,
	}, nil
}

// DeriveAccountKey returns the first Ethereum account key of a mnemonic
func DeriveAccountKey(mnemonic string) ([]byte, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}
	defer Zero(seed)

	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	path := []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + 60,
		bip32.FirstHardenedChild,
		0,
		0,
	}
	for _, idx := range path {
		key, err = key.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child key: %w", err)
		}
	}

	out := make([]byte, len(key.Key))
	copy(out, key.Key)
	Zero(key.Key)
	return out, nil
}

// AddressFromPrivateKey returns the checksummed address of a raw secp256k1 key
func AddressFromPrivateKey(privateKey []byte) (string, error) {
	pk, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return "", fmt.Errorf("invalid private key: %w", err)
	}
	return crypto.PubkeyToAddress(pk.PublicKey).Hex(), nil
}

// PrivateKeyFromHex decodes a hex key with or without the 0x prefix
func PrivateKeyFromHex(hexKey string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	if _, err := crypto.ToECDSA(raw); err != nil {
		Zero(raw)
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return raw, nil
}

// Encrypt seals plaintext as hex(nonce || ciphertext). Every call uses a fresh nonce.
func (v *KeyVault) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := randomRead(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, plaintext, nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt is the inverse of Encrypt. Any malformed or foreign ciphertext yields ErrDecryptionFailed.
func (v *KeyVault) Decrypt(ciphertext string) ([]byte, error) {
	data, err := hex.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid encoding", ErrDecryptionFailed)
	}

	nonceSize := v.aead.NonceSize()
	if len(data) < nonceSize+v.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}
	return plaintext, nil
}
