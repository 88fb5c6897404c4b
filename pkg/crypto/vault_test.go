package crypto

import (
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewKeyVault_RejectsShortSecret(t *testing.T) {
	_, err := NewKeyVault("short")
	require.ErrorIs(t, err, ErrSecretTooShort)
}

func TestKeyVault_EncryptDecryptRoundTrip(t *testing.T) {
	v, err := NewKeyVault(testSecret)
	require.NoError(t, err)

	plaintext := []byte("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	first, err := v.Encrypt(plaintext)
	require.NoError(t, err)
	second, err := v.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "same plaintext must yield different ciphertexts")

	got, err := v.Decrypt(first)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)

	got, err = v.Decrypt(second)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestKeyVault_DecryptFailures(t *testing.T) {
	v, err := NewKeyVault(testSecret)
	require.NoError(t, err)
	other, err := NewKeyVault(strings.Repeat("z", 40))
	require.NoError(t, err)

	sealed, err := v.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = other.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = v.Decrypt("not-hex")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = v.Decrypt("abcd")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	tampered := []byte(sealed)
	if tampered[len(tampered)-1] == '0' {
		tampered[len(tampered)-1] = '1'
	} else {
		tampered[len(tampered)-1] = '0'
	}
	_, err = v.Decrypt(string(tampered))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestKeyVault_EncryptNonceFailure(t *testing.T) {
	orig := randomRead
	t.Cleanup(func() { randomRead = orig })
	randomRead = func([]byte) (int, error) { return 0, errors.New("rand failed") }

	v, err := NewKeyVault(testSecret)
	require.NoError(t, err)
	_, err = v.Encrypt([]byte("x"))
	require.Error(t, err)
}

func TestKeyVault_GenerateKeyPair(t *testing.T) {
	v, err := NewKeyVault(testSecret)
	require.NoError(t, err)

	kp, err := v.GenerateKeyPair()
	require.NoError(t, err)
	assert.True(t, common.IsHexAddress(kp.Address))
	assert.Len(t, kp.PrivateKey, 32)
	assert.True(t, bip39.IsMnemonicValid(kp.Mnemonic))
	assert.Len(t, strings.Fields(kp.Mnemonic), 12)

	derived, err := DeriveAccountKey(kp.Mnemonic)
	require.NoError(t, err)
	assert.Equal(t, kp.PrivateKey, derived)

	addr, err := AddressFromPrivateKey(kp.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, kp.Address, addr)

	kp.Wipe()
	assert.Equal(t, make([]byte, 32), kp.PrivateKey)
}

func TestDeriveAccountKey_KnownVector(t *testing.T) {
	// widely published test mnemonic used by hardhat and ganache
	mnemonic := "test test test test test test test test test test test junk"
	key, err := DeriveAccountKey(mnemonic)
	require.NoError(t, err)

	addr, err := AddressFromPrivateKey(key)
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", addr)

	_, err = DeriveAccountKey("not a mnemonic")
	assert.Error(t, err)
}

func TestKeyVault_GenerateKeyPairEntropyFailure(t *testing.T) {
	orig := newEntropy
	t.Cleanup(func() { newEntropy = orig })
	newEntropy = func(int) ([]byte, error) { return nil, errors.New("no entropy") }

	v, err := NewKeyVault(testSecret)
	require.NoError(t, err)
	_, err = v.GenerateKeyPair()
	require.Error(t, err)
}

func TestPrivateKeyFromHex(t *testing.T) {
	raw, err := PrivateKeyFromHex("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	_, err = PrivateKeyFromHex("zz")
	assert.Error(t, err)
	_, err = PrivateKeyFromHex("00")
	assert.Error(t, err)
}

func TestGenerateRandomTokenAndZero(t *testing.T) {
	token, err := GenerateRandomToken(16)
	require.NoError(t, err)
	assert.Len(t, token, 32)

	b := []byte{1, 2, 3}
	Zero(b)
	assert.Equal(t, []byte{0, 0, 0}, b)

	orig := randomRead
	t.Cleanup(func() { randomRead = orig })
	randomRead = func([]byte) (int, error) { return 0, errors.New("rand failed") }
	_, err = GenerateRandomToken(16)
	assert.Error(t, err)
}
