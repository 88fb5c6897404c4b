package blockchain

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bsc-custody.backend/pkg/crypto"
	"bsc-custody.backend/pkg/logger"
)

// KeyProvider returns raw key material. The caller zeroes it after use.
type KeyProvider func(ctx context.Context) ([]byte, error)

type nativeSender interface {
	PendingNonce(ctx context.Context, address string) (uint64, error)
	SendNative(ctx context.Context, privateKey []byte, to string, amount decimal.Decimal, opts SendOptions) (string, error)
	GetNativeBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

// MasterSigner serializes every send from the master wallet and sequences its nonces locally.
// The cached nonce is dropped after a failed send and re-read from the pending pool.
type MasterSigner struct {
	chain   nativeSender
	address string
	keyFn   KeyProvider

	mu        sync.Mutex
	nextNonce *uint64
}

// NewMasterSigner creates a signer for the master wallet at address
func NewMasterSigner(chain nativeSender, address string, keyFn KeyProvider) *MasterSigner {
	return &MasterSigner{chain: chain, address: address, keyFn: keyFn}
}

// Address returns the master wallet address
func (m *MasterSigner) Address() string {
	return m.address
}

// NativeBalance returns the master wallet's native coin balance
func (m *MasterSigner) NativeBalance(ctx context.Context) (decimal.Decimal, error) {
	return m.chain.GetNativeBalance(ctx, m.address)
}

// SendNative sends amount of native coin from the master wallet to to
func (m *MasterSigner) SendNative(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := m.keyFn(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load master key: %w", err)
	}
	defer crypto.Zero(key)

	if m.nextNonce == nil {
		nonce, err := m.chain.PendingNonce(ctx, m.address)
		if err != nil {
			return "", err
		}
		m.nextNonce = &nonce
	}

	nonce := *m.nextNonce
	hash, err := m.chain.SendNative(ctx, key, to, amount, SendOptions{Nonce: &nonce})
	if err != nil {
		m.nextNonce = nil
		logger.Warn(ctx, "Master wallet send failed, nonce reset",
			zap.String("to", to),
			zap.Uint64("nonce", nonce),
			zap.Error(err),
		)
		return "", err
	}

	nonce++
	m.nextNonce = &nonce
	return hash, nil
}
