package usecases

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"bsc-custody.backend/internal/config"
	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/internal/domain/repositories"
	"bsc-custody.backend/pkg/crypto"
	"bsc-custody.backend/pkg/logger"
)

// MasterWalletUsecase keeps the treasury config row in step with the deployed master key
type MasterWalletUsecase struct {
	cfgRepo repositories.MasterWalletConfigRepository
	keys    KeyVault
}

// NewMasterWalletUsecase creates a new master wallet usecase
func NewMasterWalletUsecase(cfgRepo repositories.MasterWalletConfigRepository, keys KeyVault) *MasterWalletUsecase {
	return &MasterWalletUsecase{cfgRepo: cfgRepo, keys: keys}
}

// Bootstrap creates the treasury config from privateKeyHex and the sweep defaults when it is missing.
// An existing row keeps its tuning; only the key and address follow a rotated master key.
func (u *MasterWalletUsecase) Bootstrap(ctx context.Context, privateKeyHex string, defaults config.SweepConfig) (*entities.MasterWalletConfig, error) {
	key, err := crypto.PrivateKeyFromHex(privateKeyHex)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(key)

	address, err := crypto.AddressFromPrivateKey(key)
	if err != nil {
		return nil, err
	}

	existing, err := u.cfgRepo.Get(ctx)
	if err != nil && !errors.Is(err, domainerrors.ErrNotFound) {
		return nil, err
	}
	if existing != nil && strings.EqualFold(existing.Address, address) {
		return existing, nil
	}

	sealed, err := u.keys.Encrypt(key)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		logger.Warn(ctx, "Master wallet key rotated",
			zap.String("previous_address", existing.Address),
			zap.String("address", address),
		)
		existing.Address = address
		existing.EncryptedPrivateKey = sealed
		if err := u.cfgRepo.Update(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	cfg := &entities.MasterWalletConfig{
		Address:             address,
		EncryptedPrivateKey: sealed,
		MinNativeReserve:    defaults.MinNativeReserve,
		GasAmountPerWallet:  defaults.GasAmountPerWallet,
		HighThresholdUSD:    defaults.HighThresholdUSD,
		MediumThresholdUSD:  defaults.MediumThresholdUSD,
		LowThresholdUSD:     defaults.LowThresholdUSD,
		AutoSweepEnabled:    defaults.AutoStart,
	}
	if err := u.cfgRepo.Create(ctx, cfg); err != nil {
		return nil, err
	}
	logger.Info(ctx, "Master wallet config created", zap.String("address", address))
	return cfg, nil
}

// SigningKey opens the treasury key for one send. The caller must crypto.Zero the result.
func (u *MasterWalletUsecase) SigningKey(ctx context.Context) ([]byte, error) {
	cfg, err := u.cfgRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	return openKey(u.keys, cfg.EncryptedPrivateKey)
}
