package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/internal/domain/repositories"
	"bsc-custody.backend/pkg/crypto"
	"bsc-custody.backend/pkg/logger"
)

// WalletUsecase issues and looks up custodial deposit wallets
type WalletUsecase struct {
	walletRepo repositories.WalletRepository
	keys       WalletGenerator
	network    entities.Network
}

// NewWalletUsecase creates a new wallet usecase
func NewWalletUsecase(walletRepo repositories.WalletRepository, keys WalletGenerator, network entities.Network) *WalletUsecase {
	return &WalletUsecase{
		walletRepo: walletRepo,
		keys:       keys,
		network:    network,
	}
}

// GetOrCreateWallet returns the user's wallet, generating one on first use.
// Concurrent first calls for one user converge on a single row through the unique user_id constraint.
func (u *WalletUsecase) GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*entities.WalletData, error) {
	if userID == uuid.Nil {
		return nil, domainerrors.ErrInvalidInput
	}

	existing, err := u.walletRepo.GetByUserID(ctx, userID)
	if err == nil {
		return &entities.WalletData{Wallet: existing, IsNew: false}, nil
	}
	if !errors.Is(err, domainerrors.ErrNotFound) {
		return nil, err
	}

	wallet, err := u.newWallet(userID)
	if err != nil {
		return nil, err
	}

	if err := u.walletRepo.Create(ctx, wallet); err != nil {
		if !errors.Is(err, domainerrors.ErrAlreadyExists) {
			return nil, err
		}
		// lost the insert race, the winner's row is authoritative
		winner, getErr := u.walletRepo.GetByUserID(ctx, userID)
		if getErr != nil {
			return nil, getErr
		}
		return &entities.WalletData{Wallet: winner, IsNew: false}, nil
	}

	logger.Info(ctx, "Custodial wallet created",
		zap.String("user_id", userID.String()),
		zap.String("address", wallet.Address),
	)
	return &entities.WalletData{Wallet: wallet, IsNew: true}, nil
}

// GetWallet returns the user's wallet without creating one
func (u *WalletUsecase) GetWallet(ctx context.Context, userID uuid.UUID) (*entities.Wallet, error) {
	return u.walletRepo.GetByUserID(ctx, userID)
}

// GetWalletByAddress resolves a custodial wallet from its address
func (u *WalletUsecase) GetWalletByAddress(ctx context.Context, address string) (*entities.Wallet, error) {
	return u.walletRepo.GetByAddress(ctx, address)
}

// Network returns the chain the wallets are issued on
func (u *WalletUsecase) Network() entities.Network {
	return u.network
}

func (u *WalletUsecase) newWallet(userID uuid.UUID) (*entities.Wallet, error) {
	pair, err := u.keys.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	defer pair.Wipe()

	encKey, err := u.keys.Encrypt(pair.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt private key: %w", err)
	}

	wallet := &entities.Wallet{
		UserID:              userID,
		Address:             pair.Address,
		EncryptedPrivateKey: encKey,
		Network:             u.network.Tag(),
	}

	if pair.Mnemonic != "" {
		encMnemonic, err := u.keys.Encrypt([]byte(pair.Mnemonic))
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt mnemonic: %w", err)
		}
		wallet.EncryptedMnemonic = null.StringFrom(encMnemonic)
	}
	return wallet, nil
}

// openKey decrypts a sealed private key. The caller must crypto.Zero the result.
func openKey(keys KeyVault, sealed string) ([]byte, error) {
	key, err := keys.Decrypt(sealed)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return nil, fmt.Errorf("%w: %v", domainerrors.ErrDecryptionFailed, err)
		}
		return nil, err
	}
	return key, nil
}
