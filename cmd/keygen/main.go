package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"bsc-custody.backend/internal/config"
	"bsc-custody.backend/pkg/crypto"
)

var randomToken = crypto.GenerateRandomToken

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	size := fs.Int("bytes", 32, "random bytes per secret")
	master := fs.Bool("master", true, "also generate a master wallet")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := validateSize(*size); err != nil {
		return err
	}

	vaultSecret, err := randomToken(*size)
	if err != nil {
		return fmt.Errorf("failed to generate vault secret: %w", err)
	}
	jwtSecret, err := randomToken(*size)
	if err != nil {
		return fmt.Errorf("failed to generate jwt secret: %w", err)
	}

	fmt.Fprintln(out, "Generated service secrets")
	fmt.Fprintf(out, "VAULT_ENCRYPTION_SECRET=%s\n", vaultSecret)
	fmt.Fprintf(out, "JWT_SECRET=%s\n", jwtSecret)

	if !*master {
		return nil
	}
	vault, err := crypto.NewKeyVault(vaultSecret)
	if err != nil {
		return err
	}
	pair, err := vault.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("failed to generate master wallet: %w", err)
	}
	defer pair.Wipe()

	fmt.Fprintf(out, "MASTER_WALLET_ADDRESS=%s\n", pair.Address)
	fmt.Fprintf(out, "MASTER_WALLET_PRIVATE_KEY=%s\n", hex.EncodeToString(pair.PrivateKey))
	fmt.Fprintf(out, "MASTER_WALLET_MNEMONIC=%s\n", pair.Mnemonic)
	return nil
}

// validateSize rejects sizes whose hex encoding would fail the vault secret check
func validateSize(n int) error {
	if n*2 < config.MinVaultSecretLength {
		return fmt.Errorf("invalid bytes: %d (need at least %d)", n, config.MinVaultSecretLength/2)
	}
	return nil
}
