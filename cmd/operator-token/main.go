package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"bsc-custody.backend/internal/config"
	"bsc-custody.backend/pkg/jwt"
)

type operatorTokenDeps struct {
	loadEnv func() error
	loadCfg func() *config.Config
	out     io.Writer
}

func defaultOperatorTokenDeps() operatorTokenDeps {
	return operatorTokenDeps{
		loadEnv: func() error { return godotenv.Load() },
		loadCfg: config.Load,
		out:     os.Stdout,
	}
}

func main() {
	if err := runOperatorToken(os.Args[1:], defaultOperatorTokenDeps()); err != nil {
		log.Fatal(err)
	}
}

func resolveRole(input string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case jwt.RoleAdmin:
		return jwt.RoleAdmin, nil
	case jwt.RoleService:
		return jwt.RoleService, nil
	default:
		return "", fmt.Errorf("invalid role: %q (allowed: %s, %s)", input, jwt.RoleAdmin, jwt.RoleService)
	}
}

func resolveOperatorID(input string) string {
	if input != "" {
		return input
	}
	return uuid.NewString()
}

func runOperatorToken(args []string, deps operatorTokenDeps) error {
	def := defaultOperatorTokenDeps()
	if deps.loadEnv == nil {
		deps.loadEnv = def.loadEnv
	}
	if deps.loadCfg == nil {
		deps.loadCfg = def.loadCfg
	}
	if deps.out == nil {
		deps.out = def.out
	}

	fs := flag.NewFlagSet("operator-token", flag.ContinueOnError)
	operatorID := fs.String("operator-id", "", "operator identifier (random when empty)")
	roleFlag := fs.String("role", jwt.RoleAdmin, "token role: ADMIN or SERVICE")
	ttl := fs.Duration("ttl", 0, "token lifetime (JWT_ACCESS_EXPIRY when zero)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	role, err := resolveRole(*roleFlag)
	if err != nil {
		return err
	}

	_ = deps.loadEnv()
	cfg := deps.loadCfg()
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	expiry := cfg.JWT.AccessExpiry
	if *ttl > 0 {
		expiry = *ttl
	}
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	id := resolveOperatorID(*operatorID)
	token, err := jwt.NewJWTService(cfg.JWT.Secret, expiry).GenerateToken(id, role)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	fmt.Fprintf(deps.out, "OPERATOR_ID=%s\n", id)
	fmt.Fprintf(deps.out, "ROLE=%s\n", role)
	fmt.Fprintf(deps.out, "EXPIRES_IN=%s\n", expiry)
	fmt.Fprintf(deps.out, "TOKEN=%s\n", token)
	return nil
}
