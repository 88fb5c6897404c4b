package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bsc-custody.backend/internal/config"
	"bsc-custody.backend/pkg/jwt"
)

func testDeps(secret string, out *bytes.Buffer) operatorTokenDeps {
	return operatorTokenDeps{
		loadEnv: func() error { return errors.New("no .env") },
		loadCfg: func() *config.Config {
			return &config.Config{JWT: config.JWTConfig{Secret: secret, AccessExpiry: time.Hour}}
		},
		out: out,
	}
}

func parseOutput(t *testing.T, out string) map[string]string {
	t.Helper()
	values := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		k, v, ok := strings.Cut(line, "=")
		require.True(t, ok, "malformed line %q", line)
		values[k] = v
	}
	return values
}

func TestRunOperatorToken_IssuesValidToken(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runOperatorToken([]string{"-operator-id", "ops-1", "-role", "admin"}, testDeps("secret", &out)))

	values := parseOutput(t, out.String())
	assert.Equal(t, "ops-1", values["OPERATOR_ID"])
	assert.Equal(t, jwt.RoleAdmin, values["ROLE"])
	assert.Equal(t, time.Hour.String(), values["EXPIRES_IN"])

	claims, err := jwt.NewJWTService("secret", time.Hour).ValidateToken(values["TOKEN"])
	require.NoError(t, err)
	assert.Equal(t, "ops-1", claims.OperatorID)
	assert.Equal(t, jwt.RoleAdmin, claims.Role)
}

func TestRunOperatorToken_TTLOverrideAndRandomID(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runOperatorToken([]string{"-role", "SERVICE", "-ttl", "5m"}, testDeps("secret", &out)))

	values := parseOutput(t, out.String())
	assert.NotEmpty(t, values["OPERATOR_ID"])
	assert.Equal(t, jwt.RoleService, values["ROLE"])
	assert.Equal(t, (5 * time.Minute).String(), values["EXPIRES_IN"])
}

func TestRunOperatorToken_Errors(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		secret string
	}{
		{name: "invalid role", args: []string{"-role", "ROOT"}, secret: "secret"},
		{name: "missing secret", args: nil, secret: ""},
		{name: "bad flag", args: []string{"-unknown"}, secret: "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			require.Error(t, runOperatorToken(tt.args, testDeps(tt.secret, &out)))
			assert.Empty(t, out.String())
		})
	}
}

func TestResolveRole(t *testing.T) {
	role, err := resolveRole(" service ")
	require.NoError(t, err)
	assert.Equal(t, jwt.RoleService, role)

	_, err = resolveRole("")
	require.Error(t, err)
}
