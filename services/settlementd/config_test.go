package settlementd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settlementd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_SETTLEMENTD_SECRET", "s3cret")
	path := writeConfig(t, `
chain_id: "187"
campaign_contract: "0x0e02000000000000000000000000000000000000"
signer:
  keystore: /var/lib/settlementd/authority.json
auth:
  hmac_secret_env: TEST_SETTLEMENTD_SECRET
  clock_skew: 30s
node:
  endpoint: http://127.0.0.1:8080
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":7090", cfg.ListenAddress)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "settlementd.db", cfg.Database.DSN)
	require.Equal(t, 64, cfg.MaxBatch)
	require.Equal(t, "s3cret", cfg.Auth.HMACSecret)
	require.Equal(t, 30*time.Second, cfg.Auth.ClockSkew.Duration)
	require.Equal(t, 5*time.Second, cfg.Node.Timeout.Duration)
	require.Equal(t, "SETTLEMENTD_PASSPHRASE", cfg.Signer.PassphraseEnv)

	domain, err := cfg.Domain()
	require.NoError(t, err)
	require.Equal(t, int64(187), domain.ChainID.Int64())
	require.Equal(t, [20]byte{0x0E, 0x02}, domain.Contract)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	base := `
chain_id: "187"
campaign_contract: "0x0e02000000000000000000000000000000000000"
signer:
  keystore: key.json
auth:
  hmac_secret: s3cret
`
	cases := map[string]string{
		"chain id":     "chain_id: \"0\"\ncampaign_contract: \"0x0e02000000000000000000000000000000000000\"\nsigner:\n  keystore: k\nauth:\n  hmac_secret: s\n",
		"driver":       base + "database:\n  driver: mysql\n",
		"max batch":    base + "max_batch: 100000\n",
		"unknown":      base + "surprise: true\n",
		"duration":     base + "node:\n  timeout: soon\n",
		"empty secret": "chain_id: \"187\"\ncampaign_contract: \"0x0e02000000000000000000000000000000000000\"\nsigner:\n  keystore: k\nauth:\n  hmac_secret_env: TEST_SETTLEMENTD_UNSET\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}
