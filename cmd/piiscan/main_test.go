package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/koustreak/piiscan/internal/cloud"
	"github.com/koustreak/piiscan/internal/config"
	"github.com/koustreak/piiscan/internal/errs"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestClassifyHost(t *testing.T) {
	out, _, err := run(t, "classify-host", "orders.cluster-ro-abc.eu-west-1.rds.amazonaws.com")
	require.NoError(t, err)
	assert.Contains(t, out, "provider:     aws")
	assert.Contains(t, out, "region:       eu-west-1")
	assert.Contains(t, out, "jurisdiction: EU")
}

func TestClassifyHost_JSON(t *testing.T) {
	out, _, err := run(t, "classify-host", "--json", "10.1.2.3")
	require.NoError(t, err)

	var info cloud.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, cloud.ProviderOnPremise, info.Provider)
}

func TestClassifyHost_RequiresArg(t *testing.T) {
	_, _, err := run(t, "classify-host")
	assert.Error(t, err)
}

func TestEngines(t *testing.T) {
	out, _, err := run(t, "engines")
	require.NoError(t, err)
	for _, e := range []string{"mysql", "postgres", "redshift", "sqlserver"} {
		assert.Contains(t, out, e)
	}
	assert.Contains(t, out, "default port 5439")
}

func TestScan_RejectedBeforeConnecting(t *testing.T) {
	tests := []struct {
		name string
		args []string
		kind errs.ErrKind
	}{
		{"unknown mode", []string{"scan", "--engine", "postgres", "--host", "db", "--mode", "turbo"}, errs.ErrKindUnsupported},
		{"unknown engine", []string{"scan", "--engine", "oracle", "--host", "db"}, errs.ErrKindUnsupported},
		{"no engine", []string{"scan", "--host", "db"}, errs.ErrKindInvalidInput},
		{"negative max tables", []string{"plan", "--engine", "mysql", "--host", "db", "--max-tables", "-1"}, errs.ErrKindInvalidInput},
		{"bad format", []string{"plan", "--engine", "mysql", "--host", "db", "--format", "pdf"}, errs.ErrKindInvalidInput},
		{"upload without store", []string{"scan", "--engine", "mysql", "--host", "db", "--upload"}, errs.ErrKindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
			assert.Equal(t, exitUsage, exitCode(err))
		})
	}
}

func TestScan_MissingConfigFile(t *testing.T) {
	_, _, err := run(t, "scan", "--config", t.TempDir()+"/absent.yaml")
	assert.True(t, errs.IsNotFound(err))
	assert.Equal(t, exitError, exitCode(err))
}

func TestFlagsOverrideConfig(t *testing.T) {
	t.Setenv("PIISCAN_DB_HOST", "from-env")
	t.Setenv("PIISCAN_MODE", "deep")

	var cf connFlags
	var sf scanFlags
	var got *config.Config
	cmd := &cobra.Command{
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			got, err = loadConfig(cmd, "", func(c *config.Config) {
				cf.apply(cmd, &c.Connection)
				sf.apply(cmd, c)
			})
			return err
		},
	}
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().String("log-format", "", "")
	cf.AddFlags(cmd)
	sf.AddFlags(cmd, true)
	cmd.SetArgs([]string{"--host", "from-flag", "--port", "6432", "--engine", "pg", "--max-tables", "7", "--log-level", "debug"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "from-flag", got.Connection.Host)
	assert.Equal(t, 6432, got.Connection.Port)
	assert.Equal(t, "pg", got.Connection.Engine)
	assert.Equal(t, "deep", got.Scan.Mode, "unset flags keep env values")
	assert.Equal(t, 7, got.Scan.MaxTables)
	assert.Equal(t, "debug", got.Log.Level)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitCancelled, exitCode(errs.New(errs.ErrKindCancelled, "scan cancelled")))
	assert.Equal(t, exitUsage, exitCode(errs.New(errs.ErrKindUnsupported, "mode")))
	assert.Equal(t, exitError, exitCode(errs.New(errs.ErrKindConnectionFailed, "dial")))
	assert.Equal(t, exitError, exitCode(assert.AnError))
}
