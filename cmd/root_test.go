package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "matrix", "feed", "provenance", "runs"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "mrio-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestStageCommands_Flags(t *testing.T) {
	for _, c := range []string{"run", "matrix", "feed", "provenance"} {
		cmd, _, err := rootCmd.Find([]string{c})
		require.NoError(t, err)
		for _, flagName := range []string{"years", "countries", "conversion", "prefer", "workers", "input", "results"} {
			assert.NotNil(t, cmd.Flags().Lookup(flagName), "%s should have --%s flag", c, flagName)
		}
	}
	assert.NotNil(t, runCmd.Flags().Lookup("stages"))
	assert.Nil(t, matrixCmd.Flags().Lookup("stages"))
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["show"])
	assert.True(t, names["stats"])

	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
}
