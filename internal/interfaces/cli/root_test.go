package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommand_Creation(t *testing.T) {
	cmd := NewRootCommand(&CLIContext{})

	assert.Equal(t, "patentsearch", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.Contains(t, cmd.Version, Version)
	assert.True(t, cmd.SilenceUsage)
	assert.True(t, cmd.SilenceErrors)
}

func TestNewRootCommand_SubcommandsMounted(t *testing.T) {
	cmd := NewRootCommand(&CLIContext{})

	names := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	assert.Contains(t, names, "ingest")
	assert.Contains(t, names, "search")
}

func TestGetCLIContext_Success(t *testing.T) {
	cliCtx := &CLIContext{}
	cmd := NewRootCommand(cliCtx)
	cmd.SetArgs([]string{"search", "--query", ""})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	// Running triggers PersistentPreRunE, which stashes cliCtx on the
	// executing subcommand's context; search then fails its own validation
	// before touching it.
	_ = cmd.Execute()

	searchCmd, _, err := cmd.Find([]string{"search"})
	require.NoError(t, err)
	found, err := GetCLIContext(searchCmd)
	require.NoError(t, err)
	assert.Same(t, cliCtx, found)
}

func TestGetCLIContext_NilContext(t *testing.T) {
	cmd := NewRootCommand(&CLIContext{})
	cmd.SetContext(nil)

	_, err := GetCLIContext(cmd)
	assert.Error(t, err)
}

func TestGetCLIContext_MissingContext(t *testing.T) {
	cmd := NewRootCommand(&CLIContext{})
	cmd.SetContext(context.Background())

	_, err := GetCLIContext(cmd)
	assert.Error(t, err)
}

func TestPrintError_WritesToStderr(t *testing.T) {
	cmd := NewRootCommand(&CLIContext{})
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)

	PrintError(cmd, assert.AnError)
	assert.Contains(t, stderr.String(), assert.AnError.Error())
}

func TestPrintError_NilErrorIsNoop(t *testing.T) {
	cmd := NewRootCommand(&CLIContext{})
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)

	PrintError(cmd, nil)
	assert.Empty(t, stderr.String())
}
