package cmd

import (
	"testing"

	"github.com/localscan/scanhost/internal/core/config"
	"github.com/stretchr/testify/assert"
)

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "scanhostd", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.True(t, cmd.SilenceUsage)
}

func TestNewRootCommand_HasInterfaceFlag(t *testing.T) {
	cmd := NewRootCommand()

	flag := cmd.PersistentFlags().Lookup("interface")
	assert.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)
	assert.Contains(t, flag.Usage, "Network interface")
}

func TestNewRootCommand_HasLogLevelFlag(t *testing.T) {
	cmd := NewRootCommand()

	flag := cmd.PersistentFlags().Lookup("log-level")
	assert.NotNil(t, flag)
}

func TestAddCommands(t *testing.T) {
	root := NewRootCommand()
	AddCommands(root)

	expectedCommands := []string{"list", "scan"}
	for _, name := range expectedCommands {
		cmd, _, err := root.Find([]string{name})
		assert.NoError(t, err, "command %s should exist", name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestAddCommands_Count(t *testing.T) {
	root := NewRootCommand()
	AddCommands(root)

	assert.True(t, root.HasSubCommands())
	assert.Len(t, root.Commands(), 2)
}

func TestNewRootCommand_HasAllPersistentFlags(t *testing.T) {
	cmd := NewRootCommand()

	settings := config.GlobalSettings()
	for _, s := range settings {
		if s.FlagName == "" || !s.Sources[config.SourceFlag] {
			continue
		}
		t.Run(s.FlagName, func(t *testing.T) {
			flag := cmd.PersistentFlags().Lookup(s.FlagName)
			assert.NotNil(t, flag, "persistent flag %s should be present on root command", s.FlagName)
		})
	}
}
