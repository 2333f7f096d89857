package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewListCommand(t *testing.T) {
	cmd := NewListCommand()

	assert.Equal(t, "list", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.NotNil(t, cmd.RunE)
}

func TestNewListCommand_HasJSONFlag(t *testing.T) {
	cmd := NewListCommand()

	flag := cmd.Flags().Lookup("json")
	assert.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestNewListCommand_HasSortFlag(t *testing.T) {
	cmd := NewListCommand()

	flag := cmd.Flags().Lookup("sort")
	assert.NotNil(t, flag)
	assert.Equal(t, "ident", flag.DefValue)
}
