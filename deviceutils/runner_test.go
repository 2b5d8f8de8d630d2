package deviceutils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_Stdin(t *testing.T) {
	out, err := ExecRunner{}.Run(context.Background(), "passphrase", "sh", "-c", "cat")
	require.NoError(t, err)
	assert.Equal(t, "passphrase", string(out))
}

func TestExecRunner_ErrorIncludesStderr(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), "", "sh", "-c", "echo 'device busy' >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device busy")
	assert.Contains(t, err.Error(), "sh failed")
}

func TestExecRunner_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ExecRunner{}.Run(ctx, "", "sh", "-c", "sleep 5")
	assert.Error(t, err)
}
