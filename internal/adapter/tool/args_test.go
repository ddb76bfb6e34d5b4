package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeArgs(t *testing.T) {
	p, err := decodeArgs[weatherParams](json.RawMessage(`{"location":"Seoul"}`))
	require.NoError(t, err)
	assert.Equal(t, "Seoul", p.Location)

	_, err = decodeArgs[weatherParams](json.RawMessage(`{"location":"Seoul","days":3}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "days")

	_, err = decodeArgs[exchangeParams](nil)
	require.NoError(t, err)

	_, err = decodeArgs[weatherParams](json.RawMessage(`[1,2]`))
	require.Error(t, err)
}
