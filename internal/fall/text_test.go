package fall

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		D Decision `json:"decision"`
		S State    `json:"state"`
	}{DecisionFallConfirmed, StateFreeFall})
	require.NoError(t, err)
	assert.JSONEq(t, `{"decision":"fall_confirmed","state":"free_fall_detected"}`, string(b))

	var d Decision
	require.NoError(t, d.UnmarshalText([]byte("reset")))
	assert.Equal(t, DecisionReset, d)
	require.Error(t, d.UnmarshalText([]byte("bogus")))

	var s State
	require.Error(t, s.UnmarshalText([]byte("falling")))
}
