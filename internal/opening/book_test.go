package opening

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectExactLine(t *testing.T) {
	op := Detect([]string{"e2e4", "c7c5"})
	require.NotNil(t, op)
	// The game is still inside the Najdorf line, which is longer.
	assert.Equal(t, "B90", op.ECO)
}

func TestDetectDivergedLine(t *testing.T) {
	op := Detect([]string{"e2e4", "c7c5", "g1f3", "b8c6"})
	require.NotNil(t, op)
	assert.Equal(t, "Sicilian Defence", op.Name)
}

func TestDetectLongestWins(t *testing.T) {
	op := Detect([]string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5", "a7a6"})
	require.NotNil(t, op)
	assert.Equal(t, "Ruy Lopez", op.Name)
}

func TestDetectQueensPawn(t *testing.T) {
	op := Detect([]string{"d2d4", "d7d5", "c1f4", "g8f6"})
	require.NotNil(t, op)
	assert.Equal(t, "London System", op.Name)
}

func TestDetectNoMatch(t *testing.T) {
	assert.Nil(t, Detect(nil))
	assert.Nil(t, Detect([]string{"a2a3"}))
}
