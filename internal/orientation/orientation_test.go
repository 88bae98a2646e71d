package orientation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputePoseFromAccel(t *testing.T) {
	p := ComputePoseFromAccel(0, 0, 9.81)
	assert.InDelta(t, 0, p.Roll, 1e-9)
	assert.InDelta(t, 0, p.Pitch, 1e-9)

	p = ComputePoseFromAccel(0, 9.81, 0)
	assert.InDelta(t, 90, p.Roll, 1e-9)

	p = ComputePoseFromAccel(-9.81, 0, 0)
	assert.InDelta(t, 90, p.Pitch, 1e-9)
}

func TestPosture(t *testing.T) {
	assert.Equal(t, PostureFlat, ComputePoseFromAccel(0, 0, 9.81).Posture())
	assert.Equal(t, PostureFlat, ComputePoseFromAccel(0, 0, -9.81).Posture())
	assert.Equal(t, PostureUpright, ComputePoseFromAccel(0, 9.81, 0).Posture())
	assert.Equal(t, PostureUpright, ComputePoseFromAccel(-9.81, 0, 0.5).Posture())
	assert.Equal(t, PostureTilted, ComputePoseFromAccel(0, 6, 6).Posture())
}
