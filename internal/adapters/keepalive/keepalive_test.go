package keepalive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetBackgroundMode(t *testing.T) {
	k := New(false)
	assert.False(t, k.Enabled())

	k.SetBackgroundMode(true)
	k.SetBackgroundMode(true)
	assert.True(t, k.Enabled())
	assert.EqualValues(t, 1, k.Changes())

	k.SetBackgroundMode(false)
	assert.False(t, k.Enabled())
	assert.EqualValues(t, 2, k.Changes())
}
