package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatchSizer(t *testing.T) {
	t.Parallel()

	t.Run("availability caps required buses", func(t *testing.T) {
		t.Parallel()
		s := NewDispatchSizer(50, 5)
		// avg 500, required ceil(500/50)=10, capped at 8 available
		assert.Equal(t, 8, s.Size(600, 400, 8))
	})

	t.Run("service floor holds when demand is near zero", func(t *testing.T) {
		t.Parallel()
		s := NewDispatchSizer(50, 5)
		assert.Equal(t, 5, s.Size(0, 0, 8))
		assert.Equal(t, 5, s.Size(10, 0, 8))
	})

	t.Run("demand within capacity passes through", func(t *testing.T) {
		t.Parallel()
		s := NewDispatchSizer(50, 2)
		// avg 325, ceil(325/50)=7
		assert.Equal(t, 7, s.Size(300, 350, 20))
	})

	t.Run("exact division needs no extra bus", func(t *testing.T) {
		t.Parallel()
		s := NewDispatchSizer(50, 0)
		assert.Equal(t, 10, s.Size(500, 500, 20))
	})

	t.Run("floor wins even over availability", func(t *testing.T) {
		t.Parallel()
		s := NewDispatchSizer(50, 5)
		assert.Equal(t, 5, s.Size(0, 0, 3))
	})
}
