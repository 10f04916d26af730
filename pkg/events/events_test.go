package events

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeEmit(t *testing.T) {
	b := NewBus(zerolog.Nop())

	var got []Event
	b.Subscribe(ToolExecuted, func(evt Event) {
		got = append(got, evt)
	})

	b.Emit(ToolExecuted, map[string]interface{}{"tool": "echo"})

	require.Len(t, got, 1)
	assert.Equal(t, ToolExecuted, got[0].Name)
	assert.Equal(t, "echo", got[0].Fields["tool"])
	assert.WithinDuration(t, time.Now(), got[0].At, time.Second)
}

func TestBus_MultipleSubscribers(t *testing.T) {
	b := NewBus(zerolog.Nop())

	calls := 0
	b.Subscribe(CacheHit, func(Event) { calls++ })
	b.Subscribe(CacheHit, func(Event) { calls++ })

	b.Emit(CacheHit, nil)
	assert.Equal(t, 2, calls)
}

func TestBus_NameIsolation(t *testing.T) {
	b := NewBus(zerolog.Nop())

	hits := 0
	b.Subscribe(CacheHit, func(Event) { hits++ })

	b.Emit(CacheMiss, nil)
	b.Emit(ErrorRaised, nil)
	assert.Equal(t, 0, hits)

	b.Emit(CacheHit, nil)
	assert.Equal(t, 1, hits)
}

func TestBus_EmitWithoutSubscribers(t *testing.T) {
	b := NewBus(zerolog.Nop())
	assert.NotPanics(t, func() {
		b.Emit(ToolExecuted, map[string]interface{}{"tool": "echo"})
	})
}

func TestBus_NilHandlerIgnored(t *testing.T) {
	b := NewBus(zerolog.Nop())
	b.Subscribe(ToolExecuted, nil)
	assert.NotPanics(t, func() {
		b.Emit(ToolExecuted, nil)
	})
}

func TestBus_PanickingObserverIsSkipped(t *testing.T) {
	b := NewBus(zerolog.Nop())

	survived := false
	b.Subscribe(ErrorRaised, func(Event) { panic("observer bug") })
	b.Subscribe(ErrorRaised, func(Event) { survived = true })

	assert.NotPanics(t, func() {
		b.Emit(ErrorRaised, nil)
	})
	assert.True(t, survived, "later observers must still run after a panic")
}
