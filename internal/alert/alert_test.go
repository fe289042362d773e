package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingEmitter struct{ events []Event }

func (c *collectingEmitter) Emit(e Event) { c.events = append(c.events, e) }

func TestSinkEmitAndHistory(t *testing.T) {
	collector := &collectingEmitter{}
	s := NewSink(2, collector)

	s.Info("tick", "first")
	s.Warning("tick", "second")
	s.Error("tick", "third")

	history := s.History()
	require.Len(t, history, 2, "ring buffer caps at capacity")
	assert.Equal(t, "second", history[0].Message)
	assert.Equal(t, "third", history[1].Message)

	require.Len(t, collector.events, 3, "every emit reaches the emitter regardless of ring capacity")
}

func TestSinkEmitterPanicIsIsolated(t *testing.T) {
	s := NewSink(10, panicEmitter{}, &collectingEmitter{})
	assert.NotPanics(t, func() { s.Critical("boom", "should not propagate") })
}

type panicEmitter struct{}

func (panicEmitter) Emit(Event) { panic("emitter failure must not block the trading path") }
