package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modelComm "clownetagent/internal/model/client"
)

func TestDispatcher_Dispatch(t *testing.T) {
	d := NewDispatcher()

	var handled []string
	d.Handle(modelComm.EventMessage, func(ctx context.Context, env *modelComm.Envelope) error {
		handled = append(handled, env.Event)
		return nil
	})
	d.Handle(modelComm.EventCommand, func(ctx context.Context, env *modelComm.Envelope) error {
		return errors.New("boom")
	})

	var observed []string
	d.Observe(func(env *modelComm.Envelope) { observed = append(observed, env.Event) })

	require.NoError(t, d.Dispatch(context.Background(), &modelComm.Envelope{Event: modelComm.EventMessage}))
	assert.EqualError(t, d.Dispatch(context.Background(), &modelComm.Envelope{Event: modelComm.EventCommand}), "boom")

	err := d.Dispatch(context.Background(), &modelComm.Envelope{Event: "mystery"})
	assert.ErrorIs(t, err, modelComm.ErrUnknownEvent)

	assert.Equal(t, []string{modelComm.EventMessage}, handled)
	assert.Equal(t, []string{modelComm.EventMessage, modelComm.EventCommand, "mystery"}, observed)
	assert.ElementsMatch(t, []string{modelComm.EventMessage, modelComm.EventCommand}, d.Events())
}

func TestDispatcher_RecoversFromPanics(t *testing.T) {
	d := NewDispatcher()
	d.Handle(modelComm.EventStateSync, func(ctx context.Context, env *modelComm.Envelope) error {
		panic("handler exploded")
	})
	calls := 0
	d.Handle(modelComm.EventMessage, func(ctx context.Context, env *modelComm.Envelope) error {
		calls++
		return nil
	})

	err := d.Dispatch(context.Background(), &modelComm.Envelope{Event: modelComm.EventStateSync})
	assert.ErrorContains(t, err, "handler exploded")

	require.NoError(t, d.Dispatch(context.Background(), &modelComm.Envelope{Event: modelComm.EventMessage}))
	assert.Equal(t, 1, calls)
}
