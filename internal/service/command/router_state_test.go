package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	modelComm "clownetagent/internal/model/client"
)

func TestCommandRouter_HandleStateSync(t *testing.T) {
	exec := &fakeExecutor{}
	r := newTestRouter(exec, &recordingSender{})

	assert.NoError(t, r.HandleStateSync(context.Background(), envelope(t, modelComm.EventStateSync, map[string]interface{}{"rooms": []string{"#ops"}})))
	assert.NoError(t, r.HandleStateSync(context.Background(), &modelComm.Envelope{Event: modelComm.EventStateSync}))

	executed, rejected := exec.snapshot()
	assert.Empty(t, executed)
	assert.Empty(t, rejected)
}
