package task

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"clownetagent/internal/core/model"
)

func TestTracker_EvictsFinishedRecords(t *testing.T) {
	tr := NewTracker(2)

	running := model.ShellExec("sleep 100")
	running.TaskID = "long"
	tr.Start(running)

	for i := 0; i < 3; i++ {
		instr := model.JoinRoom("#ops")
		instr.TaskID = fmt.Sprintf("t-%d", i)
		id := tr.Start(instr)
		tr.Finish(id, &model.TaskResult{Status: model.TaskStatusSuccess})
	}

	_, ok := tr.Get("long")
	assert.True(t, ok, "running records are never evicted")
	assert.LessOrEqual(t, len(tr.List()), 3)
	assert.Equal(t, 1, tr.Stats().Running)
	assert.Equal(t, 3, tr.Stats().Completed)
}
