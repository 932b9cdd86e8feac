package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clownetagent/internal/core/model"
	modelComm "clownetagent/internal/model/client"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    model.Instruction
	}{
		{"exec", "/exec uptime", model.ShellExec("uptime")},
		{"exec keeps pipeline", "/exec  ls -la | grep go  ", model.ShellExec("ls -la | grep go")},
		{"join", "/join #ops", model.JoinRoom("#ops")},
		{"join ignores trailing words", "/join #ops now", model.JoinRoom("#ops")},
		{"relay", "/relay #ops status?", model.RelayMessage("#ops", "status?")},
		{"relay keeps message spacing", "/relay bob hello there", model.RelayMessage("bob", "hello there")},
		{"brain", "what is the uptime?", model.BrainDelegate("what is the uptime?")},
		{"unknown sigil goes to brain", "/restart", model.BrainDelegate("/restart")},
		{"sigil must be a whole word", "/execute now", model.BrainDelegate("/execute now")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantKind  model.InstructionKind
		wantUsage string
	}{
		{"join without room", "/join", model.InstructionJoinRoom, UsageJoin},
		{"join without hash", "/join ops", model.InstructionJoinRoom, UsageJoin},
		{"join bare hash", "/join #", model.InstructionJoinRoom, UsageJoin},
		{"relay without args", "/relay", model.InstructionRelayMessage, UsageRelay},
		{"relay without message", "/relay bob", model.InstructionRelayMessage, UsageRelay},
		{"relay with blank message", "/relay bob    ", model.InstructionRelayMessage, UsageRelay},
		{"exec without command", "/exec", model.InstructionShellExec, UsageExec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.content)

			var verr *modelComm.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantUsage, verr.Usage)
			assert.Equal(t, tt.wantKind, got.Kind)
		})
	}
}

func TestHasSigil(t *testing.T) {
	assert.True(t, HasSigil("/exec ls"))
	assert.True(t, HasSigil("  /join #ops"))
	assert.True(t, HasSigil("/relay"))
	assert.False(t, HasSigil("hello"))
	assert.False(t, HasSigil("/update"))
	assert.False(t, HasSigil(""))
}
