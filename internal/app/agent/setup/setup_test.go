package setup

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clownetagent/internal/app/agent/router"
	"clownetagent/internal/config"
	"clownetagent/internal/core/model"
	modelComm "clownetagent/internal/model/client"
	"clownetagent/internal/service/client"
	"clownetagent/internal/service/task"
)

func loadTestConfig(t *testing.T, role string) *config.Config {
	t.Helper()
	cfg, err := config.NewConfigLoader(t.TempDir(), "CLOWNETSETUPTEST").
		WithOverride("agent.role", role).
		WithOverride("audit.file_path", filepath.Join(t.TempDir(), "traffic.jsonl")).
		LoadConfig()
	require.NoError(t, err)
	return cfg
}

func TestSetupWiring(t *testing.T) {
	tests := []struct {
		name        string
		role        string
		auditActive bool
	}{
		{name: "worker", role: config.RoleWorker, auditActive: false},
		{name: "warden", role: config.RoleWarden, auditActive: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadTestConfig(t, tt.role)
			identity := model.NewAgentIdentity(cfg.Agent.ID, cfg.Agent.Hostname, cfg.Agent.Role)

			relay, err := SetupRelay(cfg, identity)
			require.NoError(t, err)
			core := SetupCore(cfg, identity, relay)
			defer core.Auditor.Close()

			events := relay.Dispatcher.Events()
			sort.Strings(events)
			assert.Equal(t, []string{
				modelComm.EventCommand,
				modelComm.EventDirectMessage,
				modelComm.EventMessage,
				modelComm.EventStateSync,
			}, events)

			assert.Equal(t, tt.auditActive, core.Auditor.Stats().Enabled)
			assert.False(t, relay.Connection.IsConnected())
			assert.Equal(t, identity.ID(), relay.Connection.Identity().ID())
		})
	}
}

func TestSetupRelayRejectsEmptyURL(t *testing.T) {
	cfg := loadTestConfig(t, config.RoleWorker)
	cfg.Relay.URL = ""
	_, err := SetupRelay(cfg, model.NewAgentIdentity("a", "h", config.RoleWorker))
	assert.Error(t, err)
}

type staticStatus struct{}

func (staticStatus) Health() router.HealthReport {
	return router.HealthReport{Connection: client.SessionSnapshot{State: client.StateDisconnected}}
}
func (staticStatus) ListTasks() []task.TaskRecord { return nil }
func (staticStatus) GetTask(string) (task.TaskRecord, bool) { return task.TaskRecord{}, false }

func TestSetupServer(t *testing.T) {
	cfg := loadTestConfig(t, config.RoleWorker)
	cfg.Server.Mode = "test"
	cfg.Server.APIKey = "secret"

	server := SetupServer(cfg, staticStatus{})
	assert.Equal(t, "127.0.0.1:18790", server.HTTPServer.Addr)
	assert.Equal(t, cfg.Server.ReadTimeout, server.HTTPServer.ReadTimeout)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	w := httptest.NewRecorder()
	server.HTTPServer.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
