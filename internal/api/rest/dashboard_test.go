package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modbusmon/modbusmon/internal/alarms"
	"github.com/modbusmon/modbusmon/internal/config"
	"github.com/modbusmon/modbusmon/internal/interfaces"
	"github.com/modbusmon/modbusmon/internal/modbus"
	"github.com/modbusmon/modbusmon/internal/poller"
	"github.com/modbusmon/modbusmon/internal/snapshot"
	"github.com/modbusmon/modbusmon/internal/storage"
	"github.com/modbusmon/modbusmon/internal/tags"
)

// fakeLifecycle serves handlers that only need the registry and the
// snapshot store.
type fakeLifecycle struct {
	registry  *tags.Registry
	snapshots *snapshot.Store
}

func (f *fakeLifecycle) Config() *config.Config                    { return &config.Config{} }
func (f *fakeLifecycle) Storage() *storage.PostgresClient          { return nil }
func (f *fakeLifecycle) Registry() *tags.Registry                  { return f.registry }
func (f *fakeLifecycle) Snapshots() *snapshot.Store                { return f.snapshots }
func (f *fakeLifecycle) Scheduler() *poller.Scheduler              { return nil }
func (f *fakeLifecycle) AlarmEngine() *alarms.Engine               { return nil }
func (f *fakeLifecycle) GetCurrentStatus() interfaces.SystemStatus { return interfaces.SystemStatus{} }
func (f *fakeLifecycle) Shutdown(ctx context.Context) error        { return nil }

func TestDashboardTagsOmitsTSForPendingTags(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reg := tags.NewRegistry()
	require.NoError(t, reg.UpsertDevice(tags.Device{
		ID: 1, Name: "plc", Protocol: tags.ProtocolTCP,
		Host: "192.0.2.1", Port: 502, UnitID: 1,
		Timeout: time.Second, TimeoutMS: 1000,
		ByteOrder: "BigEndian", WordOrder: "AB", Active: true,
	}))
	_, err := reg.UpsertTag(tags.Tag{
		ID: 10, DeviceID: 1, Name: "polled", Address: "40001",
		Datatype: "uint16", Scale: 1, Group: "Group1",
	})
	require.NoError(t, err)
	_, err = reg.UpsertTag(tags.Tag{
		ID: 11, DeviceID: 1, Name: "pending", Address: "40002",
		Datatype: "uint16", Scale: 1, Group: "Group1",
	})
	require.NoError(t, err)

	store := snapshot.NewStore()
	store.Update(snapshot.Entry{
		TagID: 10, Value: snapshot.Numeric(21.5), Raw: 215,
		Timestamp: time.UnixMilli(1_700_000_000_000), Status: modbus.StatusOK,
	})

	s := &Server{
		router: gin.New(),
		lm:     &fakeLifecycle{registry: reg, snapshots: store},
		logger: zap.NewNop(),
	}
	s.router.GET("/api/tags", s.dashboardTags)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tags", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Tags []map[string]interface{} `json:"tags"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Tags, 2)

	rows := make(map[float64]map[string]interface{}, 2)
	for _, row := range body.Tags {
		rows[row["id"].(float64)] = row
	}

	polled := rows[10]
	assert.Equal(t, float64(1_700_000_000_000), polled["ts"])
	assert.Equal(t, "ok", polled["status"])

	pending := rows[11]
	assert.Equal(t, "pending", pending["status"])
	assert.Equal(t, "--", pending["value"])
	_, hasTS := pending["ts"]
	assert.False(t, hasTS, "never-polled tags carry no timestamp")
}
