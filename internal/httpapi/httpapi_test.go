package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsi-contrib/autoscaler/internal/audit"
	"github.com/jitsi-contrib/autoscaler/internal/cloud"
	"github.com/jitsi-contrib/autoscaler/internal/group"
	"github.com/jitsi-contrib/autoscaler/internal/metricsloop"
	"github.com/jitsi-contrib/autoscaler/internal/model"
	"github.com/jitsi-contrib/autoscaler/internal/reconfigure"
	"github.com/jitsi-contrib/autoscaler/internal/shutdown"
	"github.com/jitsi-contrib/autoscaler/internal/store"
	"github.com/jitsi-contrib/autoscaler/internal/tracker"
)

const testSecret = "s3cr3t"

func newTestServer(t *testing.T) (*Server, store.InstanceStore) {
	t.Helper()
	st := store.NewLocalStore()
	auditLog := audit.New(st, time.Hour)
	groups := group.New(st)
	shutdownMgr := shutdown.New(st, auditLog, time.Hour)
	reconfMgr := reconfigure.New(st, auditLog, time.Hour)
	ttl := store.TTLConfig{IdleTTL: time.Hour, ProvisioningTTL: time.Hour, ShutdownStatusTTL: time.Hour}
	trk := tracker.New(st, shutdownMgr, reconfMgr, auditLog, ttl, time.Hour)
	clouds := map[string]cloud.Manager{}
	report := metricsloop.NewGroupReport(groups, trk, shutdownMgr, reconfMgr, st, clouds)

	require.NoError(t, groups.Upsert(context.Background(), model.InstanceGroup{
		Name:              "recorders",
		Type:              model.InstanceTypeRecorder,
		GracePeriodTTLSec: 60,
		ScalingOptions:    model.ScalingOptions{MinDesired: 1, MaxDesired: 10, DesiredCount: 3},
	}))

	auth := NewSharedSecretAuthenticator(testSecret)
	srv := New(groups, trk, shutdownMgr, reconfMgr, auditLog, report, auth,
		Config{ProtectedTTLDefault: time.Hour}, nil)
	return srv, st
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testSecret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminEndpointsFailClosedWithoutAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/groups", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetAndListGroups(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/groups", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var groups []model.InstanceGroup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &groups))
	require.Len(t, groups, 1)

	rec = doRequest(t, h, http.MethodGet, "/groups/recorders", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/groups/missing", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutGroupRejectsNameMismatch(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPut, "/groups/recorders", model.InstanceGroup{
		Name: "bridges", ScalingOptions: model.ScalingOptions{MinDesired: 1, MaxDesired: 2, DesiredCount: 1},
	}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutDesiredValidatesAndArmsGrace(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	desired := 5
	rec := doRequest(t, h, http.MethodPut, "/groups/recorders/desired", desiredUpdate{DesiredCount: &desired}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.InstanceGroup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 5, got.ScalingOptions.DesiredCount)

	allowed, err := srv.groups.IsAutoscalingAllowed(context.Background(), "recorders")
	require.NoError(t, err)
	assert.False(t, allowed, "a successful desired update must arm the autoscale grace period")

	tooHigh := 999
	rec = doRequest(t, h, http.MethodPut, "/groups/recorders/desired", desiredUpdate{DesiredCount: &tooHigh}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLaunchProtectedBumpsDesiredAndProtects(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/groups/recorders/actions/launch-protected",
		launchProtectedRequest{Count: 2, ProtectedTTLSec: 120}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.InstanceGroup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 5, got.ScalingOptions.DesiredCount)

	protected, err := srv.groups.IsScaleDownProtected(context.Background(), "recorders")
	require.NoError(t, err)
	assert.True(t, protected)
}

func TestResetGroupsAppliesSeedWithoutClobberingDesired(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.seedGroups = []model.InstanceGroup{
		{Name: "recorders", ScalingOptions: model.ScalingOptions{MinDesired: 1, MaxDesired: 20, DesiredCount: 1}},
		{Name: "bridges", Type: model.InstanceTypeBridge, ScalingOptions: model.ScalingOptions{MinDesired: 0, MaxDesired: 5, DesiredCount: 1}},
	}
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/groups/reset", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	g, err := srv.groups.Get(context.Background(), "recorders")
	require.NoError(t, err)
	assert.Equal(t, 3, g.ScalingOptions.DesiredCount, "existing group's desiredCount must survive a reset")
	assert.Equal(t, 20, g.ScalingOptions.MaxDesired, "every other seed field must be re-applied on reset")

	newGroup, err := srv.groups.Get(context.Background(), "bridges")
	require.NoError(t, err)
	require.NotNil(t, newGroup, "a seed group absent from the store must be created")
}

func TestStatsAuthenticatedAndIngests(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/stats", model.StatsReport{
		InstanceID:   "i-1",
		InstanceType: model.InstanceTypeRecorder,
		Instance:     model.Metadata{Group: "recorders"},
		Stats:        map[string]any{"busyStatus": "idle", "health": "healthy"},
	}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/stats", model.StatsReport{
		InstanceID:   "i-1",
		InstanceType: model.InstanceTypeRecorder,
		Instance:     model.Metadata{Group: "recorders"},
		Stats:        map[string]any{"busyStatus": "idle", "health": "healthy"},
	}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var verdict model.PollVerdict
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verdict))
	assert.False(t, verdict.Shutdown)
	assert.False(t, verdict.Reconfigure)

	states, err := st.FetchInstanceStates(context.Background(), "recorders")
	require.NoError(t, err)
	require.Len(t, states, 1)
}

func TestStatusNeverFailsOnMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/status", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var verdict model.PollVerdict
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verdict))
	assert.False(t, verdict.Shutdown)
}

func TestPollReturnsVerdictWithoutIngesting(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Handler()

	require.NoError(t, srv.shutdown.SetShutdownStatus(context.Background(), "recorders", []string{"i-2"}))

	rec := doRequest(t, h, http.MethodPost, "/poll", pollRequest{InstanceID: "i-2"}, false)
	require.Equal(t, http.StatusOK, rec.Code)

	var verdict model.PollVerdict
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verdict))
	assert.True(t, verdict.Shutdown)

	states, err := st.FetchInstanceStates(context.Background(), "recorders")
	require.NoError(t, err)
	assert.Empty(t, states, "poll must not ingest any state")
}

func TestGroupReportAndAuditEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	doRequest(t, h, http.MethodPost, "/stats", model.StatsReport{
		InstanceID:   "i-3",
		InstanceType: model.InstanceTypeRecorder,
		Instance:     model.Metadata{Group: "recorders"},
		Stats:        map[string]any{"busyStatus": "idle", "health": "healthy"},
	}, true)

	rec := doRequest(t, h, http.MethodGet, "/groups/recorders/report", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	// Decode only the scalar aggregate fields -- Report.Rows carries a
	// model.Status interface value that encoding/json cannot round-trip
	// without a concrete type hint, which is fine for a wire response
	// (the side-car side never needs to decode it back) but not for this
	// assertion.
	var report struct {
		AvailableCount int `json:"availableCount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.AvailableCount)

	rec = doRequest(t, h, http.MethodGet, "/groups/recorders/audit", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var records map[string]model.InstanceAuditRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Contains(t, records, "i-3")
}
