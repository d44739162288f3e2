package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigil-sys/vigil/internal/config"
	"github.com/vigil-sys/vigil/internal/engine"
	"github.com/vigil-sys/vigil/internal/models"
)

func testAssessment(issueCount int) models.ProactiveAssessment {
	a := models.ProactiveAssessment{
		AssessmentID: "a-1",
		Timestamp:    time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		HealthScore:  80,
		MaxSeverity:  models.SeverityWarning,
		WarningCount: issueCount,
	}
	for i := 0; i < issueCount; i++ {
		a.CorrelatedIssues = append(a.CorrelatedIssues, models.CorrelatedIssue{
			CorrelationID: "RES-001:memory",
			Subject:       "memory",
			Severity:      models.SeverityWarning,
			Confidence:    85,
		})
	}
	return a
}

func newTestServer(t *testing.T, publish *models.ProactiveAssessment) *httptest.Server {
	t.Helper()
	publisher := engine.NewPublisher()
	if publish != nil {
		publisher.Publish(*publish)
	}
	handler := NewHandler(publisher, config.DisplayConfig{MaxIssues: 10, MaxTrends: 10, MaxRecoveries: 10}, nil)
	srv := httptest.NewServer(handler.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestAssessmentNotFoundBeforeFirstCycle(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/v1/assessment")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAssessmentReturned(t *testing.T) {
	assessment := testAssessment(1)
	srv := newTestServer(t, &assessment)

	resp, err := http.Get(srv.URL + "/v1/assessment")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got models.ProactiveAssessment
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "a-1", got.AssessmentID)
	assert.Equal(t, 80, got.HealthScore)
	assert.Len(t, got.CorrelatedIssues, 1)
}

func TestAssessmentCappedToDisplayLimit(t *testing.T) {
	assessment := testAssessment(25)
	srv := newTestServer(t, &assessment)

	resp, err := http.Get(srv.URL + "/v1/assessment")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got models.ProactiveAssessment
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Len(t, got.CorrelatedIssues, 10)
	// The counts still reflect the full set.
	assert.Equal(t, 25, got.WarningCount)
}

func TestIssuesTopParameter(t *testing.T) {
	assessment := testAssessment(8)
	srv := newTestServer(t, &assessment)

	resp, err := http.Get(srv.URL + "/v1/issues?top=3")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		AssessmentID string                   `json:"assessment_id"`
		Issues       []models.CorrelatedIssue `json:"issues"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "a-1", got.AssessmentID)
	assert.Len(t, got.Issues, 3)
}

func TestIssuesRejectsBadTop(t *testing.T) {
	assessment := testAssessment(1)
	srv := newTestServer(t, &assessment)

	for _, v := range []string{"0", "-1", "abc"} {
		resp, err := http.Get(srv.URL + "/v1/issues?top=" + v)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "top=%s", v)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/v1/assessment", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
