package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smaq/smaq/internal/model"
	"github.com/smaq/smaq/internal/store"
)

const sampleCSV = "Open,High,Low,Close\n1,2,0.5,1\n2,3,1.5,2\n3,4,2.5,3\n4,5,3.5,4\n"

func submitRaw(t *testing.T, baseURL, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(baseURL+"/v1/jobs", "text/csv", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func submitMultipart(t *testing.T, baseURL, field, body string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "prices.csv")
	require.NoError(t, err)
	_, err = io.WriteString(fw, body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(baseURL+"/v1/jobs", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func decodeSubmit(t *testing.T, resp *http.Response) submitResponse {
	t.Helper()
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var sr submitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sr))
	return sr
}

func TestSubmitRawCSVCompletes(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sr := decodeSubmit(t, submitRaw(t, ts.URL, sampleCSV))
	assert.Positive(t, sr.ID)
	assert.Equal(t, model.StatusPending, sr.Status)
	assert.Equal(t, fmt.Sprintf("/v1/jobs/%d/download", sr.ID), sr.DownloadPath)

	job := waitForStatus(t, ts.URL, sr.ID)
	assert.Equal(t, model.StatusCompleted, job.Status)
	assert.Equal(t, 4, job.InputLen)
	assert.Equal(t, "sma", job.Engine)
	assert.Equal(t, sr.DownloadPath, job.DownloadPath)

	resp, err := http.Get(ts.URL + sr.DownloadPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename=Output.csv`)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "SMA\n1\n1.5\n2\n3\n", string(body))
}

func TestSubmitMultipartCompletes(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sr := decodeSubmit(t, submitMultipart(t, ts.URL, "file", sampleCSV))
	job := waitForStatus(t, ts.URL, sr.ID)
	assert.Equal(t, model.StatusCompleted, job.Status)
}

func TestSubmitIdenticalInputsGetDistinctJobs(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	a := decodeSubmit(t, submitRaw(t, ts.URL, sampleCSV))
	b := decodeSubmit(t, submitRaw(t, ts.URL, sampleCSV))
	assert.Greater(t, b.ID, a.ID)

	assert.Equal(t, model.StatusCompleted, waitForStatus(t, ts.URL, a.ID).Status)
	assert.Equal(t, model.StatusCompleted, waitForStatus(t, ts.URL, b.ID).Status)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name string
		resp func() *http.Response
	}{
		{"empty raw body", func() *http.Response { return submitRaw(t, ts.URL, "") }},
		{"header only", func() *http.Response { return submitRaw(t, ts.URL, "open,high,low,close\n") }},
		{"missing column", func() *http.Response { return submitRaw(t, ts.URL, "open,high,close\n1,2,3\n") }},
		{"not a number", func() *http.Response { return submitRaw(t, ts.URL, "open,high,low,close\n1,2,x,4\n") }},
		{"wrong multipart field", func() *http.Response { return submitMultipart(t, ts.URL, "upload", sampleCSV) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.resp()
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var errResp map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
			assert.NotEmpty(t, errResp["error"])
		})
	}
}

func TestSubmitRecordsUploadMetrics(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	decodeSubmit(t, submitRaw(t, ts.URL, sampleCSV))
	resp := submitRaw(t, ts.URL, "")
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Contains(t, string(body), "smaq_job_upload_records_count")
	assert.Contains(t, string(body), `smaq_job_uploads_rejected_total{reason="empty"}`)
}

func TestSubmitTooLarge(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.opts.MaxUploadBytes = 64
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := "open,high,low,close\n" + strings.Repeat("1,2,3,4\n", 100)
	resp := submitRaw(t, ts.URL, body)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestFailedJobHasNoDownload(t *testing.T) {
	srv := newTestServer(t, failingEngine{})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sr := decodeSubmit(t, submitRaw(t, ts.URL, sampleCSV))
	job := waitForStatus(t, ts.URL, sr.ID)
	assert.Equal(t, model.StatusFailed, job.Status)
	assert.Empty(t, job.DownloadPath)
	assert.Contains(t, job.Error, "internal")

	resp, err := http.Get(ts.URL + sr.DownloadPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPendingJob(t *testing.T) {
	gate := newGateEngine()
	srv := newTestServer(t, gate)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sr := decodeSubmit(t, submitRaw(t, ts.URL, sampleCSV))

	resp, err := http.Get(fmt.Sprintf("%s/v1/jobs/%d", ts.URL, sr.ID))
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, model.StatusPending, body["status"])
	assert.NotContains(t, body, "download_path")

	resp, err = http.Get(ts.URL + sr.DownloadPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	close(gate.release)
	assert.Equal(t, model.StatusCompleted, waitForStatus(t, ts.URL, sr.ID).Status)
}

func TestGetJobNotFound(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, path := range []string{"/v1/jobs/999", "/v1/jobs/abc", "/v1/jobs/999/download", "/v1/jobs/999/events"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestListJobs(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var ids []int64
	for i := 0; i < 3; i++ {
		ids = append(ids, decodeSubmit(t, submitRaw(t, ts.URL, sampleCSV)).ID)
	}
	for _, id := range ids {
		waitForStatus(t, ts.URL, id)
	}

	resp, err := http.Get(ts.URL + "/v1/jobs?limit=2&offset=0")
	require.NoError(t, err)
	defer resp.Body.Close()

	var list listJobsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 3, list.Total)
	assert.Equal(t, 2, list.Limit)
	require.Len(t, list.Jobs, 2)
	assert.Equal(t, ids[2], list.Jobs[0].ID, "newest first")
	assert.NotEmpty(t, list.Jobs[0].DownloadPath)
}

func TestListJobsClampsLimit(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/jobs?limit=1000&offset=-5")
	require.NoError(t, err)
	defer resp.Body.Close()

	var list listJobsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, defaultListLimit, list.Limit)
	assert.Equal(t, 0, list.Offset)
	assert.NotNil(t, list.Jobs)
	assert.Empty(t, list.Jobs)
}

func TestJobEventsFinishedJob(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sr := decodeSubmit(t, submitRaw(t, ts.URL, sampleCSV))
	waitForStatus(t, ts.URL, sr.ID)

	resp, err := http.Get(fmt.Sprintf("%s/v1/jobs/%d/events", ts.URL, sr.ID))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	ev := readDoneEvent(t, resp.Body)
	assert.Equal(t, sr.ID, ev.ID)
	assert.Equal(t, model.StatusCompleted, ev.Status)
	assert.Equal(t, sr.DownloadPath, ev.DownloadPath)
}

func TestJobEventsStreamsCompletion(t *testing.T) {
	gate := newGateEngine()
	srv := newTestServer(t, gate)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sr := decodeSubmit(t, submitRaw(t, ts.URL, sampleCSV))

	resp, err := http.Get(fmt.Sprintf("%s/v1/jobs/%d/events", ts.URL, sr.ID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(gate.release)
	}()

	ev := readDoneEvent(t, resp.Body)
	assert.Equal(t, sr.ID, ev.ID)
	assert.Equal(t, model.StatusCompleted, ev.Status)
}

func TestJobEventsDoneOnlyAfterResultStored(t *testing.T) {
	gate := newGateEngine()
	srv := newTestServerWithStore(t, gate, func(s store.Store) store.Store {
		return &slowFinishStore{Store: s, delay: 300 * time.Millisecond}
	})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sr := decodeSubmit(t, submitRaw(t, ts.URL, sampleCSV))

	resp, err := http.Get(fmt.Sprintf("%s/v1/jobs/%d/events", ts.URL, sr.ID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	close(gate.release)
	ev := readDoneEvent(t, resp.Body)
	require.Equal(t, model.StatusCompleted, ev.Status)
	require.Equal(t, sr.DownloadPath, ev.DownloadPath)

	dl, err := http.Get(ts.URL + ev.DownloadPath)
	require.NoError(t, err)
	defer dl.Body.Close()
	assert.Equal(t, http.StatusOK, dl.StatusCode)
	body, _ := io.ReadAll(dl.Body)
	assert.Equal(t, "SMA\n1\n1.5\n2\n3\n", string(body))
}

// readDoneEvent scans an SSE stream for the "done" event and decodes its data.
func readDoneEvent(t *testing.T, r io.Reader) doneEvent {
	t.Helper()
	scanner := bufio.NewScanner(r)
	sawDone := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: done" {
			sawDone = true
			continue
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok && sawDone {
			var ev doneEvent
			require.NoError(t, json.Unmarshal([]byte(data), &ev))
			return ev
		}
	}
	t.Fatalf("stream ended without a done event (err=%v)", scanner.Err())
	return doneEvent{}
}

func TestStatsAndEngines(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sr := decodeSubmit(t, submitRaw(t, ts.URL, sampleCSV))
	waitForStatus(t, ts.URL, sr.ID)

	resp, err := http.Get(ts.URL + "/v1/stats")
	require.NoError(t, err)
	var stats statsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[model.StatusCompleted])
	assert.Equal(t, int64(1), stats.Worker.Activations)
	assert.Equal(t, sr.ID, stats.Worker.LastID)

	resp, err = http.Get(ts.URL + "/v1/engines")
	require.NoError(t, err)
	defer resp.Body.Close()
	var engines []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&engines))
	require.Len(t, engines, 1)
	assert.Equal(t, "sma", engines[0]["name"])
	assert.EqualValues(t, 3, engines[0]["window"])
}
