package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-form-filler/internal/facts"
	"github.com/a3tai/pdf-form-filler/internal/fill"
	"github.com/a3tai/pdf-form-filler/internal/oracle"
	"github.com/a3tai/pdf-form-filler/internal/pdf"
	"github.com/a3tai/pdf-form-filler/internal/pdf/pdftest"
	"github.com/a3tai/pdf-form-filler/internal/storage"
)

type stubOracle struct{}

func (stubOracle) Decide(ctx context.Context, q oracle.FieldQuery) (oracle.Decision, error) {
	if q.Field.Name == "full_name" {
		return oracle.Decision{Action: oracle.ActionFill, Value: "Ada Lovelace", Confidence: 0.9}, nil
	}
	return oracle.Decision{Action: oracle.ActionSkip, Reason: "no fact"}, nil
}

func newTestAPI(t *testing.T) (http.Handler, string) {
	t.Helper()

	form := pdftest.BuildFormPDF(1, []pdftest.Widget{
		pdftest.TextField("full_name", 0, [4]float64{100, 700, 300, 720}),
		pdftest.TextField("phone", 0, [4]float64{100, 650, 300, 670}),
	})
	formSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(form)
	}))
	t.Cleanup(formSrv.Close)

	store := storage.NewMemStore("")
	seedUserFacts(t, store, "alice")

	svc := fill.NewService(
		pdf.NewFetcher(nil, 0, nil),
		store,
		facts.NewAggregator(store, nil),
		fill.NewResolver(stubOracle{}, fill.ResolverConfig{}, nil),
		nil,
	)

	return New(svc, nil).Routes(), formSrv.URL + "/form.pdf"
}

func seedUserFacts(t *testing.T, store storage.Store, userID string) {
	t.Helper()
	ctx := context.Background()

	manifest, err := json.Marshal(facts.Manifest{
		UserID: userID,
		Files:  []facts.ManifestFile{{Slug: "id", InfoKey: userID + "/id/info.json"}},
	})
	require.NoError(t, err)
	_, err = store.Put(ctx, storage.ManifestKey(userID), manifest, "application/json")
	require.NoError(t, err)

	info, err := json.Marshal(facts.ExtractionInfo{
		StructuredInformation: []facts.Fact{{Name: "full_name", Value: "Ada Lovelace"}},
	})
	require.NoError(t, err)
	_, err = store.Put(ctx, userID+"/id/info.json", info, "application/json")
	require.NoError(t, err)
}

func postFormFill(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/form-fill", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAPI_StartAndPoll(t *testing.T) {
	handler, formURL := newTestAPI(t)

	body, err := json.Marshal(FormFillRequest{UserID: "alice", FormURL: formURL})
	require.NoError(t, err)

	rec := postFormFill(t, handler, string(body))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var created FormFillResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.JobID)
	assert.Equal(t, "queued", created.Status)
	assert.NotNil(t, created.Fields)

	var final FormFillResponse
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/api/form-fill/"+created.JobID, nil)
		poll := httptest.NewRecorder()
		handler.ServeHTTP(poll, req)
		if poll.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(poll.Body.Bytes(), &final); err != nil {
			return false
		}
		return final.Status == "complete" || final.Status == "error"
	}, 10*time.Second, 10*time.Millisecond)

	assert.Equal(t, "complete", final.Status)
	assert.Equal(t, 2, final.TotalFields)
	assert.Equal(t, 1, final.FilledFields)
	assert.Equal(t, 1, final.SkippedFields)
	assert.NotEmpty(t, final.FilledFormURL)
	require.Len(t, final.Fields, 2)
	assert.Equal(t, "full_name", final.Fields[0].FieldName)
	assert.Equal(t, "Ada Lovelace", final.Fields[0].Value)
}

func TestAPI_StartValidation(t *testing.T) {
	handler, formURL := newTestAPI(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed_json", body: "{not json"},
		{name: "missing_user", body: `{"formUrl":"` + formURL + `"}`},
		{name: "missing_url", body: `{"userId":"alice"}`},
		{name: "bad_scheme", body: `{"userId":"alice","formUrl":"ftp://example.com/a.pdf"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postFormFill(t, handler, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAPI_GetUnknownJob(t *testing.T) {
	handler, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/form-fill/does-not-exist", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "Unknown form fill job"))
}

func TestAPI_Health(t *testing.T) {
	handler, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
