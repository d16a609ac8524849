package ats

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubClassifier struct {
	answer  string
	err     error
	prompts []string
}

func (s *stubClassifier) Classify(_ context.Context, _, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.answer, s.err
}

func feedServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDetectValidatesClassifierGuess(t *testing.T) {
	srv := feedServer(t, map[string]string{
		"/v1/boards/acme/jobs": `{"jobs":[{"title":"SWE","location":{"name":"NYC"}}]}`,
	})
	classifier := &stubClassifier{answer: "https://boards-api.greenhouse.io/v1/boards/acme/jobs"}
	d := NewDetector(classifier, newTestAdapter(t, srv), zap.NewNop().Sugar())

	det, err := d.Detect(context.Background(), CompanyRef{Name: "Acme Corp"})
	require.NoError(t, err)

	assert.True(t, det.Found)
	assert.Equal(t, "https://boards-api.greenhouse.io/v1/boards/acme/jobs", det.URL)
	assert.Equal(t, Greenhouse, det.Provider)
	assert.Equal(t, SourceClassifier, det.Source)
	require.Len(t, det.Jobs, 1)
	assert.Equal(t, "SWE", det.Jobs[0].Title)
	assert.Equal(t, "NYC", det.Jobs[0].Location)
	assert.Contains(t, classifier.prompts[0], "Acme Corp")
}

func TestDetectMisses(t *testing.T) {
	srv := feedServer(t, map[string]string{
		"/v0/postings/broken": `{"ok":false}`,
	})

	tests := []struct {
		name   string
		answer string
		reason string
	}{
		{"null answer", "null", "null"},
		{"markdown null", "**null**", "null"},
		{"free text without url", "I could not find their job board.", "no feed template"},
		{"url outside templates", "https://acme.com/careers", "no feed template"},
		{"guess returns 404", "https://api.ashbyhq.com/posting-api/job-board/ghost", "status"},
		{"guess returns wrong shape", "https://api.lever.co/v0/postings/broken?mode=json", "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(&stubClassifier{answer: tt.answer}, newTestAdapter(t, srv), zap.NewNop().Sugar())

			det, err := d.Detect(context.Background(), CompanyRef{Name: "Acme"})
			require.NoError(t, err)
			assert.False(t, det.Found)
			assert.Empty(t, det.URL, "a rejected guess is never reported as the feed")
			assert.Contains(t, det.Reason, tt.reason)
		})
	}
}

func TestDetectClassifierFailureIsAnError(t *testing.T) {
	srv := feedServer(t, nil)
	d := NewDetector(&stubClassifier{err: errors.New("connection reset")}, newTestAdapter(t, srv), zap.NewNop().Sugar())

	_, err := d.Detect(context.Background(), CompanyRef{Name: "Acme"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestDetectPrefersCareersPage(t *testing.T) {
	srv := feedServer(t, map[string]string{
		"/":                            `<a href="https://jobs.ashbyhq.com/acme">Jobs</a>`,
		"/posting-api/job-board/acme": `{"jobs":[{"id":"1","title":"PM","location":"Remote","isRemote":true}]}`,
	})
	classifier := &stubClassifier{answer: "null"}
	d := NewDetector(classifier, newTestAdapter(t, srv), zap.NewNop().Sugar())

	det, err := d.Detect(context.Background(), CompanyRef{Name: "Acme", Website: "https://acme.com"})
	require.NoError(t, err)

	assert.True(t, det.Found)
	assert.Equal(t, Ashby, det.Provider)
	assert.Equal(t, SourceCareersPage, det.Source)
	assert.Empty(t, classifier.prompts, "classifier is not consulted when the site links a board")
}
