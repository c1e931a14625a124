package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusqa/internal/domain"
	"campusqa/internal/service"
)

type fakeService struct {
	res      *service.Result
	err      error
	info     domain.CollectionInfo
	deadline bool
}

func (f *fakeService) Ask(ctx context.Context, _ string) (*service.Result, error) {
	_, f.deadline = ctx.Deadline()
	return f.res, f.err
}

func (f *fakeService) Stats(context.Context) (domain.CollectionInfo, error) {
	return f.info, f.err
}

func do(t *testing.T, svc Service, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := NewRouter(svc, time.Second)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestAsk(t *testing.T) {
	svc := &fakeService{res: &service.Result{
		Query:  "Does UTD offer an MS in Accounting?",
		Answer: "Yes, the Jindal School offers an MS in Accounting.",
		Sources: []service.Source{{
			Passage: domain.Passage{
				ID:        "https://jindal.utdallas.edu/accounting#chunk-0",
				SourceURL: "https://jindal.utdallas.edu/accounting",
				Metadata:  domain.Metadata{"sitemap": domain.String("Jindal")},
			},
			Relevance: 0.75,
			Excerpt:   "UTD offers an MS in Accounting.",
		}},
		Elapsed: 40 * time.Millisecond,
	}}

	rr := do(t, svc, http.MethodPost, "/api/ask", `{"query":"Does UTD offer an MS in Accounting?"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, svc.deadline)

	var got askResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "Yes, the Jindal School offers an MS in Accounting.", got.Answer)
	assert.Equal(t, int64(40), got.ElapsedMS)
	require.Len(t, got.Sources, 1)
	assert.Equal(t, "https://jindal.utdallas.edu/accounting#chunk-0", got.Sources[0].ID)
	assert.Equal(t, 0.75, got.Sources[0].Score)
	assert.Equal(t, "UTD offers an MS in Accounting.", got.Sources[0].Excerpt)
	assert.Equal(t, domain.String("Jindal"), got.Sources[0].Metadata["sitemap"])
}

func TestAsk_BadRequest(t *testing.T) {
	for _, body := range []string{``, `{`, `{"query":"   "}`} {
		rr := do(t, &fakeService{}, http.MethodPost, "/api/ask", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "body %q", body)
	}
}

func TestAsk_ErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{fmt.Errorf("%w: collection", domain.ErrNotFound), http.StatusNotFound},
		{domain.Unavailable("llm", errors.New("refused")), http.StatusServiceUnavailable},
		{domain.ErrModelMismatch, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := do(t, &fakeService{err: tc.err}, http.MethodPost, "/api/ask", `{"query":"tuition"}`)
		assert.Equal(t, tc.want, rr.Code, tc.err.Error())
		assert.Contains(t, rr.Body.String(), "error")
	}
}

func TestStats(t *testing.T) {
	svc := &fakeService{info: domain.CollectionInfo{
		Name:  "pages",
		Model: domain.ModelInfo{Name: "hashing-512", Dimension: 512},
		Count: 42,
	}}
	rr := do(t, svc, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"collection":"pages","model":"hashing-512","dimension":512,"count":42}`, rr.Body.String())
}

func TestHealthz(t *testing.T) {
	rr := do(t, &fakeService{}, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = do(t, &fakeService{}, http.MethodPost, "/healthz", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestStatusFor_Deadline(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(context.DeadlineExceeded))
}
