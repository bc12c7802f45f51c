package diagnoses

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T, ctrl *Controller) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(ctrl).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp.Error.Code
}

func TestGetStateEmpty(t *testing.T) {
	ctrl, _ := newTestController(t, &stubLLM{responses: []string{blightEN}})
	r := newTestRouter(t, ctrl)

	w := doJSON(t, r, http.MethodGet, "/api/v1/state", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var state State
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.IsBusy || state.CurrentResult != nil || state.PendingImage != nil {
		t.Fatalf("expected pristine state, got %+v", state)
	}
	if state.DisplayLanguage != "en" {
		t.Fatalf("expected default language en, got %q", state.DisplayLanguage)
	}
}

func TestSelectImageEndpoint(t *testing.T) {
	ctrl, _ := newTestController(t, &stubLLM{responses: []string{blightEN}})
	r := newTestRouter(t, ctrl)

	w := doJSON(t, r, http.MethodPost, "/api/v1/image", `{"mimeType":"image/png","base64Data":"AAAA"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var state State
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.PendingImage == nil || state.PendingImage.MimeType != "image/png" {
		t.Fatalf("expected staged image in state, got %+v", state.PendingImage)
	}
}

func TestSelectImageEndpointAcceptsDataURL(t *testing.T) {
	ctrl, _ := newTestController(t, &stubLLM{responses: []string{blightEN}})
	r := newTestRouter(t, ctrl)

	w := doJSON(t, r, http.MethodPost, "/api/v1/image", `{"imageSource":"data:image/jpeg;base64,AAAA"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := ctrl.State().PendingImage.MimeType; got != "image/jpeg" {
		t.Fatalf("expected image/jpeg staged, got %q", got)
	}
}

func TestSelectImageEndpointRejectsBadPayload(t *testing.T) {
	ctrl, _ := newTestController(t, &stubLLM{responses: []string{blightEN}})
	r := newTestRouter(t, ctrl)

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `not json`},
		{name: "bad mime", body: `{"mimeType":"text/plain","base64Data":"AAAA"}`},
		{name: "bad data url", body: `{"imageSource":"https://example.com/leaf.png"}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/api/v1/image", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if code := decodeErrorCode(t, w); code != "validation_error" {
				t.Fatalf("expected validation_error, got %q", code)
			}
		})
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	ctrl, _ := newTestController(t, &stubLLM{responses: []string{blightEN}})
	r := newTestRouter(t, ctrl)

	doJSON(t, r, http.MethodPost, "/api/v1/image", `{"mimeType":"image/png","base64Data":"AAAA"}`)
	w := doJSON(t, r, http.MethodPost, "/api/v1/analyze", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var result AnalysisResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Disease != "Blight" || result.ID == "" {
		t.Fatalf("unexpected result %+v", result)
	}

	hw := doJSON(t, r, http.MethodGet, "/api/v1/history", "")
	var history History
	if err := json.Unmarshal(hw.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 1 || history[0].ID != result.ID {
		t.Fatalf("expected record in history, got %+v", history)
	}
}

func TestAnalyzeEndpointWithoutImage(t *testing.T) {
	ctrl, _ := newTestController(t, &stubLLM{responses: []string{blightEN}})
	r := newTestRouter(t, ctrl)

	w := doJSON(t, r, http.MethodPost, "/api/v1/analyze", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if code := decodeErrorCode(t, w); code != "validation_error" {
		t.Fatalf("expected validation_error, got %q", code)
	}
}

func TestAnalyzeEndpointWhileBusy(t *testing.T) {
	gate := newGateLLM(blightEN)
	ctrl, _ := newTestController(t, gate)
	r := newTestRouter(t, ctrl)

	doJSON(t, r, http.MethodPost, "/api/v1/image", `{"mimeType":"image/png","base64Data":"AAAA"}`)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- doJSON(t, r, http.MethodPost, "/api/v1/analyze", "")
	}()
	<-gate.started

	w := doJSON(t, r, http.MethodPost, "/api/v1/analyze", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if code := decodeErrorCode(t, w); code != "busy" {
		t.Fatalf("expected busy, got %q", code)
	}

	close(gate.release)
	if first := <-done; first.Code != http.StatusCreated {
		t.Fatalf("expected first call to succeed, got %d: %s", first.Code, first.Body.String())
	}
}

func TestAnalyzeEndpointDiagnosisFailure(t *testing.T) {
	ctrl, _ := newTestController(t, &stubLLM{err: errors.New("diagnosis backend down")})
	r := newTestRouter(t, ctrl)

	doJSON(t, r, http.MethodPost, "/api/v1/image", `{"mimeType":"image/png","base64Data":"AAAA"}`)
	w := doJSON(t, r, http.MethodPost, "/api/v1/analyze", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if code := decodeErrorCode(t, w); code != "diagnosis_failed" {
		t.Fatalf("expected diagnosis_failed, got %q", code)
	}
}

func TestClearEndpoint(t *testing.T) {
	ctrl, _ := newTestController(t, &stubLLM{responses: []string{blightEN}})
	r := newTestRouter(t, ctrl)

	doJSON(t, r, http.MethodPost, "/api/v1/image", `{"mimeType":"image/png","base64Data":"AAAA"}`)
	doJSON(t, r, http.MethodPost, "/api/v1/analyze", "")

	w := doJSON(t, r, http.MethodPost, "/api/v1/clear", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var state State
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.CurrentResult != nil || state.PendingImage != nil {
		t.Fatalf("expected cleared state, got %+v", state)
	}
	if state.HistoryCount != 1 {
		t.Fatalf("expected history preserved, got %d", state.HistoryCount)
	}
}

func TestSelectFromHistoryEndpoint(t *testing.T) {
	ctrl, _ := newTestController(t, &stubLLM{responses: []string{blightEN}})
	r := newTestRouter(t, ctrl)

	doJSON(t, r, http.MethodPost, "/api/v1/image", `{"mimeType":"image/png","base64Data":"AAAA"}`)
	doJSON(t, r, http.MethodPost, "/api/v1/analyze", "")
	id := ctrl.History()[0].ID

	doJSON(t, r, http.MethodPost, "/api/v1/clear", "")
	w := doJSON(t, r, http.MethodPost, "/api/v1/history/"+id+"/select", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var state State
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.CurrentResult == nil || state.CurrentResult.ID != id {
		t.Fatalf("expected selected record current, got %+v", state.CurrentResult)
	}
}

func TestSelectFromHistoryEndpointNotFound(t *testing.T) {
	ctrl, _ := newTestController(t, &stubLLM{responses: []string{blightEN}})
	r := newTestRouter(t, ctrl)

	w := doJSON(t, r, http.MethodPost, "/api/v1/history/missing/select", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if code := decodeErrorCode(t, w); code != "not_found" {
		t.Fatalf("expected not_found, got %q", code)
	}
}

func TestSetLanguageEndpoint(t *testing.T) {
	ctrl, _ := newTestController(t, &stubLLM{responses: []string{blightEN, mildiouFR}})
	r := newTestRouter(t, ctrl)

	doJSON(t, r, http.MethodPost, "/api/v1/image", `{"mimeType":"image/png","base64Data":"AAAA"}`)
	doJSON(t, r, http.MethodPost, "/api/v1/analyze", "")

	w := doJSON(t, r, http.MethodPut, "/api/v1/language", `{"language":"fr"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var state State
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.DisplayLanguage != "fr" {
		t.Fatalf("expected language fr, got %q", state.DisplayLanguage)
	}
	if state.CurrentResult == nil || state.CurrentResult.Disease != "Mildiou" {
		t.Fatalf("expected retranslated result, got %+v", state.CurrentResult)
	}
}

func TestSetLanguageEndpointValidation(t *testing.T) {
	ctrl, _ := newTestController(t, &stubLLM{responses: []string{blightEN}})
	r := newTestRouter(t, ctrl)

	for _, body := range []string{`{}`, `{"language":"  "}`, `{"language":"waaaaaaaaaaaaaaaaaaytoolong"}`} {
		w := doJSON(t, r, http.MethodPut, "/api/v1/language", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, w.Code)
		}
	}
}
