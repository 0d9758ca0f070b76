package handle

import (
	"io"
	"net/http"

	"img2text/api/internal/docs"
)

// Root handles GET /.
func (h *Handle) Root(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, LiveResponse{Message: MsgLive})
}

// DemoAPI handles GET /api: it calls the demo upstream and reports its status.
func (h *Handle) DemoAPI(w http.ResponseWriter, r *http.Request) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, h.demoURL, nil)
	if err != nil {
		h.logger.Error("demo request", "url", h.demoURL, "error", err)
		WriteJSON(w, http.StatusInternalServerError, DemoError{Error: MsgDemoFailed})
		return
	}
	resp, err := h.httpc.Do(req)
	if err != nil {
		h.logger.Warn("demo call failed", "url", h.demoURL, "error", err)
		WriteJSON(w, http.StatusInternalServerError, DemoError{Error: MsgDemoFailed})
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		h.logger.Warn("demo call failed", "url", h.demoURL, "status", resp.StatusCode)
		WriteJSON(w, http.StatusInternalServerError, DemoError{Error: MsgDemoFailed})
		return
	}
	WriteJSON(w, http.StatusOK, DemoResponse{Message: MsgDemoCalled, Data: resp.StatusCode})
}

// NotFound answers every request no other route claimed.
func (h *Handle) NotFound(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, fail(MsgRouteAbsent))
}

// Docs serves the Swagger UI page.
func (h *Handle) Docs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, docs.UIPage)
}

// OpenAPI serves the raw OpenAPI document.
func (h *Handle) OpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(docs.OpenAPI)
}
