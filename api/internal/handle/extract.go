package handle

import (
	"errors"
	"fmt"
	"net/http"

	"img2text/api/internal/upload"
)

// ExtractText handles POST /extract-text.
//
// Any failure after a file was accepted answers with the same generic 400, so
// clients cannot tell engine errors from storage errors; the log can.
func (h *Handle) ExtractText(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With("handler", "extract-text")

	up, err := h.uploads.Receive(w, r)
	switch {
	case errors.Is(err, upload.ErrNoFile):
		WriteJSON(w, http.StatusBadRequest, fail(MsgNoFile))
		return
	case errors.Is(err, upload.ErrTooLarge):
		WriteJSON(w, http.StatusRequestEntityTooLarge, fail(tooLargeMessage(h.uploads.MaxBytes())))
		return
	case err != nil:
		log.Warn("upload failed", "kind", "storage", "error", err)
		WriteJSON(w, http.StatusBadRequest, fail(MsgUnknown))
		return
	}
	defer func() {
		if err := up.Remove(); err != nil {
			log.Warn("upload cleanup failed", "path", up.StoredPath, "error", err)
		}
	}()

	res := h.ext.Extract(r.Context(), up.StoredPath)
	if !res.Succeeded {
		log.Info("extraction failed", "kind", "engine", "filename", up.OriginalName, "mime", up.MimeType, "size", up.SizeBytes)
		WriteJSON(w, http.StatusBadRequest, fail(MsgUnknown))
		return
	}

	WriteJSON(w, http.StatusOK, ExtractResponse{
		Success: true,
		Message: MsgExtracted,
		Data:    res.Text,
	})
}

func tooLargeMessage(max int64) string {
	if max%(1<<20) == 0 {
		return fmt.Sprintf("File too large. Maximum size is %dMB", max>>20)
	}
	return fmt.Sprintf("File too large. Maximum size is %d bytes", max)
}
