package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/feature"
	"github.com/ayusman/mudra/internal/session"
)

// DefaultMaxUpload caps request bodies when no limit is configured.
const DefaultMaxUpload = 64 << 20

// LiveRequest is one frame plus the sequence the client has accumulated.
type LiveRequest struct {
	Frame        string           `json:"frame"`
	PrevSequence []feature.Vector `json:"prevSequence"`
}

// Source validates the request and returns a frame source for it.
func (req LiveRequest) Source() (capture.Source, error) {
	return capture.NewLiveSource(req.Frame, req.PrevSequence)
}

// DecodeLiveRequest parses a JSON live request.
func DecodeLiveRequest(r io.Reader) (LiveRequest, error) {
	var req LiveRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return req, err
		}
		return req, &capture.DecodeError{Input: "request", Err: err}
	}
	if req.Frame == "" {
		return req, &capture.DecodeError{Input: "request", Err: errors.New("frame is required")}
	}
	return req, nil
}

// PredictHandler serves POST /api/predict. A multipart body with a "video"
// part is classified as a batch; a JSON body is one live frame.
type PredictHandler struct {
	session   *session.Handler
	maxUpload int64
}

// NewPredictHandler returns a handler backed by h. maxUpload <= 0 means DefaultMaxUpload.
func NewPredictHandler(h *session.Handler, maxUpload int64) *PredictHandler {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	return &PredictHandler{session: h, maxUpload: maxUpload}
}

func (h *PredictHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if h.session == nil || !h.session.ModelLoaded() {
		writeError(w, http.StatusServiceUnavailable, session.ErrNoClassifier.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	src, err := h.source(r)
	if err != nil {
		h.fail(w, err)
		return
	}

	resp, err := h.session.Handle(r.Context(), src)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PredictHandler) source(r *http.Request) (capture.Source, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		req, err := DecodeLiveRequest(r.Body)
		if err != nil {
			return nil, err
		}
		return req.Source()
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, &capture.DecodeError{Input: "request", Err: err}
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, &capture.DecodeError{Input: "request", Err: errors.New("no video file in request")}
		}
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return nil, err
			}
			return nil, &capture.DecodeError{Input: "request", Err: err}
		}
		if part.FormName() != "video" {
			part.Close()
			continue
		}

		src, err := capture.NewVideoUpload(part, h.session.Window())
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("store upload: %w", err)
		}
		return src, nil
	}
}

func (h *PredictHandler) fail(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("predict failed", "status", status, "error", err)
	} else {
		slog.Debug("predict rejected", "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}
