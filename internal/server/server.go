// Package server exposes the pipeline's Core API as a thin net/http JSON
// surface: segment submission, audio/segment status lookups, and the
// observable status payload. Health, readiness, and metrics routes are
// registered separately by the caller.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/streamxcribe/pipeline/internal/observe"
	"github.com/streamxcribe/pipeline/internal/pipeline"
	"github.com/streamxcribe/pipeline/internal/queue"
	"github.com/streamxcribe/pipeline/internal/slicer"
	"github.com/streamxcribe/pipeline/internal/taskstore"
)

// Server wires HTTP handlers on top of a running [pipeline.Pipeline].
type Server struct {
	pipe    *pipeline.Pipeline
	windowS float64
}

// New creates a Server over pipe. windowS configures the stub slicer's
// fixed segment length; zero uses [slicer.DefaultWindowS].
func New(pipe *pipeline.Pipeline, windowS float64) *Server {
	return &Server{pipe: pipe, windowS: windowS}
}

// Register adds every Core API route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/audio", s.handleSubmitAudio)
	mux.HandleFunc("GET /v1/audio/{audio_id}", s.handleAudioStatus)
	mux.HandleFunc("GET /v1/audio/{audio_id}/first", s.handleFirstResult)
	mux.HandleFunc("GET /v1/audio/{audio_id}/results", s.handleResults)
	mux.HandleFunc("GET /v1/segments/{segment_id}", s.handleSegmentStatus)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
}

// submitAudioRequest is the JSON body for POST /v1/audio.
type submitAudioRequest struct {
	AudioID   string  `json:"audio_id"`
	FilePath  string  `json:"file_path"`
	DurationS float64 `json:"duration_s"`
}

// submitAudioResponse reports how many segments were admitted versus
// rejected because the queue was full.
type submitAudioResponse struct {
	AudioID  string `json:"audio_id"`
	Segments int    `json:"segments"`
	Admitted int    `json:"admitted"`
	Rejected int    `json:"rejected"`
}

func (s *Server) handleSubmitAudio(w http.ResponseWriter, r *http.Request) {
	var req submitAudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.AudioID == "" || req.FilePath == "" || req.DurationS <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("audio_id, file_path, and a positive duration_s are required"))
		return
	}

	segments := slicer.Slice(req.AudioID, req.FilePath, req.DurationS, s.windowS)
	s.pipe.CreateAudioTask(req.AudioID, req.DurationS, segments)

	observe.Logger(r.Context()).Info("audio task created",
		"audio_id", req.AudioID,
		"segments", len(segments),
		"duration_s", req.DurationS,
	)

	admitted, rejected := 0, 0
	for _, seg := range segments {
		result, err := s.pipe.SubmitSegment(seg)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if result == queue.Admitted {
			admitted++
		} else {
			rejected++
		}
	}

	writeJSON(w, http.StatusAccepted, submitAudioResponse{
		AudioID:  req.AudioID,
		Segments: len(segments),
		Admitted: admitted,
		Rejected: rejected,
	})
}

func (s *Server) handleAudioStatus(w http.ResponseWriter, r *http.Request) {
	audioID := r.PathValue("audio_id")
	task, ok := s.pipe.AudioStatus(audioID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("audio %q not found", audioID))
		return
	}
	writeJSON(w, http.StatusOK, audioTaskResponseOf(task))
}

func (s *Server) handleSegmentStatus(w http.ResponseWriter, r *http.Request) {
	segmentID := r.PathValue("segment_id")
	state, ok := s.pipe.SegmentStatus(segmentID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("segment %q not found", segmentID))
		return
	}
	writeJSON(w, http.StatusOK, segmentStateResponseOf(state))
}

func (s *Server) handleFirstResult(w http.ResponseWriter, r *http.Request) {
	audioID := r.PathValue("audio_id")
	result, ok := s.pipe.FirstResult(audioID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no first result yet for audio %q", audioID))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	audioID := r.PathValue("audio_id")
	writeJSON(w, http.StatusOK, s.pipe.Results(audioID))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipe.Status())
}

// audioTaskResponse translates taskstore.AudioTask into its wire shape.
type audioTaskResponse struct {
	AudioID         string    `json:"audio_id"`
	Status          string    `json:"status"`
	SegmentIDs      []string  `json:"segment_ids"`
	DurationS       float64   `json:"duration_s"`
	ProgressPercent float64   `json:"progress_percent"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func audioTaskResponseOf(t taskstore.AudioTask) audioTaskResponse {
	return audioTaskResponse{
		AudioID:         t.AudioID,
		Status:          t.Status.String(),
		SegmentIDs:      t.SegmentIDs,
		DurationS:       t.DurationS,
		ProgressPercent: t.ProgressPercent,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

// segmentStateResponse translates taskstore.SegmentState into its wire shape.
type segmentStateResponse struct {
	SegmentID       string  `json:"segment_id"`
	AudioID         string  `json:"audio_id"`
	Index           int     `json:"index"`
	Status          string  `json:"status"`
	Text            string  `json:"text,omitempty"`
	Confidence      float64 `json:"confidence,omitempty"`
	ProcessingTimeS float64 `json:"processing_time_s,omitempty"`
	Error           string  `json:"error,omitempty"`
}

func segmentStateResponseOf(st taskstore.SegmentState) segmentStateResponse {
	return segmentStateResponse{
		SegmentID:       st.Segment.SegmentID,
		AudioID:         st.Segment.AudioID,
		Index:           st.Segment.Index,
		Status:          st.Status.String(),
		Text:            st.Text,
		Confidence:      st.Confidence,
		ProcessingTimeS: st.ProcessingTimeS,
		Error:           st.Error,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
