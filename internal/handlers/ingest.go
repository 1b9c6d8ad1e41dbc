package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"metricsbuf/internal/buffer"
	"metricsbuf/internal/logger"
	"metricsbuf/internal/metrics"
	"metricsbuf/internal/models"
)

// Submitter queues samples for shipping. *buffer.Handle[models.Sample]
// satisfies it.
type Submitter interface {
	TrySubmit(sample models.Sample) error
}

// IngestHandler handles metric ingestion via HTTP
type IngestHandler struct {
	submitter Submitter

	// Max body size (default 10MB)
	maxBodySize int64

	log zerolog.Logger
}

// IngestConfig holds configuration for the ingest handler
type IngestConfig struct {
	Submitter   Submitter
	MaxBodySize int64
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(cfg IngestConfig) *IngestHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = 10 * 1024 * 1024 // 10MB default
	}

	return &IngestHandler{
		submitter:   cfg.Submitter,
		maxBodySize: maxBodySize,
		log:         logger.WithComponent("ingest"),
	}
}

// IngestRequest represents the batch JSON payload
type IngestRequest struct {
	Samples []models.Sample `json:"samples"`
}

// IngestResponse is the response returned to clients
type IngestResponse struct {
	Success  bool          `json:"success"`
	BatchID  string        `json:"batch_id"`
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Errors   []IngestError `json:"errors,omitempty"`
}

// IngestError describes why a specific sample was rejected
type IngestError struct {
	Index  int    `json:"index"`
	Series string `json:"series,omitempty"`
	Error  string `json:"error"`
}

// ServeHTTP handles the ingest HTTP request
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only accept POST
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Check content type
	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || mediaType != "application/json" {
			h.writeError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
			return
		}
	}

	// Limit body size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	samples, err := h.parseBody(body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if len(samples) == 0 {
		h.writeError(w, http.StatusBadRequest, "no samples provided")
		return
	}

	response := h.processSamples(samples, uuid.NewString())

	h.log.Debug().
		Str("batch_id", response.BatchID).
		Str("request_id", r.Header.Get("X-Request-ID")).
		Int("accepted", response.Accepted).
		Int("rejected", response.Rejected).
		Msg("samples ingested")

	w.Header().Set("Content-Type", "application/json")
	switch {
	case response.Accepted > 0:
		w.WriteHeader(http.StatusOK)
	case response.Unavailable:
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
	json.NewEncoder(w).Encode(response.IngestResponse)
}

// parseBody accepts {"samples": [...]}, a bare array or a single sample
func (h *IngestHandler) parseBody(body []byte) ([]models.Sample, error) {
	var req IngestRequest
	if err := json.Unmarshal(body, &req); err == nil && len(req.Samples) > 0 {
		return req.Samples, nil
	}

	var samples []models.Sample
	if err := json.Unmarshal(body, &samples); err == nil && len(samples) > 0 {
		return samples, nil
	}

	var single models.Sample
	if err := json.Unmarshal(body, &single); err == nil && single.Series != "" {
		return []models.Sample{single}, nil
	}

	return nil, fmt.Errorf("invalid JSON format: expected sample object, array of samples or {\"samples\": [...]}")
}

type ingestResult struct {
	IngestResponse
	// Unavailable is set when a valid sample was refused by the buffer
	Unavailable bool
}

// processSamples normalizes, validates and submits every sample
func (h *IngestHandler) processSamples(samples []models.Sample, batchID string) ingestResult {
	result := ingestResult{IngestResponse: IngestResponse{BatchID: batchID}}

	reject := func(i int, s models.Sample, err error) {
		result.Errors = append(result.Errors, IngestError{
			Index:  i,
			Series: s.Series,
			Error:  err.Error(),
		})
		result.Rejected++
		metrics.IngestSamplesTotal.WithLabelValues("rejected").Inc()
	}

	for i, sample := range samples {
		sample.Normalize()

		if err := sample.Validate(); err != nil {
			metrics.IngestValidationErrors.WithLabelValues(errorType(err)).Inc()
			reject(i, sample, err)
			continue
		}

		if err := h.submitter.TrySubmit(sample); err != nil {
			result.Unavailable = true
			if errors.Is(err, buffer.ErrBufferFull) {
				err = errors.New("buffer full, try again later")
			}
			reject(i, sample, err)
			continue
		}

		result.Accepted++
		metrics.IngestSamplesTotal.WithLabelValues("accepted").Inc()
	}

	result.Success = result.Rejected == 0
	return result
}

// errorType maps a validation error to a metric label
func errorType(err error) string {
	switch {
	case errors.Is(err, models.ErrEmptySeries), errors.Is(err, models.ErrSeriesTooLong):
		return "series"
	case errors.Is(err, models.ErrNoFields), errors.Is(err, models.ErrTooManyFields), errors.Is(err, models.ErrInvalidField):
		return "fields"
	case errors.Is(err, models.ErrTooManyTags), errors.Is(err, models.ErrEmptyKey):
		return "tags"
	case errors.Is(err, models.ErrInvalidTimestamp), errors.Is(err, models.ErrFutureTimestamp):
		return "timestamp"
	default:
		return "other"
	}
}

// writeError writes an error response
func (h *IngestHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
