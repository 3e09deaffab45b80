package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"call-transcriber-go/internal/actionable"
	"call-transcriber-go/internal/aggregator"
	"call-transcriber-go/internal/dataset"
	"call-transcriber-go/internal/events"
	"call-transcriber-go/internal/logger"
	"call-transcriber-go/internal/pipeline"
	"call-transcriber-go/internal/processor"
	"call-transcriber-go/internal/types"
)

type server struct {
	log         *logger.Logger
	proc        *processor.Processor
	bus         *events.Bus
	stream      http.Handler
	datasetPath string
	reportPath  string
}

type batchRequest struct {
	Requests    []types.JobRequest `json:"requests"`
	DatasetPath string             `json:"dataset_path,omitempty"`
	Limit       int                `json:"limit,omitempty"`
}

type batchResponse struct {
	Results    []types.JobResult     `json:"results"`
	Insight    aggregator.Insight    `json:"insight"`
	Action     actionable.ActionCard `json:"action"`
	ReportPath string                `json:"report_path,omitempty"`
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.log.WithRequest(r).Debug("health check")
		fmt.Fprint(w, "ok")
	})

	mux.HandleFunc("/transcribe", s.handleTranscribe)
	mux.HandleFunc("/batch", s.handleBatch)

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
		writeJSON(w, http.StatusOK, s.bus.Since(since))
	})
	if s.stream != nil {
		mux.Handle("/ws", s.stream)
	}
	return mux
}

func (s *server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "transcribe")
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.JobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		reqLog.WithField("error", err.Error()).Warn("bad request body")
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	reqLog = reqLog.WithField("job_key", req.JobKey).WithField("source_url", req.SourceURL)
	reqLog.Info("transcribe request received")

	start := time.Now()
	res, err := s.proc.Process(r.Context(), req)
	reqLog = reqLog.WithField("duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		reqLog.WithField("error_kind", res.ErrorKind).Warn("job failed")
	} else {
		reqLog.Info("job finished")
	}
	writeJSON(w, statusFor(pipeline.KindOf(err)), res)
}

func (s *server) handleBatch(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "batch")
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body batchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<20)).Decode(&body); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
	}

	reqs := body.Requests
	if len(reqs) == 0 {
		path := body.DatasetPath
		if path == "" {
			path = s.datasetPath
		}
		if path == "" {
			http.Error(w, "no requests and no dataset configured", http.StatusBadRequest)
			return
		}
		records, err := dataset.Load(path)
		if err != nil {
			reqLog.WithField("error", err.Error()).Error("dataset load error")
			http.Error(w, "dataset load error", http.StatusInternalServerError)
			return
		}
		reqs = dataset.Requests(records)
	}
	if body.Limit > 0 && len(reqs) > body.Limit {
		reqs = reqs[:body.Limit]
	}
	reqLog.WithField("jobs", len(reqs)).Info("batch started")

	results := s.proc.Batch(r.Context(), reqs)
	insight := aggregator.Aggregate(results)
	resp := batchResponse{
		Results: results,
		Insight: insight,
		Action:  actionable.Generate(insight),
	}
	if s.reportPath != "" {
		if err := dataset.WriteReport(s.reportPath, results); err != nil {
			reqLog.WithField("error", err.Error()).Warn("report write failed")
		} else {
			resp.ReportPath = s.reportPath
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps a failure kind onto an HTTP status. Empty transcripts are
// not operational failures, so they still answer 200 with error_kind set.
func statusFor(kind pipeline.Kind) int {
	switch kind {
	case "", pipeline.KindEmptyTranscript:
		return http.StatusOK
	case pipeline.KindInvalidRequest, pipeline.KindInvalidSource:
		return http.StatusBadRequest
	case pipeline.KindDownloadIncomplete:
		return http.StatusBadGateway
	case pipeline.KindProbe, pipeline.KindNoSegments:
		return http.StatusUnprocessableEntity
	case pipeline.KindCanceled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
