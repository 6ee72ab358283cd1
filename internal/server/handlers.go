package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/example/sentinel/internal/audit"
	"github.com/example/sentinel/internal/events"
	"github.com/example/sentinel/internal/ingest"
	"github.com/example/sentinel/internal/model"
	"github.com/example/sentinel/internal/notify"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// AnalyzeRequest is the body of POST /api/v1/analyze.
type AnalyzeRequest struct {
	ArtifactType string         `json:"artifact_type" binding:"required"`
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type urlRequest struct {
	URL string `json:"url" binding:"required"`
}

type base64Request struct {
	Data     string `json:"data" binding:"required"`
	Filename string `json:"filename"`
}

// SlackTestRequest is the body of POST /internal/test/slack. Omitted fields take sample values.
type SlackTestRequest struct {
	Risk         string            `json:"risk"`
	Confidence   *float64          `json:"confidence"`
	ArtifactType string            `json:"artifact_type"`
	Consensus    map[string]string `json:"consensus"`
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleAnalyze normalizes a text submission and runs the pipeline.
func HandleAnalyze(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		kind, err := model.ParseKind(req.ArtifactType)
		if err != nil {
			rejectInput(c, d, "text", err)
			return
		}
		a, err := ingest.FromText(kind, req.Content, metadataFrom(req.Metadata))
		if err != nil {
			rejectInput(c, d, "text", err)
			return
		}
		analyze(c, d, a)
	}
}

// HandlePDFUpload analyzes a multipart upload in the "file" field.
func HandlePDFUpload(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		header, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
			return
		}
		if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "only PDF files are supported"})
			return
		}
		if header.Size > d.MaxUploadBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", d.MaxUploadBytes)})
			return
		}
		f, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
			return
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, d.MaxUploadBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
			return
		}

		a, err := d.PDF.FromBytes(c.Request.Context(), data, header.Filename)
		if err != nil {
			rejectInput(c, d, "pdf", err)
			return
		}
		analyze(c, d, a)
	}
}

// HandlePDFURL downloads a PDF and analyzes it.
func HandlePDFURL(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req urlRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
			return
		}
		a, err := d.PDF.FromURL(c.Request.Context(), req.URL)
		if err != nil {
			rejectInput(c, d, "pdf", err)
			return
		}
		analyze(c, d, a)
	}
}

// HandlePDFBase64 analyzes a base64-encoded PDF.
func HandlePDFBase64(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req base64Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "data is required"})
			return
		}
		a, err := d.PDF.FromBase64(c.Request.Context(), req.Data, req.Filename)
		if err != nil {
			rejectInput(c, d, "pdf", err)
			return
		}
		analyze(c, d, a)
	}
}

// HandleGitHub fetches a repository and analyzes its files.
func HandleGitHub(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req urlRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
			return
		}
		a, err := d.Repositories.Fetch(c.Request.Context(), req.URL)
		if err != nil {
			rejectInput(c, d, "github", err)
			return
		}
		analyze(c, d, a)
	}
}

// ListVulnerabilities returns audit records, newest first.
func ListVulnerabilities(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultQueryLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = min(n, maxQueryLimit)
		}

		records, err := d.Audit.Query(c.Request.Context(), audit.Filter{
			Limit: limit,
			Risk:  strings.ToUpper(strings.TrimSpace(c.Query("risk"))),
		})
		if err != nil {
			log.Error().Err(err).Str("component", "http").Msg("audit query failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query vulnerabilities"})
			return
		}
		if records == nil {
			records = []audit.Vulnerability{}
		}
		c.JSON(http.StatusOK, gin.H{"vulnerabilities": records, "count": len(records)})
	}
}

// HandleTestSlack sends a sample alert through the configured notifier.
func HandleTestSlack(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SlackTestRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
		}
		alert := sampleAlert(req)
		sent := d.Notifier.Notify(c.Request.Context(), alert)
		d.Metrics.ObserveAlert(sent)
		c.JSON(http.StatusOK, gin.H{"sent": sent, "message": "Check Slack channel"})
	}
}

// sampleAlert fills the omitted fields of a test request from notify.SampleAlert.
func sampleAlert(req SlackTestRequest) notify.Alert {
	a := notify.SampleAlert()
	if r := strings.TrimSpace(req.Risk); r != "" {
		a.Level = model.RiskLevel(strings.ToUpper(r))
	}
	if req.Confidence != nil {
		a.Confidence = *req.Confidence
	}
	if req.ArtifactType != "" {
		a.ArtifactType = strings.ToUpper(req.ArtifactType)
		a.DerivedFrom = a.ArtifactType
	}
	if len(req.Consensus) > 0 {
		a.Consensus = req.Consensus
	}
	return a
}

func analyze(c *gin.Context, d Deps, a model.Artifact) {
	// The run outlives a disconnecting client so its audit trail stays complete.
	out := d.Pipeline.Run(context.WithoutCancel(c.Request.Context()), a, ingest.Origin(a))
	c.JSON(http.StatusOK, out.Report)
}

func rejectInput(c *gin.Context, d Deps, source string, err error) {
	d.Metrics.IngestError(source)
	if d.Hub != nil {
		_ = d.Hub.Emit(events.Event{
			Type:    events.TypeIngestFailure,
			Status:  events.StatusFailed,
			Message: err.Error(),
			Fields:  map[string]interface{}{"source": source},
		})
	}

	status := http.StatusBadRequest
	if !ingest.IsInputError(err) && source != "text" {
		status = http.StatusBadGateway
	}
	log.Warn().Err(err).Str("component", "http").Str("source", source).Int("status", status).Msg("submission rejected")
	c.JSON(status, gin.H{"error": err.Error()})
}

func metadataFrom(raw map[string]any) model.Metadata {
	var meta model.Metadata
	extra := func(k string, v any) {
		if meta.Extra == nil {
			meta.Extra = make(map[string]string, len(raw))
		}
		meta.Extra[k] = fmt.Sprint(v)
	}

	for k, v := range raw {
		switch k {
		case "source":
			meta.Source = fmt.Sprint(v)
		case "source_type":
			meta.SourceType = fmt.Sprint(v)
		case "repo":
			meta.Repo = fmt.Sprint(v)
		case "commit":
			meta.Commit = fmt.Sprint(v)
		case "page_count", "file_count":
			n, ok := intValue(v)
			if !ok {
				extra(k, v)
				continue
			}
			if k == "page_count" {
				meta.PageCount = n
			} else {
				meta.FileCount = n
			}
		case "extraction_confidence":
			f, ok := floatValue(v)
			if !ok {
				extra(k, v)
				continue
			}
			meta.ExtractionConfidence = f
		default:
			extra(k, v)
		}
	}
	return meta
}

// floatValue accepts JSON numbers and numeric strings.
func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func intValue(v any) (int, bool) {
	f, ok := floatValue(v)
	if !ok || f < 0 || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}
