package app

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HandleExportCSV 导出记录CSV
// GET /api/export/csv?start=&end=
func (s *Server) HandleExportCSV(c *gin.Context) {
	records, _, ok := s.loadRange(c)
	if !ok {
		return
	}

	buf := &bytes.Buffer{}
	if err := s.exporter.WriteCSV(buf, records); err != nil {
		RespondError(c, http.StatusInternalServerError, err)
		return
	}

	filename := fmt.Sprintf("openai-usage-%s.csv", s.now().Format(time.DateOnly))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// HandleExportReport 纯文本报告
// GET /api/export/report?start=&end=
func (s *Server) HandleExportReport(c *gin.Context) {
	records, st, ok := s.loadRange(c)
	if !ok {
		return
	}
	filename := fmt.Sprintf("openai-usage-report-%s.txt", s.now().Format(time.DateOnly))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(s.exporter.TextReport(records, st)))
}

// HandleExportSummary JSON摘要
// GET /api/export/summary?start=&end=
func (s *Server) HandleExportSummary(c *gin.Context) {
	records, st, ok := s.loadRange(c)
	if !ok {
		return
	}
	RespondJSON(c, http.StatusOK, s.exporter.Summary(records, st))
}
