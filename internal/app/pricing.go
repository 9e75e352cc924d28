package app

import (
	"net/http"

	"costdash/internal/audit"
	"costdash/internal/model"
	"costdash/internal/pricing"

	"github.com/gin-gonic/gin"
)

// PricingInfo 当前生效的价格表
type PricingInfo struct {
	Freshness    pricing.Freshness       `json:"freshness"`
	DefaultModel string                  `json:"defaultModel"`
	Models       map[string]pricing.Rate `json:"models"`
}

// HandlePricing GET /api/pricing
func (s *Server) HandlePricing(c *gin.Context) {
	RespondJSON(c, http.StatusOK, PricingInfo{
		Freshness:    pricing.CurrentMetadata.Check(s.now()),
		DefaultModel: s.resolver.DefaultModel(),
		Models:       s.resolver.Rates(),
	})
}

// HandlePricingAudit 价格覆盖审计；format=yaml 时返回未定价模型的覆盖文件骨架
// GET /api/pricing/audit
func (s *Server) HandlePricingAudit(c *gin.Context) {
	var (
		records []model.StoredRecord
		err     error
	)
	if s.cfg.DemoMode {
		records, err = DemoStoredRecords()
	} else {
		records, err = audit.Collect(c.Request.Context(), s.store, s.cfg.SegmentCount)
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, err)
		return
	}

	report := audit.Analyze(records, s.resolver, s.now())
	if c.Query("format") == "yaml" {
		stub, err := report.PricingStub()
		if err != nil {
			RespondError(c, http.StatusInternalServerError, err)
			return
		}
		c.Data(http.StatusOK, "application/yaml; charset=utf-8", stub)
		return
	}
	RespondJSON(c, http.StatusOK, report)
}
