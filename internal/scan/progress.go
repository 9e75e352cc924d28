package scan

import "math"

const (
	// progressCeiling 运行完成前上报的最大进度
	progressCeiling = 98
	// estimateJitter 总量估计变化超过该比例才更新
	estimateJitter = 0.05

	minSegmentWeight = 0.2
)

// progressEstimator 混合分段完成率与数据量比例估算进度
type progressEstimator struct {
	totalSegments  int
	estimatedTotal int
	last           int
}

func newProgressEstimator(totalSegments int) *progressEstimator {
	return &progressEstimator{totalSegments: totalSegments}
}

// update 在一个分段完成后调用，返回本次上报的进度（0-98，单调不减）
func (p *progressEstimator) update(completed, merged int) int {
	if completed <= 0 {
		return p.last
	}
	candidate := int(math.Round(float64(merged) / float64(completed) * float64(p.totalSegments)))
	if completed == 1 || p.estimatedTotal == 0 || changedBeyond(p.estimatedTotal, candidate, estimateJitter) {
		p.estimatedTotal = candidate
	}

	segRatio := float64(completed) / float64(p.totalSegments)
	dataRatio := segRatio
	if p.estimatedTotal > 0 {
		dataRatio = math.Min(1, float64(merged)/float64(p.estimatedTotal))
	}
	wSeg := math.Max(minSegmentWeight, 1-segRatio)
	pct := int(math.Round((segRatio*wSeg + dataRatio*(1-wSeg)) * 100))

	pct = min(pct, progressCeiling)
	p.last = max(p.last, pct)
	return p.last
}

// finish 运行结束：进度100，估计总量修正为真实合并数
func (p *progressEstimator) finish(merged int) int {
	p.estimatedTotal = merged
	p.last = 100
	return p.last
}

func changedBeyond(prev, next int, ratio float64) bool {
	if prev == 0 {
		return next != 0
	}
	return math.Abs(float64(next-prev))/float64(prev) > ratio
}
