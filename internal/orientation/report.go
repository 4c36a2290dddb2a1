package orientation

// ReportEntry is the audit record of a page that needs a human look.
type ReportEntry struct {
	Page                int     `json:"page"`
	PrimaryRotation     int     `json:"primary_rotation"`
	UpdownRotation      int     `json:"updown_rotation"`
	TotalRotation       int     `json:"total_rotation"`
	Confidence          float64 `json:"confidence"`
	PrimaryConfidence   float64 `json:"primary_confidence"`
	Provenance          string  `json:"provenance"`
	FallbackUsed        bool    `json:"fallback_used"`
	PoseUsed            bool    `json:"pose_used"`
	DoubleCheckReverted bool    `json:"double_check_reverted"`
}

// ReportCollector accumulates low-confidence pages of one document run.
type ReportCollector struct {
	threshold float64
	entries   []ReportEntry
}

// NewReportCollector returns a collector using the given threshold.
func NewReportCollector(threshold float64) *ReportCollector {
	return &ReportCollector{threshold: threshold}
}

// Observe records the decision for page (1-based) when either stage fell
// below the threshold. It reports whether an entry was added.
func (c *ReportCollector) Observe(page int, d Decision) bool {
	if d.Confidence >= c.threshold && d.PrimaryConfidence >= c.threshold {
		return false
	}
	c.entries = append(c.entries, ReportEntry{
		Page:                page,
		PrimaryRotation:     d.PrimaryRotation,
		UpdownRotation:      d.UpdownRotation,
		TotalRotation:       d.TotalRotation,
		Confidence:          d.Confidence,
		PrimaryConfidence:   d.PrimaryConfidence,
		Provenance:          string(d.Provenance),
		FallbackUsed:        d.FallbackUsed,
		PoseUsed:            d.PoseUsed,
		DoubleCheckReverted: d.DoubleCheckReverted,
	})
	return true
}

// Entries returns the collected entries in page order.
func (c *ReportCollector) Entries() []ReportEntry {
	return append([]ReportEntry(nil), c.entries...)
}

// Len reports the number of collected entries.
func (c *ReportCollector) Len() int {
	return len(c.entries)
}
