package core

// ReportGroup is the usage of one vehicle by one driver within a period.
type ReportGroup struct {
	Driver   string
	Plate    string
	DayCount int
	Days     []int // distinct days of month, first-encountered order
}

// Report is a rendered monthly summary.
type Report struct {
	Year    int
	Month   int // 1-12
	Groups  []ReportGroup
	Dropped int // rows discarded by normalization
	Text    string
}
