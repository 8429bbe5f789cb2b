package domain

// Breakdown is a chart-ready series of labels and counts.
type Breakdown struct {
	Labels []string `json:"labels"`
	Data   []int64  `json:"data"`
}

// LabelCount is one row of a grouped count.
type LabelCount struct {
	Label string
	Count int64
}

// NewBreakdown flattens grouped counts, preserving order.
func NewBreakdown(rows []LabelCount) Breakdown {
	b := Breakdown{Labels: make([]string, 0, len(rows)), Data: make([]int64, 0, len(rows))}
	for _, row := range rows {
		b.Labels = append(b.Labels, row.Label)
		b.Data = append(b.Data, row.Count)
	}
	return b
}

// TicketStats is the role-scoped dashboard summary.
type TicketStats struct {
	Total        int64      `json:"total"`
	Open         int64      `json:"open"`
	InProcess    int64      `json:"in_process"`
	Closed       int64      `json:"closed"`
	ByType       Breakdown  `json:"by_type"`
	ByAgent      *Breakdown `json:"by_agent,omitempty"`
	Role         string     `json:"role"`
	IsClientView bool       `json:"is_client_view"`
}
