package dashboard

import (
	"time"

	"github.com/miradorstack/log-console/internal/models"
)

// Pane names used in status maps and metrics labels.
const (
	PaneLogs   = "logs"
	PaneCharts = "charts"
)

// QueryState is the filter, pagination and window applied to both panes.
type QueryState struct {
	TimeRange   models.TimeWindow `json:"time_range"`
	SearchQuery string            `json:"search_query"`
	SourceFile  string            `json:"source_file,omitempty"`
	Page        int               `json:"page"`
	PageSize    int               `json:"page_size"`
}

// Snapshot is the query state captured when a refresh was triggered.
type Snapshot struct {
	Generation uint64
	State      QueryState
}

// PaneStatus tracks the last fetch attempt for one pane.
type PaneStatus struct {
	Loading bool `json:"loading"`
	// Error holds the last failure for the current generation; the previous render stays.
	Error       string    `json:"error,omitempty"`
	Generation  uint64    `json:"generation"`
	RefreshedAt time.Time `json:"refreshed_at,omitempty"`
}

// View is a copy of everything the dashboard renders.
type View struct {
	Generation   uint64                 `json:"generation"`
	State        QueryState             `json:"state"`
	Logs         []models.LogRecord     `json:"logs"`
	Total        int                    `json:"total"`
	TotalPages   int                    `json:"total_pages"`
	Empty        bool                   `json:"empty"`
	Aggregations models.AggregationView `json:"aggregations"`
	Panes        map[string]PaneStatus  `json:"panes"`
	Busy         bool                   `json:"busy"`
}

// TotalPages returns ceil(total/pageSize), zero when either is non-positive.
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
