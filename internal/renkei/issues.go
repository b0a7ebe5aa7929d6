package renkei

import (
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// Issue IDs raised by the tracker
const (
	IssueLegacyPort         = "legacy_port"
	IssueConnectionUnstable = "connection_unstable"
	IssueMotorError         = "motor_error"
)

// IssueSeverity grades an advisory issue
type IssueSeverity string

const (
	SeverityWarning IssueSeverity = "warning"
	SeverityError   IssueSeverity = "error"
)

const (
	// legacyPort is the pre-PoE firmware default; controllers moved to 17002
	legacyPort = 80

	// reconnectIssueThreshold is how many reconnects mark a link unstable
	reconnectIssueThreshold = 5

	// motorErrorIssueThreshold is how many repeats of one error code raise
	// a persistent motor fault
	motorErrorIssueThreshold = 3

	issueCacheSize = 32
)

// Issue is an advisory record with a remediation hint
type Issue struct {
	ID         string        `json:"id"`
	Severity   IssueSeverity `json:"severity"`
	Summary    string        `json:"summary"`
	Remedy     string        `json:"remedy"`
	Count      int           `json:"count"`
	LastRaised time.Time     `json:"last_raised"`
}

// IssueTracker watches reconnect churn, repeated device errors and legacy
// configuration, and keeps a bounded cache of open advisory issues
type IssueTracker struct {
	mutex       sync.Mutex
	issues      *lru.Cache[string, *Issue]
	errorCounts *lru.Cache[int, int]
	reconnects  int
	logger      zerolog.Logger
}

// NewIssueTracker creates an issue tracker
func NewIssueTracker(logger zerolog.Logger) *IssueTracker {
	issues, _ := lru.New[string, *Issue](issueCacheSize)
	errorCounts, _ := lru.New[int, int](issueCacheSize)

	return &IssueTracker{
		issues:      issues,
		errorCounts: errorCounts,
		logger:      logger,
	}
}

// CheckConfig raises configuration issues that can be detected statically
func (t *IssueTracker) CheckConfig(config *Config) {
	if config.Device.Port == legacyPort {
		t.raise(IssueLegacyPort, SeverityWarning,
			fmt.Sprintf("Configured port %d is the deprecated pre-PoE default", legacyPort),
			fmt.Sprintf("Update the configured port to %d", DefaultPort))
	}
}

// RecordReconnect counts a connection loss and raises the instability issue
// once the threshold is reached. Returns the running reconnect count.
func (t *IssueTracker) RecordReconnect() int {
	t.mutex.Lock()
	t.reconnects++
	count := t.reconnects
	t.mutex.Unlock()

	if count >= reconnectIssueThreshold {
		t.raise(IssueConnectionUnstable, SeverityWarning,
			fmt.Sprintf("Connection to the motor was lost %d times", count),
			"Raise reconnect_interval to 30s or more, enable a 60s health check and a 2s stabilisation delay")
	}
	return count
}

// RecordDeviceError counts a device-reported error code and raises a motor
// fault issue once the same code repeats
func (t *IssueTracker) RecordDeviceError(code int, description string) {
	t.mutex.Lock()
	count, _ := t.errorCounts.Get(code)
	count++
	t.errorCounts.Add(code, count)
	t.mutex.Unlock()

	if count >= motorErrorIssueThreshold {
		t.raise(fmt.Sprintf("%s_%d", IssueMotorError, code), SeverityError,
			fmt.Sprintf("Motor reported error %d (%s) %d times", code, description, count),
			"Inspect the motor and its wiring before retrying movement commands")
	}
}

// ReconnectCount returns how many times the connection has been lost
func (t *IssueTracker) ReconnectCount() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.reconnects
}

// Resolve clears an open issue by ID
func (t *IssueTracker) Resolve(id string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.issues.Remove(id)
}

// Open returns the currently open issues sorted by ID
func (t *IssueTracker) Open() []*Issue {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	open := make([]*Issue, 0, t.issues.Len())
	for _, id := range t.issues.Keys() {
		if issue, ok := t.issues.Get(id); ok {
			open = append(open, issue)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].ID < open[j].ID })
	return open
}

func (t *IssueTracker) raise(id string, severity IssueSeverity, summary, remedy string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if existing, ok := t.issues.Get(id); ok {
		existing.Count++
		existing.Summary = summary
		existing.LastRaised = time.Now()
		return
	}

	t.issues.Add(id, &Issue{
		ID:         id,
		Severity:   severity,
		Summary:    summary,
		Remedy:     remedy,
		Count:      1,
		LastRaised: time.Now(),
	})
	t.logger.Warn().Str("issue", id).Str("summary", summary).Msg("Issue raised")
}
