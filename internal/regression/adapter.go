// Package regression turns endpoint regression breakpoints into issue occurrences.
package regression

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/issue-unfurl/internal/domain"
	"github.com/google/uuid"
)

const (
	// P95EndpointRegressionType is the issue type id of endpoint regressions.
	P95EndpointRegressionType  = 1018
	P95EndpointRegressionTitle = "Endpoint Regression"

	Level    = "info"
	Platform = "python"
)

// BreakpointData is a detected change point in a transaction's p95 duration.
type BreakpointData struct {
	Project                  string  `json:"project"`
	Transaction              string  `json:"transaction"`
	TrendPercentage          float64 `json:"trend_percentage"`
	AggregateRange1          float64 `json:"aggregate_range_1"`
	AggregateRange2          float64 `json:"aggregate_range_2"`
	UnweightedTValue         float64 `json:"unweighted_t_value"`
	UnweightedPValue         float64 `json:"unweighted_p_value"`
	AbsolutePercentageChange float64 `json:"absolute_percentage_change"`
	TrendDifference          float64 `json:"trend_difference"`
	Breakpoint               int64   `json:"breakpoint"`
}

type Occurrence struct {
	ID              string               `json:"id"`
	EventID         string               `json:"event_id"`
	ProjectID       int64                `json:"project_id"`
	Fingerprint     []string             `json:"fingerprint"`
	IssueTitle      string               `json:"issue_title"`
	Subtitle        string               `json:"subtitle"`
	ResourceID      *string              `json:"resource_id"`
	EvidenceData    BreakpointData       `json:"evidence_data"`
	EvidenceDisplay []domain.EvidenceRow `json:"evidence_display"`
	Type            int                  `json:"type"`
	DetectionTime   time.Time            `json:"detection_time"`
	Level           string               `json:"level"`
	Culprit         string               `json:"culprit"`
}

type EventData struct {
	EventID     string            `json:"event_id"`
	ProjectID   int64             `json:"project_id"`
	Platform    string            `json:"platform"`
	Tags        map[string]string `json:"tags"`
	Timestamp   time.Time         `json:"timestamp"`
	Transaction string            `json:"transaction"`
}

// Producer publishes an occurrence and the event carrying it.
type Producer interface {
	Produce(ctx context.Context, occ Occurrence, event EventData) error
}

var ErrInvalidBreakpoint = errors.New("invalid breakpoint")

// Fingerprint groups every regression of the same transaction into one issue.
func Fingerprint(transaction string) string {
	sum := sha1.Sum([]byte("p95-endpoint-regression:" + transaction))
	return hex.EncodeToString(sum[:])
}

func BuildOccurrence(data BreakpointData, now time.Time) (Occurrence, EventData, error) {
	projectID, err := strconv.ParseInt(strings.TrimSpace(data.Project), 10, 64)
	if err != nil {
		return Occurrence{}, EventData{}, fmt.Errorf("%w: project %q: %v", ErrInvalidBreakpoint, data.Project, err)
	}
	if strings.TrimSpace(data.Transaction) == "" {
		return Occurrence{}, EventData{}, fmt.Errorf("%w: empty transaction", ErrInvalidBreakpoint)
	}

	change := fmt.Sprintf("from %.1fms to %.1fms (P95)", data.AggregateRange1, data.AggregateRange2)
	eventID := strings.ReplaceAll(uuid.NewString(), "-", "")

	occ := Occurrence{
		ID:           strings.ReplaceAll(uuid.NewString(), "-", ""),
		EventID:      eventID,
		ProjectID:    projectID,
		Fingerprint:  []string{Fingerprint(data.Transaction)},
		IssueTitle:   P95EndpointRegressionTitle,
		Subtitle:     "Increased " + change,
		EvidenceData: data,
		EvidenceDisplay: []domain.EvidenceRow{
			{Name: "Regression", Value: data.Transaction + " duration increased " + change, Important: true},
			{Name: "Transaction", Value: data.Transaction, Important: true},
		},
		Type:          P95EndpointRegressionType,
		DetectionTime: now.UTC(),
		Level:         Level,
		Culprit:       data.Transaction,
	}
	ev := EventData{
		EventID:     eventID,
		ProjectID:   projectID,
		Platform:    Platform,
		Tags:        map[string]string{},
		Timestamp:   now.UTC(),
		Transaction: data.Transaction,
	}
	return occ, ev, nil
}

// SendToPlatform builds the occurrence for data and produces it once.
func SendToPlatform(ctx context.Context, p Producer, data BreakpointData, now time.Time) (Occurrence, error) {
	occ, ev, err := BuildOccurrence(data, now)
	if err != nil {
		return Occurrence{}, err
	}
	if err := p.Produce(ctx, occ, ev); err != nil {
		return Occurrence{}, fmt.Errorf("produce occurrence for project %d: %w", occ.ProjectID, err)
	}
	return occ, nil
}
