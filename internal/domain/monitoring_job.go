package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SourceType classifies a discovered content source.
type SourceType string

// Source types
const (
	SourceTypeNews      SourceType = "news"
	SourceTypeReference SourceType = "reference"
	SourceTypeAcademic  SourceType = "academic"
	SourceTypeBlog      SourceType = "blog"
	SourceTypeSocial    SourceType = "social"
	SourceTypeOther     SourceType = "other"
)

// ClassifiedSource is a discovered source with its classification.
type ClassifiedSource struct {
	Name        string      `json:"name"`
	URL         string      `json:"url"`
	Title       string      `json:"title,omitempty"`
	Type        SourceType  `json:"type"`
	Reliability Reliability `json:"reliability"`
	Industry    string      `json:"industry"`
	PublishedAt *time.Time  `json:"published_at,omitempty"`
}

// Stop reasons recorded on monitoring jobs
const (
	StopReasonManual   = "manual"
	StopReasonInactive = "inactive"
)

// Monitoring job validation errors
var (
	ErrMonitoringJobIDEmpty   = errors.New("monitoring job ID cannot be empty")
	ErrMonitoringTopicEmpty   = errors.New("monitoring job topic cannot be empty")
	ErrInvalidMonitorInterval = errors.New("monitoring interval must be between 1 and 1440 minutes")
	ErrInvalidMaxSources      = errors.New("max sources must be between 1 and 50")
)

// MonitoringJob tracks recurring freshness polling for one topic.
type MonitoringJob struct {
	ID                  uuid.UUID          `json:"id"`
	TopicID             uuid.UUID          `json:"topic_id"`
	TopicName           string             `json:"topic"`
	Industry            string             `json:"industry"`
	IntervalMinutes     int                `json:"interval_minutes"`
	MaxSources          int                `json:"max_sources"`
	PrioritizeFreshness bool               `json:"prioritize_freshness"`
	Active              bool               `json:"active"`
	Sources             []ClassifiedSource `json:"sources"`
	LastRunAt           *time.Time         `json:"last_run_at,omitempty"`
	LastDiscoveryAt     *time.Time         `json:"last_discovery_at,omitempty"`
	CreatedBy           uuid.UUID          `json:"created_by"`
	StoppedAt           *time.Time         `json:"stopped_at,omitempty"`
	StopReason          string             `json:"stop_reason,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// NewMonitoringJob creates an active job for topic.
func NewMonitoringJob(
	topic *Topic,
	industry string,
	intervalMinutes, maxSources int,
	prioritizeFreshness bool,
	createdBy uuid.UUID,
) (*MonitoringJob, error) {
	if topic == nil {
		return nil, ErrMonitoringTopicEmpty
	}
	now := time.Now().UTC()
	job := &MonitoringJob{
		ID:                  uuid.New(),
		TopicID:             topic.ID,
		TopicName:           topic.Name,
		Industry:            industry,
		IntervalMinutes:     intervalMinutes,
		MaxSources:          maxSources,
		PrioritizeFreshness: prioritizeFreshness,
		Active:              true,
		Sources:             []ClassifiedSource{},
		CreatedBy:           createdBy,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// Validate checks if the MonitoringJob has valid data.
func (j *MonitoringJob) Validate() error {
	if j.ID == uuid.Nil {
		return ErrMonitoringJobIDEmpty
	}
	if j.TopicID == uuid.Nil || j.TopicName == "" {
		return ErrMonitoringTopicEmpty
	}
	if j.IntervalMinutes < 1 || j.IntervalMinutes > 1440 {
		return ErrInvalidMonitorInterval
	}
	if j.MaxSources < 1 || j.MaxSources > 50 {
		return ErrInvalidMaxSources
	}
	return nil
}

// Interval returns the polling interval.
func (j *MonitoringJob) Interval() time.Duration {
	return time.Duration(j.IntervalMinutes) * time.Minute
}

// Stop clears the active flag. Stopping an already stopped job keeps the
// original reason and time.
func (j *MonitoringJob) Stop(reason string, at time.Time) {
	if !j.Active {
		return
	}
	at = at.UTC()
	j.Active = false
	j.StoppedAt = &at
	j.StopReason = reason
	j.UpdatedAt = at
}

// Inactive reports whether nothing new has been discovered for longer than
// timeout. A job that never discovered anything is measured from creation.
func (j *MonitoringJob) Inactive(now time.Time, timeout time.Duration) bool {
	last := j.CreatedAt
	if j.LastDiscoveryAt != nil {
		last = *j.LastDiscoveryAt
	}
	return now.Sub(last) > timeout
}
