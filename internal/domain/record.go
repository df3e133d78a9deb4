package domain

import "fmt"

// GroupLogRecord is the aggregation result for one CloudWatch (region, log group)
// pair. Logs holds either the newline-joined events, a placeholder when nothing
// matched the window, or an error description when the target failed.
type GroupLogRecord struct {
	Region       string `json:"region"`
	LogGroupName string `json:"logGroupName"`
	Logs         string `json:"logs"`
}

// ProjectLogRecord is the result for one GCP project or GitLab project target.
type ProjectLogRecord struct {
	ProjectID string `json:"projectId"`
	Logs      string `json:"logs"`
}

// JobLogRecord is the result for one Jenkins job target.
type JobLogRecord struct {
	Job  string `json:"job"`
	Logs string `json:"logs"`
}

// CloudWatchEnvelope wraps CloudWatch records under the key clients expect.
type CloudWatchEnvelope struct {
	LogGroups []GroupLogRecord `json:"logGroups"`
}

// GCPEnvelope wraps GCP project records.
type GCPEnvelope struct {
	ProjectLogs []ProjectLogRecord `json:"projectLogs"`
}

// GitLabEnvelope wraps GitLab project records.
type GitLabEnvelope struct {
	ProjectLogs []ProjectLogRecord `json:"projectLogs"`
}

// JenkinsEnvelope wraps Jenkins job records.
type JenkinsEnvelope struct {
	Logs []JobLogRecord `json:"logs"`
}

// ContextSection is one titled block of log text handed to the chat context
// builder.
type ContextSection struct {
	Title string
	Body  string
}

// ContextSections flattens the envelope for the chat context builder.
func (e CloudWatchEnvelope) ContextSections() []ContextSection {
	sections := make([]ContextSection, 0, len(e.LogGroups))
	for _, record := range e.LogGroups {
		sections = append(sections, ContextSection{
			Title: fmt.Sprintf("%s / %s", record.Region, record.LogGroupName),
			Body:  record.Logs,
		})
	}
	return sections
}

// ContextSections flattens the envelope for the chat context builder.
func (e GCPEnvelope) ContextSections() []ContextSection {
	return projectSections(e.ProjectLogs)
}

// ContextSections flattens the envelope for the chat context builder.
func (e GitLabEnvelope) ContextSections() []ContextSection {
	return projectSections(e.ProjectLogs)
}

// ContextSections flattens the envelope for the chat context builder.
func (e JenkinsEnvelope) ContextSections() []ContextSection {
	sections := make([]ContextSection, 0, len(e.Logs))
	for _, record := range e.Logs {
		sections = append(sections, ContextSection{Title: record.Job, Body: record.Logs})
	}
	return sections
}

func projectSections(records []ProjectLogRecord) []ContextSection {
	sections := make([]ContextSection, 0, len(records))
	for _, record := range records {
		sections = append(sections, ContextSection{Title: record.ProjectID, Body: record.Logs})
	}
	return sections
}

// ToolStatus reports whether a vendor section is fully configured.
type ToolStatus struct {
	Name   string `json:"name"`
	Active bool   `json:"isActive"`
}
