package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Vendor keys as they appear in the settings document and in API routes.
const (
	VendorCloudWatch = "cloudwatch"
	VendorGCP        = "gcp"
	VendorJenkins    = "jenkins"
	VendorGitLab     = "gitlab"
)

// Settings is the single persisted configuration document.
type Settings struct {
	Configs Configs `json:"configs"`
}

// Configs maps vendor keys to their configuration sections. Sections are kept
// as raw JSON so vendors this binary does not understand round-trip untouched;
// typed accessors decode the sections the fetchers consume.
type Configs map[string]json.RawMessage

func (c Configs) section(key string, out any) (bool, error) {
	raw, ok := c[key]
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("decode %s settings: %w", key, err)
	}
	return true, nil
}

// CloudWatch decodes the cloudwatch section. ok reports whether the section exists.
func (c Configs) CloudWatch() (cfg CloudWatchConfig, ok bool, err error) {
	ok, err = c.section(VendorCloudWatch, &cfg)
	return cfg, ok, err
}

// GCP decodes the gcp section.
func (c Configs) GCP() (cfg GCPConfig, ok bool, err error) {
	ok, err = c.section(VendorGCP, &cfg)
	return cfg, ok, err
}

// Jenkins decodes the jenkins section.
func (c Configs) Jenkins() (cfg JenkinsConfig, ok bool, err error) {
	ok, err = c.section(VendorJenkins, &cfg)
	return cfg, ok, err
}

// GitLab decodes the gitlab section.
func (c Configs) GitLab() (cfg GitLabConfig, ok bool, err error) {
	ok, err = c.section(VendorGitLab, &cfg)
	return cfg, ok, err
}

// MCPSection decodes an agent section ("mcp-azure", "mcp-cloudwatch", ...) into a
// flat string map handed to the agent subprocess environment.
func (c Configs) MCPSection(key string) (map[string]string, bool, error) {
	var section map[string]string
	ok, err := c.section(key, &section)
	return section, ok, err
}

// CloudWatchConfig carries AWS credentials plus the region/log-group matrix.
// Field names mirror the persisted JSON document.
type CloudWatchConfig struct {
	AccessKeyID      string `json:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey  string `json:"AWS_SECRET_ACCESS_KEY"`
	RegionsLogGroups string `json:"AWS_REGIONS_LOG_GROUPS"`
}

// RegionLogGroups is one entry of the decoded AWS_REGIONS_LOG_GROUPS value.
type RegionLogGroups struct {
	Region    string   `json:"region"`
	LogGroups []string `json:"logGroups"`
}

// Missing lists required fields that are absent or empty.
func (c CloudWatchConfig) Missing() []string {
	var missing []string
	if strings.TrimSpace(c.AccessKeyID) == "" {
		missing = append(missing, "AWS_ACCESS_KEY_ID")
	}
	if strings.TrimSpace(c.SecretAccessKey) == "" {
		missing = append(missing, "AWS_SECRET_ACCESS_KEY")
	}
	if strings.TrimSpace(c.RegionsLogGroups) == "" {
		missing = append(missing, "AWS_REGIONS_LOG_GROUPS")
	}
	return missing
}

// RegionConfigs decodes the JSON-encoded region/log-group matrix.
func (c CloudWatchConfig) RegionConfigs() ([]RegionLogGroups, error) {
	var regions []RegionLogGroups
	if err := json.Unmarshal([]byte(c.RegionsLogGroups), &regions); err != nil {
		return nil, fmt.Errorf("decode AWS_REGIONS_LOG_GROUPS: %w", err)
	}
	return regions, nil
}

// GCPConfig carries one raw service-account key JSON blob per project.
type GCPConfig struct {
	ProjectKeys []string `json:"GCP_PROJECT_KEYS_JSON"`
}

// Missing lists required fields that are absent or empty.
func (c GCPConfig) Missing() []string {
	if len(c.ProjectKeys) == 0 {
		return []string{"GCP_PROJECT_KEYS_JSON"}
	}
	return nil
}

// JenkinsConfig carries connection settings for one Jenkins controller.
type JenkinsConfig struct {
	BaseURL  string `json:"JENKINS_BASE_URL"`
	User     string `json:"JENKINS_USER"`
	APIToken string `json:"JENKINS_API_TOKEN"`
	JobNames string `json:"JENKINS_JOB_NAMES"`
}

// Missing lists required fields that are absent or empty.
func (c JenkinsConfig) Missing() []string {
	var missing []string
	if strings.TrimSpace(c.BaseURL) == "" {
		missing = append(missing, "JENKINS_BASE_URL")
	}
	if strings.TrimSpace(c.User) == "" {
		missing = append(missing, "JENKINS_USER")
	}
	if strings.TrimSpace(c.APIToken) == "" {
		missing = append(missing, "JENKINS_API_TOKEN")
	}
	if len(c.Jobs()) == 0 {
		missing = append(missing, "JENKINS_JOB_NAMES")
	}
	return missing
}

// Jobs splits the comma-separated job list.
func (c JenkinsConfig) Jobs() []string {
	return splitList(c.JobNames)
}

// GitLabConfig carries the token and project list for audit-event fetches.
type GitLabConfig struct {
	APIToken   string `json:"GITLAB_API_TOKEN"`
	ProjectIDs string `json:"GITLAB_PROJECT_IDS"`
	BaseURL    string `json:"GITLAB_BASE_URL"`
}

// Missing lists required fields that are absent or empty.
func (c GitLabConfig) Missing() []string {
	var missing []string
	if strings.TrimSpace(c.APIToken) == "" {
		missing = append(missing, "GITLAB_API_TOKEN")
	}
	if len(c.Projects()) == 0 {
		missing = append(missing, "GITLAB_PROJECT_IDS")
	}
	return missing
}

// Projects splits the comma-separated project id list.
func (c GitLabConfig) Projects() []string {
	return splitList(c.ProjectIDs)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
