package github

// Repo describes one repository in the export job set.
type Repo struct {
	Name          string `json:"name"`
	CloneURL      string `json:"url"`
	SSHURL        string `json:"ssh_url,omitempty"`
	Private       bool   `json:"is_private"`
	Fork          bool   `json:"is_fork"`
	Archived      bool   `json:"is_archived"`
	Description   string `json:"description,omitempty"`
	DefaultBranch string `json:"default_branch,omitempty"`
	DiskUsageKB   int    `json:"disk_usage_kb"`
}
