package domain

import (
	"maps"
	"time"
)

// StatusSnapshot is a point-in-time view of the automation runtime.
// Values are produced by a gateway and never mutated afterwards.
type StatusSnapshot struct {
	Timestamp    time.Time     `json:"timestamp"`
	IsHealthy    bool          `json:"isHealthy"`
	CPUUsage     float64       `json:"cpuUsage"`
	MemoryUsage  float64       `json:"memoryUsage"`
	DiskUsage    float64       `json:"diskUsage"`
	ActiveAgents int           `json:"activeAgents"`
	TotalModules int           `json:"totalModules"`
	Uptime       time.Duration `json:"uptime"`
}

type ResourceUsage struct {
	CPU     float64 `json:"cpu" yaml:"cpu"`
	Memory  float64 `json:"memory" yaml:"memory"`
	Threads int     `json:"threads" yaml:"threads"`
	Handles int     `json:"handles" yaml:"handles"`
}

// AgentSummary describes one managed agent's identity and state.
type AgentSummary struct {
	ID            string            `json:"id" yaml:"id" validate:"required"`
	Name          string            `json:"name" yaml:"name" validate:"required"`
	Type          string            `json:"type" yaml:"type"`
	Status        string            `json:"status" yaml:"status"`
	Description   string            `json:"description" yaml:"description"`
	StartTime     *time.Time        `json:"startTime,omitempty" yaml:"startTime,omitempty"`
	LastActivity  *time.Time        `json:"lastActivity,omitempty" yaml:"lastActivity,omitempty"`
	ResourceUsage *ResourceUsage    `json:"resourceUsage,omitempty" yaml:"resourceUsage,omitempty"`
	Configuration map[string]string `json:"configuration,omitempty" yaml:"configuration,omitempty"`
}

const AgentStatusRunning = "Running"

// Equal reports whether two summaries describe the same agent state.
func (a AgentSummary) Equal(b AgentSummary) bool {
	if a.ID != b.ID || a.Name != b.Name || a.Type != b.Type ||
		a.Status != b.Status || a.Description != b.Description {
		return false
	}
	if !equalTime(a.StartTime, b.StartTime) || !equalTime(a.LastActivity, b.LastActivity) {
		return false
	}
	if (a.ResourceUsage == nil) != (b.ResourceUsage == nil) {
		return false
	}
	if a.ResourceUsage != nil && *a.ResourceUsage != *b.ResourceUsage {
		return false
	}
	return maps.Equal(a.Configuration, b.Configuration)
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
