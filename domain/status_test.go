package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAgentSummary_Equal(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	later := now.Add(time.Minute)

	base := AgentSummary{
		ID: "42", Name: "builder", Status: AgentStatusRunning,
		StartTime:     &now,
		ResourceUsage: &ResourceUsage{CPU: 1.5, Threads: 4},
		Configuration: map[string]string{"pool": "a"},
	}

	same := base
	sameTime := now
	same.StartTime = &sameTime
	same.ResourceUsage = &ResourceUsage{CPU: 1.5, Threads: 4}
	same.Configuration = map[string]string{"pool": "a"}
	req.True(base.Equal(same))

	changed := same
	changed.Status = "Stopped"
	req.False(base.Equal(changed))

	moved := same
	moved.StartTime = &later
	req.False(base.Equal(moved))

	noUsage := same
	noUsage.ResourceUsage = nil
	req.False(base.Equal(noUsage))

	reconfigured := same
	reconfigured.Configuration = map[string]string{"pool": "b"}
	req.False(base.Equal(reconfigured))
}
