package storage

import (
	"encoding/json"
	"fleet-hub/domain"
	"fmt"

	"github.com/mama165/sdk-go/database"
)

// InspectPrefix is the key prefix the debug inspector should browse.
const InspectPrefix = agentPrefix

// InspectMapper renders an agent record for the badger debug inspector.
func InspectMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	var agent domain.AgentSummary
	if err := json.Unmarshal(val, &agent); err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}
	row.Type = agent.Status
	row.Detail = fmt.Sprintf("%s (%s)", agent.Name, agent.Type)
	return row
}
