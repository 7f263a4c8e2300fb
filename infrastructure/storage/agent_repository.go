package storage

import (
	"encoding/json"
	"fleet-hub/domain"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const agentPrefix = "agent:"

// AgentRepository is the agent inventory served by the host gateway.
// Values are JSON encoded AgentSummary under "agent:<id>".
type AgentRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewAgentRepository(db *badger.DB, log *slog.Logger) *AgentRepository {
	return &AgentRepository{db: db, log: log}
}

// Upsert writes all agents in one transaction.
func (r AgentRepository) Upsert(agents ...domain.AgentSummary) error {
	return r.db.Update(func(txn *badger.Txn) error {
		for _, agent := range agents {
			if strings.TrimSpace(agent.ID) == "" {
				return fmt.Errorf("agent %q has no id", agent.Name)
			}
			data, err := json.Marshal(agent)
			if err != nil {
				return fmt.Errorf("encoding agent %s: %w", agent.ID, err)
			}
			if err := txn.Set(agentKey(agent.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns agents ordered by id.
func (r AgentRepository) List() ([]domain.AgentSummary, error) {
	agents := []domain.AgentSummary{}
	prefix := []byte(agentPrefix)

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var agent domain.AgentSummary
				if err := json.Unmarshal(v, &agent); err != nil {
					return fmt.Errorf("failed to unmarshal agent: %w", err)
				}
				agents = append(agents, agent)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error listing agents: %w", err)
	}
	return agents, nil
}

// Delete is a no-op for unknown ids.
func (r AgentRepository) Delete(id string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(agentKey(id))
	})
}

func agentKey(id string) []byte {
	return []byte(agentPrefix + id)
}
