package storage

import (
	"fleet-hub/contract"
	"fleet-hub/domain"
	"fleet-hub/errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Manifest is the YAML file describing the agents the host runs.
//
//	agents:
//	  - id: deployer
//	    name: Deployer
//	    type: Automation
//	    status: Running
type Manifest struct {
	Agents []domain.AgentSummary `yaml:"agents" validate:"dive"`
}

func ParseManifest(r io.Reader) (Manifest, error) {
	var manifest Manifest
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&manifest); err != nil && err != io.EOF {
		return Manifest{}, fmt.Errorf("%w: %v", errors.ErrInvalidManifest, err)
	}
	if err := validate.Struct(manifest); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", errors.ErrInvalidManifest, err)
	}
	for _, agent := range manifest.Agents {
		if err := domain.AgentGroup(agent.ID).Validate(); err != nil {
			return Manifest{}, fmt.Errorf("%w: %v", errors.ErrInvalidManifest, err)
		}
	}
	return manifest, nil
}

// ImportManifest loads the file at path into the repository and returns
// the number of agents written.
func ImportManifest(path string, repository contract.AgentRepository) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	manifest, err := ParseManifest(f)
	if err != nil {
		return 0, err
	}
	if err := repository.Upsert(manifest.Agents...); err != nil {
		return 0, err
	}
	return len(manifest.Agents), nil
}
