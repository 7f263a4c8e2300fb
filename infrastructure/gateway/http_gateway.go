package gateway

import (
	"context"
	"encoding/json"
	"fleet-hub/domain"
	"fleet-hub/errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	systemStatusPath = "/api/system/status"
	agentsPath       = "/api/agents"
	maxResponseSize  = 4 << 20
)

// HTTPGateway queries the automation runtime over its REST API.
// Every failure is wrapped with errors.ErrRuntimeUnavailable.
type HTTPGateway struct {
	log     *slog.Logger
	client  *http.Client
	baseURL string
	token   string
}

func NewHTTPGateway(log *slog.Logger, baseURL, token string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		log:     log,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

func (g *HTTPGateway) GetSystemStatus(ctx context.Context) (domain.StatusSnapshot, error) {
	var status domain.StatusSnapshot
	if err := g.get(ctx, systemStatusPath, &status); err != nil {
		return domain.StatusSnapshot{}, err
	}
	return status, nil
}

func (g *HTTPGateway) GetAgents(ctx context.Context) ([]domain.AgentSummary, error) {
	var agents []domain.AgentSummary
	if err := g.get(ctx, agentsPath, &agents); err != nil {
		return nil, err
	}
	if agents == nil {
		agents = []domain.AgentSummary{}
	}
	return agents, nil
}

func (g *HTTPGateway) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrRuntimeUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrRuntimeUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return fmt.Errorf("%w: GET %s: status %d", errors.ErrRuntimeUnavailable, path, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("%w: GET %s: decoding: %v", errors.ErrRuntimeUnavailable, path, err)
	}
	g.log.Debug("Runtime queried", "path", path)
	return nil
}
