package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/ports"
)

// AgentPrinter implements ports.BadgePrinter against the terminal's local
// print agent. Print errors are surfaced to the caller, which logs and
// swallows them; printing never fails the flow.
type AgentPrinter struct {
	agentURL string
	client   *http.Client
}

var _ ports.BadgePrinter = (*AgentPrinter)(nil)

func NewAgentPrinter(agentURL string) *AgentPrinter {
	return &AgentPrinter{agentURL: agentURL, client: http.DefaultClient}
}

type printRequest struct {
	Badge       string `json:"badge"`
	VisitorName string `json:"visitor_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
	SiteID      string `json:"site_id"`
}

func (p *AgentPrinter) PrintBadge(ctx context.Context, rec domain.SignInRecord, visitorName string) error {
	body, err := json.Marshal(printRequest{
		Badge:       rec.Badge,
		VisitorName: visitorName,
		PhotoURL:    rec.PhotoURL,
		SiteID:      rec.SiteID,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.agentURL+"/print", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("print agent returned %d", resp.StatusCode)
	}
	return nil
}
