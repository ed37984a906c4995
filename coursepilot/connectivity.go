package coursepilot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/coursepilot/connectivity"
	"github.com/hazyhaar/coursepilot/coursepilot/state"
	"github.com/hazyhaar/coursepilot/kit"
)

// Connectivity service names.
const (
	ServiceStatus   = "coursepilot_status"
	ServiceToggle   = "coursepilot_toggle"
	ServiceSettings = "coursepilot_update_settings"
	ServiceScan     = "coursepilot_scan"
	ServicePages    = "coursepilot_pages"
)

// RegisterConnectivity registers the coursepilot services in a connectivity
// router. Payloads use the same JSON fields as the MCP tools.
func (p *Pilot) RegisterConnectivity(router *connectivity.Router) {
	router.RegisterLocal(ServiceStatus, p.handleStatus)
	router.RegisterLocal(ServiceToggle, p.handleToggle)
	router.RegisterLocal(ServiceSettings, p.handleSettings)
	router.RegisterLocal(ServiceScan, p.handleScan)
	router.RegisterLocal(ServicePages, p.handlePages)
}

func decodePayload(service string, payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%s: unmarshal: %w", service, err)
	}
	return nil
}

func rpcContext(ctx context.Context, page string) context.Context {
	return kit.WithPageID(kit.WithTransport(ctx, "connectivity"), page)
}

// Payload: {"page_id": "..."}
func (p *Pilot) handleStatus(ctx context.Context, payload []byte) ([]byte, error) {
	var req pageRequest
	if err := decodePayload(ServiceStatus, payload, &req); err != nil {
		return nil, err
	}
	rep, err := p.Status(rpcContext(ctx, req.PageID), req.PageID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rep)
}

// Payload: {"page_id": "...", "enabled": true}
func (p *Pilot) handleToggle(ctx context.Context, payload []byte) ([]byte, error) {
	var req toggleRequest
	if err := decodePayload(ServiceToggle, payload, &req); err != nil {
		return nil, err
	}
	if err := p.SetMonitoring(rpcContext(ctx, req.PageID), req.PageID, req.Enabled); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"success": true, "page_id": req.PageID, "enabled": req.Enabled})
}

// Payload: {"page_id": "...", "delay_seconds": 10, "mark_as_complete": true}
func (p *Pilot) handleSettings(ctx context.Context, payload []byte) ([]byte, error) {
	var req settingsRequest
	if err := decodePayload(ServiceSettings, payload, &req); err != nil {
		return nil, err
	}
	s, err := p.UpdateSettings(rpcContext(ctx, req.PageID), req.PageID, state.SettingsUpdate{
		DelaySeconds:   req.DelaySeconds,
		MarkAsComplete: req.MarkAsComplete,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// Payload: {"page_id": "..."}
func (p *Pilot) handleScan(ctx context.Context, payload []byte) ([]byte, error) {
	var req pageRequest
	if err := decodePayload(ServiceScan, payload, &req); err != nil {
		return nil, err
	}
	res, err := p.ForceScan(rpcContext(ctx, req.PageID), req.PageID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"success": true, "result": res})
}

func (p *Pilot) handlePages(ctx context.Context, _ []byte) ([]byte, error) {
	return json.Marshal(p.Pages(ctx))
}
