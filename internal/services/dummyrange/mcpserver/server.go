// Package mcpserver exposes the dummy range as MCP tools so agents can
// spawn, inspect and attack targets.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/louisbranch/dummyrange/internal/services/dummyrange/app"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	serverName    = "dummyrange-mcp"
	serverVersion = "0.1.0"
)

// Tool names served by NewServer.
const (
	ToolProfileFetch  = "profile_fetch"
	ToolEntitySpawn   = "entity_spawn"
	ToolEntityList    = "entity_list"
	ToolEntityAttack  = "entity_attack"
	ToolEntityRespawn = "entity_respawn"
	ToolEntityRemove  = "entity_remove"
	ToolRangeClear    = "range_clear"
	ToolToolList      = "tool_list"
	ToolToolSelect    = "tool_select"
	ToolStatsGet      = "stats_get"
)

// NewServer registers every range tool against svc.
func NewServer(svc *app.Service) (*mcp.Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("range service is required")
	}
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)

	mcp.AddTool(server, &mcp.Tool{Name: ToolProfileFetch, Description: "Resolves a player username into a profile"}, ProfileFetchHandler(svc))
	mcp.AddTool(server, &mcp.Tool{Name: ToolEntitySpawn, Description: "Spawns a target from a player username"}, EntitySpawnHandler(svc))
	mcp.AddTool(server, &mcp.Tool{Name: ToolEntityList, Description: "Lists every target on the range"}, EntityListHandler(svc))
	mcp.AddTool(server, &mcp.Tool{Name: ToolEntityAttack, Description: "Attacks a target with the selected or given tool"}, EntityAttackHandler(svc))
	mcp.AddTool(server, &mcp.Tool{Name: ToolEntityRespawn, Description: "Restores a target to full health"}, EntityRespawnHandler(svc))
	mcp.AddTool(server, &mcp.Tool{Name: ToolEntityRemove, Description: "Removes a target from the range"}, EntityRemoveHandler(svc))
	mcp.AddTool(server, &mcp.Tool{Name: ToolRangeClear, Description: "Removes or respawns every target"}, RangeClearHandler(svc))
	mcp.AddTool(server, &mcp.Tool{Name: ToolToolList, Description: "Lists the attack tools"}, ToolListHandler(svc))
	mcp.AddTool(server, &mcp.Tool{Name: ToolToolSelect, Description: "Selects the default attack tool"}, ToolSelectHandler(svc))
	mcp.AddTool(server, &mcp.Tool{Name: ToolStatsGet, Description: "Returns range statistics"}, StatsHandler(svc))

	return server, nil
}

// Run serves svc over stdio until ctx is done or the client disconnects.
func Run(ctx context.Context, svc *app.Service) error {
	return runWithTransport(ctx, svc, &mcp.StdioTransport{})
}

func runWithTransport(ctx context.Context, svc *app.Service, transport mcp.Transport) error {
	server, err := NewServer(svc)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log.Printf("mcp server serving %s %s", serverName, serverVersion)
	err = server.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
