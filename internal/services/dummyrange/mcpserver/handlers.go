package mcpserver

import (
	"context"
	"fmt"
	"strconv"

	apperrors "github.com/louisbranch/dummyrange/internal/platform/errors"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/app"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/combat"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ProfileFetchHandler resolves a username without spawning it.
func ProfileFetchHandler(svc *app.Service) mcp.ToolHandlerFor[ProfileFetchInput, ProfileResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ProfileFetchInput) (*mcp.CallToolResult, ProfileResult, error) {
		p, err := svc.FetchProfile(ctx, input.Username)
		if err != nil {
			return nil, ProfileResult{}, fmt.Errorf("profile fetch failed: %w", err)
		}
		return nil, profileResult(p), nil
	}
}

func EntitySpawnHandler(svc *app.Service) mcp.ToolHandlerFor[EntitySpawnInput, EntityResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input EntitySpawnInput) (*mcp.CallToolResult, EntityResult, error) {
		e, err := svc.Spawn(ctx, input.Username, point(input.X, input.Y))
		if err != nil {
			return nil, EntityResult{}, fmt.Errorf("entity spawn failed: %w", err)
		}
		return nil, entityResult(e), nil
	}
}

func EntityListHandler(svc *app.Service) mcp.ToolHandlerFor[EntityListInput, EntityListResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ EntityListInput) (*mcp.CallToolResult, EntityListResult, error) {
		entities := svc.Entities.List()
		result := EntityListResult{Entities: make([]EntityResult, 0, len(entities))}
		for _, e := range entities {
			result.Entities = append(result.Entities, entityResult(e))
		}
		return nil, result, nil
	}
}

// EntityAttackHandler attacks one entity. Attacks on destroyed entities are
// not errors; they report applied == false.
func EntityAttackHandler(svc *app.Service) mcp.ToolHandlerFor[EntityAttackInput, EntityAttackResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input EntityAttackInput) (*mcp.CallToolResult, EntityAttackResult, error) {
		res, applied, err := svc.Attack(input.EntityID, combat.Attack{
			ToolID: input.ToolID,
			Impact: point(input.X, input.Y),
		})
		if err != nil {
			return nil, EntityAttackResult{}, fmt.Errorf("entity attack failed: %w", err)
		}
		result := EntityAttackResult{Applied: applied}
		if applied {
			primary := hitResult(res.Primary)
			result.ToolID = res.Tool.ID
			result.Primary = &primary
			result.DOTApplied = res.DOTApplied
			result.Marked = res.Mark != nil
			for _, h := range res.Splash {
				result.Splash = append(result.Splash, hitResult(h))
			}
		}
		if e, ok := svc.Entities.Get(input.EntityID); ok {
			result.Entity = entityResult(e)
		}
		return nil, result, nil
	}
}

func EntityRespawnHandler(svc *app.Service) mcp.ToolHandlerFor[EntityIDInput, EntityResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input EntityIDInput) (*mcp.CallToolResult, EntityResult, error) {
		e, ok := svc.Entities.Respawn(input.EntityID)
		if !ok {
			return nil, EntityResult{}, fmt.Errorf("entity respawn failed: %w", notFound(input.EntityID))
		}
		return nil, entityResult(e), nil
	}
}

func EntityRemoveHandler(svc *app.Service) mcp.ToolHandlerFor[EntityIDInput, EntityRemoveResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input EntityIDInput) (*mcp.CallToolResult, EntityRemoveResult, error) {
		if !svc.Entities.Remove(input.EntityID) {
			return nil, EntityRemoveResult{}, fmt.Errorf("entity remove failed: %w", notFound(input.EntityID))
		}
		return nil, EntityRemoveResult{Removed: true}, nil
	}
}

// RangeClearHandler removes every entity, or respawns them all when
// RespawnOnly is set.
func RangeClearHandler(svc *app.Service) mcp.ToolHandlerFor[RangeClearInput, RangeClearResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input RangeClearInput) (*mcp.CallToolResult, RangeClearResult, error) {
		if input.RespawnOnly {
			return nil, RangeClearResult{Respawned: svc.Entities.RespawnAll()}, nil
		}
		n := svc.Entities.Len()
		svc.Entities.Clear()
		return nil, RangeClearResult{Removed: n}, nil
	}
}

func ToolListHandler(svc *app.Service) mcp.ToolHandlerFor[ToolListInput, ToolListResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ ToolListInput) (*mcp.CallToolResult, ToolListResult, error) {
		tools := svc.Combat.Tools()
		result := ToolListResult{
			Tools:    make([]ToolResult, 0, len(tools)),
			Selected: svc.Combat.SelectedTool().ID,
		}
		for _, t := range tools {
			result.Tools = append(result.Tools, toolResult(t))
		}
		return nil, result, nil
	}
}

func ToolSelectHandler(svc *app.Service) mcp.ToolHandlerFor[ToolSelectInput, ToolResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input ToolSelectInput) (*mcp.CallToolResult, ToolResult, error) {
		tool, err := svc.SelectTool(input.ToolID)
		if err != nil {
			return nil, ToolResult{}, fmt.Errorf("tool select failed: %w", err)
		}
		return nil, toolResult(tool), nil
	}
}

func StatsHandler(svc *app.Service) mcp.ToolHandlerFor[StatsInput, StatsResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ StatsInput) (*mcp.CallToolResult, StatsResult, error) {
		return nil, statsResult(svc.Stats()), nil
	}
}

func notFound(id int64) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound, "entity not found",
		map[string]string{"entity_id": strconv.FormatInt(id, 10)})
}
