package stages

import (
	"fmt"

	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/jobs/orchestrator"
	jobrt "github.com/papervault/papervault-backend/internal/jobs/runtime"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
)

// ApplyTags copies inherited tag ids from the dispatch payload onto the
// extracted entity. Skips itself when the payload carries none; unknown or
// foreign tag ids are dropped, not errors.
func ApplyTags(d Deps, extractStage string) orchestrator.Stage {
	return orchestrator.Stage{
		Name:     StageApplyTags,
		Order:    Order[StageApplyTags],
		StartPct: 70,
		EndPct:   80,
		StartMsg: "Applying tags",
		DoneMsg:  "Tags applied",
		Retry:    orchestrator.RetryPolicy{MaxAttempts: 3, Retryable: Retryable},
		Skip: func(jc *jobrt.Context, st *orchestrator.ChainState) (bool, error) {
			meta, err := d.loadFileMeta(jc)
			if err != nil {
				return false, err
			}
			return len(meta.InheritedTagIDs) == 0, nil
		},
		Run: func(jc *jobrt.Context, st *orchestrator.ChainState) (map[string]any, error) {
			meta, err := d.loadFileMeta(jc)
			if err != nil {
				return nil, err
			}
			entity, err := d.loadPipelineMeta(jc, st, extractStage)
			if err != nil {
				return nil, err
			}
			dbc := dbctx.Context{Ctx: jc.Ctx}

			known, err := d.Tags.GetByIDs(dbc, meta.InheritedTagIDs)
			if err != nil {
				return nil, fmt.Errorf("load tags: %w", err)
			}
			links := make([]*types.EntityTag, 0, len(known))
			for _, tag := range known {
				if tag.OwnerUserID != jc.Job.OwnerUserID {
					continue
				}
				links = append(links, &types.EntityTag{
					TagID:       tag.ID,
					OwnerUserID: tag.OwnerUserID,
					EntityKind:  entity.EntityKind,
					EntityID:    entity.EntityID,
				})
			}
			if len(links) > 0 {
				if err := d.Tags.CreateEntityTags(dbc, links); err != nil {
					return nil, fmt.Errorf("create entity tags: %w", err)
				}
			}
			return map[string]any{
				"requested": len(meta.InheritedTagIDs),
				"applied":   len(links),
			}, nil
		},
	}
}
