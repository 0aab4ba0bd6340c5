package document_process

import (
	"github.com/papervault/papervault-backend/internal/jobs/orchestrator"
	"github.com/papervault/papervault-backend/internal/jobs/stages"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

type Pipeline struct {
	log    *logger.Logger
	deps   stages.Deps
	engine *orchestrator.Engine
}

func New(deps stages.Deps, engine *orchestrator.Engine, baseLog *logger.Logger) *Pipeline {
	return &Pipeline{
		log:    baseLog.With("job", "document_process"),
		deps:   deps,
		engine: engine,
	}
}

func (p *Pipeline) Type() string { return "document_process" }
