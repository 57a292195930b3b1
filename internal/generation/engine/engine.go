// Package engine is the in-process stand-in for the styling image model.
// It assigns an id and a storage URL for the rendered look; swapping in a
// real model backend only replaces this package.
package engine

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/wearly/wearly/internal/clock"
	"github.com/wearly/wearly/internal/generation/domain"
)

type Engine struct {
	genID *snowflake.Node
	clock clock.Clock
}

func New(genID *snowflake.Node, clock clock.Clock) *Engine {
	return &Engine{genID: genID, clock: clock}
}

func (e *Engine) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GeneratedLook, error) {
	id := e.genID.Generate()
	return domain.GeneratedLook{
		ID:        id,
		ImageURL:  fmt.Sprintf("/media/looks/%d.png", id),
		Prompt:    req.Prompt,
		CreatedAt: e.clock.Now(),
	}, nil
}
