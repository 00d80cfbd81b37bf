package replication

import (
	"github.com/danmuck/posecast/internal/pose"
	"github.com/danmuck/posecast/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Source names the stage of the fallback chain that produced a definition.
type Source string

const (
	SourceInline      Source = "inline"
	SourceExact       Source = "exact"
	SourceFallback    Source = "fallback"
	SourceGeneric     Source = "generic"
	SourcePlaceholder Source = "placeholder"
)

// resolution is the outcome of the fallback chain. A nil Definition means
// the placeholder stage was reached.
type resolution struct {
	Definition *pose.Definition
	ID         pose.Identifier
	Source     Source
}

// resolve walks inline blob, exact catalog id, catalog variants, generic
// fallbacks, then placeholder.
func (a *Applier) resolve(actor pose.ActorID, p *session.PoseState) resolution {
	if len(p.Inline) > 0 {
		def, err := pose.DecodeBlob(p.Inline)
		switch {
		case err != nil:
			log.Debug().
				Str("actor_id", actor.String()).
				Str("pose", p.ID.String()).
				Err(err).
				Msg("replication.Applier.resolve inline blob unusable")
		case def != nil:
			if def.ID.IsZero() {
				named := *def
				named.ID = p.ID
				def = &named
			}
			return resolution{Definition: def, ID: p.ID, Source: SourceInline}
		}
	}

	if def, ok := a.catalog.Get(p.ID); ok {
		return resolution{Definition: def, ID: p.ID, Source: SourceExact}
	}
	if def, matched, ok := a.catalog.Lookup(p.ID); ok {
		return resolution{Definition: def, ID: matched, Source: SourceFallback}
	}
	for _, generic := range a.cfg.GenericFallbacks {
		if def, ok := a.catalog.Get(generic); ok {
			return resolution{Definition: def, ID: generic, Source: SourceGeneric}
		}
	}
	return resolution{ID: p.ID, Source: SourcePlaceholder}
}
