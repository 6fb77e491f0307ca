package syncrecorder

import (
	"context"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

// Noop discards drain runs. It stands in whenever no sink is configured.
type Noop struct{}

func (Noop) RecordDrain(context.Context, domain.DrainRun) error { return nil }

func (Noop) Flush(context.Context) error { return nil }

func (Noop) Close() error { return nil }

var _ domain.DrainRecorder = Noop{}
