// Package source implements the C2 component: a pausable, channel-based
// sequence of raw records, each carrying an ack handle the pipeline runtime
// invokes only after every derived outcome has been published downstream
// (spec.md §4.2, §3 "at-least-once" invariant).
package source

import (
	"context"

	"github.com/flowlattice/enrich/internal/model"
	"github.com/flowlattice/enrich/internal/pausegate"
)

// Source streams raw records from an upstream message service. Stream
// blocks the internal pull loop on gate whenever the asset manager has
// asserted a pause, so no record is delivered while a registry swap is in
// progress (spec.md §4.5). The returned channel is closed once ctx is done
// or the source is permanently exhausted.
type Source interface {
	Stream(ctx context.Context, gate *pausegate.Gate) (<-chan model.RawRecord, error)
}
