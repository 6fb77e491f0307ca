package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
	"github.com/KasumiMercury/primind-remind-engine/internal/service/records"
)

const (
	ResolutionMerged       = "merged"
	ResolutionLocalDelete  = "local_delete"
	ResolutionUnresolvable = "unresolvable"
)

var errUnresolvable = errors.New("conflict cannot be merged: both sides lack updatedAt")

// itemContext is the state one queue item is applied with.
type itemContext struct {
	item         *domain.SyncQueueItem
	fields       map[string]any
	local        *domain.ReminderRecord
	remoteID     string
	localUpdated *time.Time
	base         *time.Time
}

func (e *Engine) apply(ctx context.Context, item *domain.SyncQueueItem) (bool, error) {
	ic, err := e.prepare(ctx, item)
	if err != nil {
		return false, err
	}

	switch item.Operation {
	case domain.OperationInsert:
		if ic.remoteID != "" {
			return e.applyUpdate(ctx, ic)
		}
		return false, e.applyInsert(ctx, ic)
	case domain.OperationUpdate:
		return e.applyUpdate(ctx, ic)
	case domain.OperationDelete:
		return e.applyDelete(ctx, ic)
	default:
		return false, fmt.Errorf("%w: unknown operation %q", domain.ErrRemoteRejected, item.Operation)
	}
}

func (e *Engine) prepare(ctx context.Context, item *domain.SyncQueueItem) (*itemContext, error) {
	ic := &itemContext{
		item:     item,
		fields:   map[string]any{},
		remoteID: item.RemoteID,
		base:     item.BaseUpdatedAt,
	}

	if len(item.Payload) > 0 {
		fields, err := domain.NormalizeFields(item.Payload)
		if err != nil {
			return nil, err
		}
		ic.fields = fields
	}
	ic.localUpdated = fieldTime(ic.fields, domain.FieldUpdatedAt)

	if item.Table != domain.ReminderTable || e.records == nil {
		return ic, nil
	}

	local, err := e.records.Get(ctx, item.RecordID)
	switch {
	case err == nil:
		ic.local = local
	case errors.Is(err, domain.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("failed to load local record: %w", err)
	}

	if ic.local != nil {
		if ic.remoteID == "" {
			ic.remoteID = ic.local.RemoteID
		}
		// the record's last confirmed remote version supersedes the enqueue-time base
		if synced := ic.local.LastSyncedInstant; synced != nil && (ic.base == nil || synced.After(*ic.base)) {
			s := *synced
			ic.base = &s
		}
	}
	return ic, nil
}

func (e *Engine) applyInsert(ctx context.Context, ic *itemContext) error {
	pushAt := e.pushTime(ic.localUpdated, nil)

	remoteID, err := e.remote.Insert(ctx, ic.item.Table, writableFields(ic.fields), pushAt)
	if err != nil {
		return fmt.Errorf("remote insert failed: %w", err)
	}
	ic.remoteID = remoteID
	ic.item.RemoteID = remoteID

	pending := e.attachRemoteID(ctx, ic.item, remoteID)
	e.confirm(ctx, ic, nil, pushAt, pending)

	slog.DebugContext(ctx, "remote row inserted",
		slog.String("table", ic.item.Table),
		slog.Int64("record_id", ic.item.RecordID),
		slog.String("remote_id", remoteID),
	)
	return nil
}

func (e *Engine) applyUpdate(ctx context.Context, ic *itemContext) (bool, error) {
	if ic.remoteID == "" {
		return false, e.applyInsert(ctx, ic)
	}

	row, err := e.remote.Fetch(ctx, ic.item.Table, ic.remoteID)
	if err != nil {
		if errors.Is(err, domain.ErrRemoteNotFound) {
			slog.InfoContext(ctx, "remote row missing, inserting",
				slog.String("remote_id", ic.remoteID),
				slog.Int64("record_id", ic.item.RecordID),
			)
			ic.remoteID = ""
			ic.item.RemoteID = ""
			return false, e.applyInsert(ctx, ic)
		}
		return false, fmt.Errorf("remote fetch failed: %w", err)
	}

	m := merge(ic.fields, ic.localUpdated, row, ic.base)
	conflicted := m.conflict()
	if conflicted {
		resolution := ResolutionMerged
		if m.err != nil {
			resolution = ResolutionUnresolvable
		}
		e.recordConflict(ctx, ic, row, m, resolution)
	}
	if m.err != nil {
		return conflicted, m.err
	}

	pushAt := e.pushTime(ic.localUpdated, row.UpdatedAt)
	if len(m.differing) > 0 || m.remoteNewer || row.UpdatedAt == nil {
		if err := e.remote.Update(ctx, ic.item.Table, ic.remoteID, writableFields(m.merged), pushAt); err != nil {
			return conflicted, fmt.Errorf("remote update failed: %w", err)
		}
	}

	pending := e.hasPending(ctx, ic.item)
	e.confirm(ctx, ic, pick(m.merged, m.remoteWins), pushAt, pending)
	return conflicted, nil
}

func (e *Engine) applyDelete(ctx context.Context, ic *itemContext) (bool, error) {
	if ic.remoteID == "" {
		// never reached the remote store
		return false, nil
	}

	row, err := e.remote.Fetch(ctx, ic.item.Table, ic.remoteID)
	if err != nil {
		if errors.Is(err, domain.ErrRemoteNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("remote fetch failed: %w", err)
	}

	m := merge(ic.fields, ic.localUpdated, row, ic.base)
	conflicted := m.remoteNewer || len(m.differing) > 0
	if conflicted {
		e.recordConflict(ctx, ic, row, m, ResolutionLocalDelete)
	}

	if err := e.remote.Delete(ctx, ic.item.Table, ic.remoteID); err != nil && !errors.Is(err, domain.ErrRemoteNotFound) {
		return conflicted, fmt.Errorf("remote delete failed: %w", err)
	}
	return conflicted, nil
}

// confirm writes the remote-confirmed state back through the record store.
func (e *Engine) confirm(ctx context.Context, ic *itemContext, remoteFields map[string]any, syncedAt time.Time, pending bool) {
	if ic.item.Table != domain.ReminderTable || e.records == nil {
		return
	}

	var before *domain.ReminderRecord
	after, err := e.records.Mutate(ctx, ic.item.RecordID, func(r *domain.ReminderRecord) error {
		before = r.Clone()

		if len(remoteFields) > 0 {
			merged, err := domain.ApplyFields(r, remoteFields)
			if err != nil {
				return err
			}
			*r = *merged
		}

		r.RemoteID = ic.remoteID
		s := syncedAt
		r.LastSyncedInstant = &s
		r.NeedsSync = pending
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return
		}
		slog.WarnContext(ctx, "failed to write back synced state",
			slog.Int64("record_id", ic.item.RecordID),
			slog.String("error", err.Error()),
		)
		return
	}

	e.rearm(ctx, before, after)
}

// attachRemoteID patches later queued items of the same record with the new remote id.
// It reports whether such items exist.
func (e *Engine) attachRemoteID(ctx context.Context, item *domain.SyncQueueItem, remoteID string) bool {
	items, err := e.queue.List(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to list queue for remote id patch",
			slog.String("error", err.Error()),
		)
		return true
	}

	pending := false
	for _, other := range items {
		if other.ID == item.ID || other.OrderKey() != item.OrderKey() {
			continue
		}
		pending = true
		if other.RemoteID != "" {
			continue
		}
		other.RemoteID = remoteID
		if err := e.queue.Update(ctx, other); err != nil {
			slog.WarnContext(ctx, "failed to patch queued item with remote id",
				slog.String("item_id", other.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return pending
}

func (e *Engine) hasPending(ctx context.Context, item *domain.SyncQueueItem) bool {
	items, err := e.queue.List(ctx)
	if err != nil {
		return true
	}
	for _, other := range items {
		if other.ID != item.ID && other.OrderKey() == item.OrderKey() {
			return true
		}
	}
	return false
}

func (e *Engine) recordConflict(ctx context.Context, ic *itemContext, row *domain.RemoteRow, m mergeResult, resolution string) {
	conflict := &domain.SyncConflict{
		ID:             uuid.NewString(),
		ItemID:         ic.item.ID,
		Table:          ic.item.Table,
		RecordID:       ic.item.RecordID,
		RemoteID:       ic.remoteID,
		Operation:      ic.item.Operation,
		DifferingKeys:  m.differing,
		RemoteNewer:    m.remoteNewer,
		RemoteSnapshot: maps.Clone(row.Fields),
		RemoteUpdated:  row.UpdatedAt,
		Resolution:     resolution,
		DetectedAt:     e.clock.Now(),
	}

	if err := e.queue.RecordConflict(ctx, conflict); err != nil {
		slog.WarnContext(ctx, "failed to record sync conflict",
			slog.String("item_id", ic.item.ID),
			slog.String("error", err.Error()),
		)
	}
	if e.metrics != nil {
		e.metrics.RecordConflict(ctx, ic.item.Table, resolution)
	}

	slog.InfoContext(ctx, "sync conflict detected",
		slog.String("item_id", ic.item.ID),
		slog.Int64("record_id", ic.item.RecordID),
		slog.Bool("remote_newer", m.remoteNewer),
		slog.Any("differing_keys", m.differing),
		slog.String("resolution", resolution),
	)
}

// pushTime is the updatedAt a write carries: the newer of both sides, or now.
func (e *Engine) pushTime(local, remote *time.Time) time.Time {
	switch {
	case local != nil && remote != nil:
		if remote.After(*local) {
			return *remote
		}
		return *local
	case local != nil:
		return *local
	case remote != nil:
		return *remote
	default:
		return e.clock.Now()
	}
}

type mergeResult struct {
	merged      map[string]any
	differing   []string
	remoteWins  []string
	remoteNewer bool
	err         error
}

func (m mergeResult) conflict() bool {
	return m.remoteNewer || len(m.differing) > 0
}

// merge resolves local fields against a remote row. Locally authoritative fields keep the
// local value; every other differing field takes the side with the newer updatedAt, local
// on a tie.
func merge(local map[string]any, localUpdated *time.Time, row *domain.RemoteRow, base *time.Time) mergeResult {
	res := mergeResult{
		merged:      writableFields(local),
		remoteNewer: base != nil && row.UpdatedAt != nil && row.UpdatedAt.After(*base),
	}

	for k, lv := range local {
		if isMetaField(k) {
			continue
		}
		rv, ok := row.Fields[k]
		if !ok || domain.FieldEqual(lv, rv) {
			continue
		}
		res.differing = append(res.differing, k)
	}
	slices.Sort(res.differing)

	for _, k := range res.differing {
		if slices.Contains(domain.LocallyAuthoritativeFields, k) {
			continue
		}

		remoteWins := false
		switch {
		case localUpdated == nil && row.UpdatedAt == nil:
			res.err = errUnresolvable
			return res
		case localUpdated == nil:
			remoteWins = true
		case row.UpdatedAt == nil:
		default:
			remoteWins = row.UpdatedAt.After(*localUpdated)
		}

		if remoteWins {
			res.merged[k] = row.Fields[k]
			res.remoteWins = append(res.remoteWins, k)
		}
	}
	return res
}

func isMetaField(k string) bool {
	return k == domain.FieldLocalID || k == domain.FieldUpdatedAt
}

// writableFields copies fields without updatedAt, which travels separately.
func writableFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == domain.FieldUpdatedAt {
			continue
		}
		out[k] = v
	}
	return out
}

func pick(fields map[string]any, keys []string) map[string]any {
	if len(keys) == 0 {
		return nil
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = fields[k]
	}
	return out
}

func fieldTime(fields map[string]any, key string) *time.Time {
	s, ok := fields[key].(string)
	if !ok || s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

var _ Records = (*records.Store)(nil)
