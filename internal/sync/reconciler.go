package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dayflow/dayflow/internal/config"
	"github.com/dayflow/dayflow/internal/core"
	"github.com/dayflow/dayflow/internal/logging"
	"github.com/dayflow/dayflow/internal/storage"
)

// FailureReporter surfaces failed passes to the user. Optional; a nil
// reporter silences nothing but the logs.
type FailureReporter interface {
	SendSyncFailed(ctx context.Context, provider, detail string) error
}

// Result summarizes one reconciliation pass over a connection. A pass
// with a non-empty Errors list still applies every event it could; one
// bad event never aborts the rest.
type Result struct {
	ConnectionID core.ConnectionID `json:"connection_id"`
	Provider     core.EventSource  `json:"provider"`
	Imported     int               `json:"imported"`
	Updated      int               `json:"updated"`
	Exported     int               `json:"exported"`
	Errors       []string          `json:"errors,omitempty"`
}

// Reconciler drives import/export passes between local storage and
// external calendar providers.
type Reconciler struct {
	events      *storage.EventStore
	connections *storage.ConnectionStore
	registry    *Registry
	cfg         config.SyncConfig
	reporter    FailureReporter
	log         *logging.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(events *storage.EventStore, connections *storage.ConnectionStore, registry *Registry, cfg config.SyncConfig, reporter FailureReporter) *Reconciler {
	return &Reconciler{
		events:      events,
		connections: connections,
		registry:    registry,
		cfg:         cfg,
		reporter:    reporter,
		log:         logging.WithComponent("sync"),
	}
}

// SyncAll reconciles every active connection. Connections are processed
// independently; a failing one never blocks the others.
func (r *Reconciler) SyncAll(ctx context.Context) ([]Result, error) {
	conns, err := r.connections.ListAllActive()
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}

	results := make([]Result, 0, len(conns))
	for _, conn := range conns {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		results = append(results, r.SyncConnection(ctx, conn))
	}
	return results, nil
}

// SyncOwner reconciles one user's active connections.
func (r *Reconciler) SyncOwner(ctx context.Context, ownerID string) ([]Result, error) {
	conns, err := r.connections.ListActive(ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}

	results := make([]Result, 0, len(conns))
	for _, conn := range conns {
		results = append(results, r.SyncConnection(ctx, conn))
	}
	return results, nil
}

// SyncConnection runs one import/export pass for a connection. The sync
// cursor only advances on a fully clean pass, so failed events are
// retried next time.
func (r *Reconciler) SyncConnection(ctx context.Context, conn *core.CalendarConnection) Result {
	result := Result{ConnectionID: conn.ID, Provider: conn.Provider}

	provider, err := r.registry.For(conn.Provider)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		r.finish(ctx, conn, &result)
		return result
	}

	now := time.Now().UTC()
	windowEnd := now.Add(time.Duration(r.cfg.FutureWindow))

	// Fetch from the last successful pass minus the grace period, so a
	// stretch between passes longer than the grace never loses remote
	// changes. A never-synced connection falls back to now minus grace.
	windowStart := now.Add(-time.Duration(r.cfg.GracePeriod))
	if conn.LastSyncAt != nil {
		windowStart = conn.LastSyncAt.Add(-time.Duration(r.cfg.GracePeriod))
	}

	if conn.Direction.Imports() {
		r.importEvents(ctx, provider, conn, windowStart, windowEnd, &result)
	}
	if conn.Direction.Exports() {
		r.exportEvents(ctx, provider, conn, now, windowEnd, &result)
	}

	r.finish(ctx, conn, &result)
	return result
}

func (r *Reconciler) importEvents(ctx context.Context, provider Provider, conn *core.CalendarConnection, start, end time.Time, result *Result) {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.CallTimeout))
	remote, err := provider.ListEvents(callCtx, conn, start, end)
	cancel()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list: %v", err))
		return
	}

	for _, ev := range remote {
		if ev.ExternalID == "" {
			result.Errors = append(result.Errors, "import: event without external id")
			continue
		}
		if !ev.Start.Before(ev.End) {
			result.Errors = append(result.Errors, fmt.Sprintf("import %s: start not before end", ev.ExternalID))
			continue
		}

		created, updated, err := r.applyRemote(conn, ev)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("import %s: %v", ev.ExternalID, err))
			continue
		}
		if created {
			result.Imported++
		}
		if updated {
			result.Updated++
		}
	}
}

func (r *Reconciler) exportEvents(ctx context.Context, provider Provider, conn *core.CalendarConnection, start, end time.Time, result *Result) {
	local, err := r.events.ListUnexported(conn.OwnerID, start, end)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list unexported: %v", err))
		return
	}

	for _, event := range local {
		callCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.CallTimeout))
		externalID, err := provider.CreateEvent(callCtx, conn, ProviderEvent{
			Title:    event.Title,
			Location: event.Location,
			Start:    event.Start,
			End:      event.End,
			AllDay:   event.AllDay,
			Status:   event.Status,
		})
		cancel()
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("export %s: %v", event.ID, err))
			continue
		}

		if err := r.events.SetExternalID(event.ID, externalID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("export %s: %v", event.ID, err))
			continue
		}
		result.Exported++
	}
}

// finish records the pass outcome on the connection.
func (r *Reconciler) finish(ctx context.Context, conn *core.CalendarConnection, result *Result) {
	if len(result.Errors) == 0 {
		if err := r.connections.MarkSynced(conn.ID, time.Now().UTC()); err != nil {
			r.log.WithField("connection_id", conn.ID).Error("marking synced: %v", err)
		}
		r.log.WithFields(map[string]interface{}{
			"connection_id": conn.ID,
			"imported":      result.Imported,
			"updated":       result.Updated,
			"exported":      result.Exported,
		}).Info("sync pass complete")
		return
	}

	detail := result.Errors[0]
	if len(result.Errors) > 1 {
		detail = fmt.Sprintf("%s (and %d more)", detail, len(result.Errors)-1)
	}
	if err := r.connections.MarkFailed(conn.ID, detail); err != nil {
		r.log.WithField("connection_id", conn.ID).Error("marking failed: %v", err)
	}
	r.log.WithFields(map[string]interface{}{
		"connection_id": conn.ID,
		"errors":        len(result.Errors),
	}).Warn("sync pass finished with errors")

	if r.reporter != nil {
		if err := r.reporter.SendSyncFailed(ctx, string(conn.Provider), detail); err != nil {
			r.log.Error("reporting sync failure: %v", err)
		}
	}
}

// applyRemote reconciles one remote event against local storage and
// reports whether it created or updated anything.
func (r *Reconciler) applyRemote(conn *core.CalendarConnection, ev ProviderEvent) (created, updated bool, err error) {
	existing, err := r.events.FindByExternalID(conn.OwnerID, ev.ExternalID)
	if errors.Is(err, core.ErrEventNotFound) {
		if ev.Status == core.EventCancelled {
			return false, false, nil // never materialize already-cancelled events
		}
		event := &core.CalendarEvent{
			ID:         core.EventID(uuid.New().String()),
			OwnerID:    conn.OwnerID,
			Title:      ev.Title,
			Start:      ev.Start,
			End:        ev.End,
			Location:   ev.Location,
			AllDay:     ev.AllDay,
			Status:     ev.Status,
			Source:     conn.Provider,
			ExternalID: ev.ExternalID,
		}
		if err := r.events.Create(event); err != nil {
			return false, false, err
		}
		return true, false, nil
	}
	if err != nil {
		return false, false, err
	}

	if conn.Policy == core.ConflictLocalWins {
		return false, false, nil
	}
	if !remoteDiffers(existing, ev) {
		return false, false, nil
	}

	existing.Title = ev.Title
	existing.Start = ev.Start
	existing.End = ev.End
	existing.Location = ev.Location
	existing.AllDay = ev.AllDay
	existing.Status = ev.Status
	if err := r.events.Update(existing); err != nil {
		return false, false, err
	}
	return false, true, nil
}

func remoteDiffers(local *core.CalendarEvent, remote ProviderEvent) bool {
	return local.Title != remote.Title ||
		!local.Start.Equal(remote.Start) ||
		!local.End.Equal(remote.End) ||
		local.Location != remote.Location ||
		local.AllDay != remote.AllDay ||
		local.Status != remote.Status
}
