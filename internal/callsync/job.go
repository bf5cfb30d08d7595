package callsync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"shelter-platform/internal/calls"
	"shelter-platform/internal/metrics"
	"shelter-platform/internal/telephony"
)

const (
	DefaultPageSize  = 500
	DefaultMaxOffset = 9000
	DefaultPageDelay = 600 * time.Millisecond
	DefaultLookback  = 15 * 24 * time.Hour
)

var (
	ErrNoActiveConnection = errors.New("callsync: no active telephony connection")
	ErrNoReceptionNumber  = errors.New("callsync: connection has no reception number")
	ErrRunInProgress      = errors.New("callsync: run already in progress")
)

// CallLister fetches one page of provider call history.
type CallLister interface {
	ListCalls(ctx context.Context, apiKey string, q telephony.CallListQuery) ([]calls.Payload, error)
}

type Options struct {
	PageSize  int
	MaxOffset int
	// PageDelay is slept before every page after the first. It keeps the shared
	// provider rate limit; tenants run sequentially for the same reason.
	PageDelay time.Duration
	Lookback  time.Duration

	Guard  RunGuard
	Logger *slog.Logger
	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
}

func (o Options) withDefaults() Options {
	out := o
	if out.PageSize <= 0 {
		out.PageSize = DefaultPageSize
	}
	if out.MaxOffset <= 0 {
		out.MaxOffset = DefaultMaxOffset
	}
	if out.PageDelay <= 0 {
		out.PageDelay = DefaultPageDelay
	}
	if out.Lookback <= 0 {
		out.Lookback = DefaultLookback
	}
	if out.Guard == nil {
		out.Guard = NoopGuard{}
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	if out.Sleep == nil {
		out.Sleep = sleep
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ConnectionResult reports one tenant's pass.
type ConnectionResult struct {
	TenantID string `json:"tenant_id"`
	Pages    int    `json:"pages"`
	Fetched  int    `json:"fetched"`
	Matched  int    `json:"matched"`
	Written  int    `json:"written"`

	// StatusCode is the provider status of the failing page, if any.
	StatusCode int   `json:"status_code,omitempty"`
	Err        error `json:"-"`
}

type RunResult struct {
	Synced      int                `json:"synced"`
	Connections []ConnectionResult `json:"connections"`
}

func (r RunResult) Failed() int {
	n := 0
	for _, c := range r.Connections {
		if c.Err != nil {
			n++
		}
	}
	return n
}

// Job walks each active connection's call history forward from its cursor.
type Job struct {
	provider CallLister
	store    calls.Store
	conns    telephony.ConnectionRepository
	opts     Options
}

func NewJob(provider CallLister, store calls.Store, conns telephony.ConnectionRepository, opts Options) *Job {
	return &Job{provider: provider, store: store, conns: conns, opts: opts.withDefaults()}
}

// Guard scopes. A full run holds scopeAll for its duration and each tenant's
// scope while that tenant syncs, so it never overlaps a tenant run on the same cursor.
const scopeAll = "all"

func tenantScope(tenantID string) string { return "tenant:" + tenantID }

// Run syncs every active connection with a reception number, one after another.
// One tenant's failure never stops the others. A tenant already syncing elsewhere is skipped.
func (j *Job) Run(ctx context.Context) (RunResult, error) {
	release, err := j.opts.Guard.Acquire(ctx, scopeAll)
	if err != nil {
		return RunResult{}, err
	}
	defer release()

	conns, err := j.conns.ListActive(ctx)
	if err != nil {
		return RunResult{}, err
	}

	out := RunResult{Connections: []ConnectionResult{}}
	for _, conn := range conns {
		if conn.ReceptionNumber == "" {
			continue
		}
		releaseTenant, err := j.opts.Guard.Acquire(ctx, tenantScope(conn.TenantID))
		if errors.Is(err, ErrRunInProgress) {
			j.opts.Logger.Warn("tenant sync already running, skipped", "tenant_id", conn.TenantID)
			continue
		}
		if err != nil {
			out.Connections = append(out.Connections, ConnectionResult{TenantID: conn.TenantID, Err: err})
			continue
		}
		res := j.syncAndPersist(ctx, conn)
		releaseTenant()
		out.Synced += res.Written
		out.Connections = append(out.Connections, res)
	}
	return out, nil
}

// RunTenant syncs one tenant's active connection.
func (j *Job) RunTenant(ctx context.Context, tenantID string) (RunResult, error) {
	conn, err := j.conns.GetActiveByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, telephony.ErrConnectionNotFound) {
			return RunResult{}, ErrNoActiveConnection
		}
		return RunResult{}, err
	}
	if conn.ReceptionNumber == "" {
		return RunResult{}, ErrNoReceptionNumber
	}

	release, err := j.opts.Guard.Acquire(ctx, tenantScope(tenantID))
	if err != nil {
		return RunResult{}, err
	}
	defer release()

	res := j.syncAndPersist(ctx, conn)
	return RunResult{Synced: res.Written, Connections: []ConnectionResult{res}}, nil
}

func (j *Job) syncAndPersist(ctx context.Context, conn telephony.TenantConnection) ConnectionResult {
	updated, res := j.SyncConnection(ctx, conn)
	outcome := metrics.OutcomeOK
	if res.Err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.SyncConnections.WithLabelValues(outcome).Inc()

	if res.Written == 0 {
		return res
	}
	if err := j.conns.UpdateSyncState(ctx, updated); err != nil {
		j.opts.Logger.Error("sync state update failed", "tenant_id", conn.TenantID, "err", err)
		if res.Err == nil {
			res.Err = err
		}
	}
	return res
}

// SyncConnection pages through conn's history and writes matching records.
// The returned connection carries the advanced cursor; persisting it is the caller's job.
// The cursor moves only to the latest start time actually written, and never backwards.
func (j *Job) SyncConnection(ctx context.Context, conn telephony.TenantConnection) (telephony.TenantConnection, ConnectionResult) {
	log := j.opts.Logger.With("tenant_id", conn.TenantID)
	res := ConnectionResult{TenantID: conn.TenantID}

	now := j.opts.Now().UTC()
	from := now.Add(-j.opts.Lookback)
	if conn.SyncCursor != nil {
		from = *conn.SyncCursor
	}

	var latest *time.Time
	for offset := 0; offset <= j.opts.MaxOffset; offset += j.opts.PageSize {
		if offset > 0 {
			if err := j.opts.Sleep(ctx, j.opts.PageDelay); err != nil {
				res.Err = err
				break
			}
		}

		page, err := j.provider.ListCalls(ctx, conn.APIKey, telephony.CallListQuery{
			From:   from,
			To:     now,
			Limit:  j.opts.PageSize,
			Offset: offset,
		})
		res.Pages++
		if err != nil {
			res.Err = err
			var se *telephony.StatusError
			if errors.As(err, &se) {
				res.StatusCode = se.StatusCode
			}
			metrics.SyncPages.WithLabelValues(metrics.OutcomeError).Inc()
			log.Error("call page fetch failed", "status", res.StatusCode, "offset", offset, "err", err)
			break
		}
		metrics.SyncPages.WithLabelValues(metrics.OutcomeOK).Inc()
		res.Fetched += len(page)
		if len(page) == 0 {
			break
		}

		batch := j.receptionCalls(conn, page, now)
		res.Matched += len(batch)
		if len(batch) > 0 {
			n, err := j.store.UpsertCalls(ctx, conn.TenantID, batch)
			res.Written += n
			latest = latestStart(latest, batch[:n])
			if err != nil {
				res.Err = err
				log.Error("call batch write failed", "offset", offset, "written", n, "err", err)
				break
			}
		}

		if len(page) < j.opts.PageSize {
			break
		}
	}

	metrics.SyncRecords.WithLabelValues("fetched").Add(float64(res.Fetched))
	metrics.SyncRecords.WithLabelValues("matched").Add(float64(res.Matched))
	metrics.SyncRecords.WithLabelValues("written").Add(float64(res.Written))

	if res.Written > 0 {
		if latest != nil && (conn.SyncCursor == nil || latest.After(*conn.SyncCursor)) {
			conn.SyncCursor = latest
		}
		conn.LastSyncAt = &now
	}
	log.Info("connection synced", "pages", res.Pages, "fetched", res.Fetched, "written", res.Written)
	return conn, res
}

// receptionCalls keeps the page's calls placed from or to the reception line.
func (j *Job) receptionCalls(conn telephony.TenantConnection, page []calls.Payload, syncedAt time.Time) []calls.CallRecord {
	out := make([]calls.CallRecord, 0, len(page))
	for _, p := range page {
		rec := calls.Normalize(conn.TenantID, p, syncedAt)
		if rec.ProviderCallID == "" || !calls.MatchesLine(rec, conn.ReceptionNumber) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func latestStart(cur *time.Time, recs []calls.CallRecord) *time.Time {
	for _, r := range recs {
		if r.StartTime == nil {
			continue
		}
		if cur == nil || r.StartTime.After(*cur) {
			t := *r.StartTime
			cur = &t
		}
	}
	return cur
}
