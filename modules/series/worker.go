package series

import (
	"context"
	"fmt"
	"time"

	"github.com/TheLab-ms/bench/engine"
	"github.com/TheLab-ms/bench/modules/bookings"
	"github.com/google/uuid"
)

func (m *Module) AttachWorkers(mgr *engine.ProcMgr) {
	mgr.Add(engine.Poll(time.Minute, engine.PollWorkqueue(engine.WithRateLimiting[*workItem](m, 2))))
}

type workItem struct {
	ID int64
}

func (w *workItem) String() string { return fmt.Sprintf("series %d", w.ID) }

// GetItem finds one active series whose materialization horizon has fallen
// behind the rolling window and still has instances left to generate. Paused
// and cancelled series never match, which is what halts their expansion.
func (m *Module) GetItem(ctx context.Context) (*workItem, error) {
	target := m.now().AddDate(0, 0, horizonDays).Format(bookings.DateFormat)
	item := &workItem{}
	err := m.db.QueryRowContext(ctx,
		`SELECT id FROM series
		 WHERE status = 'active' AND horizon < ? AND horizon < last_date
		 ORDER BY horizon LIMIT 1`, target).Scan(&item.ID)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ProcessItem extends one series' horizon, materializing the instances that
// newly fall inside the window. The whole extension is one transaction.
func (m *Module) ProcessItem(ctx context.Context, item *workItem) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s, err := scanSeries(tx.QueryRowContext(ctx, "SELECT "+selectCols+" FROM series WHERE id = ? AND status = 'active'", item.ID))
	if err != nil {
		return err
	}

	dates, err := Expand(&s.Rule)
	if err != nil {
		return err
	}
	info, err := loadResource(ctx, tx, s.Resource)
	if err != nil {
		return err
	}

	target := m.now().AddDate(0, 0, horizonDays).Format(bookings.DateFormat)
	window := datesThrough(dates, s.Horizon, target)

	created, skipped, err := materialize(ctx, tx, s, info, window)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE series SET horizon = ?, materialized = materialized + ?, skipped = skipped + ?, revision = ?
		 WHERE id = ?`,
		target, len(created), len(skipped), uuid.NewString(), item.ID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Module) UpdateItem(ctx context.Context, item *workItem, success bool) error {
	if success {
		return nil
	}
	// Push the horizon forward anyway so one broken series can't wedge the
	// queue. A series that was paused mid-flight is left alone so resuming
	// picks up where it stopped.
	_, err := m.db.ExecContext(ctx,
		"UPDATE series SET horizon = ? WHERE id = ? AND status = 'active'",
		m.now().AddDate(0, 0, horizonDays).Format(bookings.DateFormat), item.ID)
	return err
}
