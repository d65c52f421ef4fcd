// Package audit composes the audit, scan, report, notes and SKU condition
// tables into the operations an auditor performs during a store visit, and
// builds the payload uploaded when a visit is synchronized.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/joostmulder/AuditPro/internal/session"
	"github.com/joostmulder/AuditPro/internal/store"
	"github.com/joostmulder/AuditPro/internal/tables"
	"github.com/sirupsen/logrus"
)

// Config holds repository options.
type Config struct {
	Logger logrus.FieldLogger
	Now    func() time.Time
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logger: logrus.StandardLogger().WithField("component", "audit"),
		Now:    time.Now,
	}
}

// Repository is the audit side of the local store.
type Repository struct {
	db      *store.DB
	session *session.Session
	logger  logrus.FieldLogger
	now     func() time.Time

	audits     *tables.AuditTable
	scans      *tables.ScanTable
	reports    *tables.ReportTable
	notes      *tables.NotesTable
	conditions *tables.ConditionsTable

	// step runs between the writes of a multi-table operation.
	step func(op string) error
}

// New creates a repository with the default configuration. sess may be nil
// for callers that never serialize or build receipts.
func New(db *store.DB, sess *session.Session) *Repository {
	return NewWithConfig(db, sess, DefaultConfig())
}

// NewWithConfig creates a repository with custom configuration.
func NewWithConfig(db *store.DB, sess *session.Session, cfg *Config) *Repository {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = DefaultConfig().Logger
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Repository{
		db:         db,
		session:    sess,
		logger:     logger,
		now:        now,
		audits:     tables.NewAuditTable(db),
		scans:      tables.NewScanTable(db),
		reports:    tables.NewReportTable(db),
		notes:      tables.NewNotesTable(db),
		conditions: tables.NewConditionsTable(db),
		step:       func(string) error { return nil },
	}
}

// Session returns the session the repository was created with.
func (r *Repository) Session() *session.Session {
	return r.session
}

func (r *Repository) logFailure(err error, op string, fields logrus.Fields) {
	entry := r.logger.WithError(err).WithField("op", op)
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Error("audit store operation failed")
}

// StartAudit opens a new audit for p.UserID. It fails with ErrAuditOpen if
// that user already has an open audit; the check and the insert share one
// transaction.
func (r *Repository) StartAudit(ctx context.Context, p model.StartParams) (model.Audit, error) {
	a := model.NewAudit(p, r.now())

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		audits := r.audits.WithTx(tx)
		open, err := audits.OpenFor(ctx, p.UserID)
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return fmt.Errorf("%w: %s", ErrAuditOpen, open[0].ID)
		}
		return audits.Insert(ctx, a)
	})
	if err != nil {
		if !IsAuditOpen(err) {
			r.logFailure(err, "start", logrus.Fields{"user_id": p.UserID, "store_id": p.StoreID})
		}
		return model.Audit{}, err
	}

	r.logger.WithFields(logrus.Fields{"audit_id": a.ID, "user_id": a.UserID, "store_id": a.StoreID}).Info("audit started")
	return a, nil
}

// ResumeAudit returns the open audit of userID, or nil when there is none.
func (r *Repository) ResumeAudit(ctx context.Context, userID int64) (*model.Audit, error) {
	open, err := r.audits.OpenFor(ctx, userID)
	if err != nil {
		r.logFailure(err, "resume", logrus.Fields{"user_id": userID})
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}
	if len(open) > 1 {
		r.logger.WithFields(logrus.Fields{"user_id": userID, "open": len(open)}).Warn("more than one open audit, resuming the newest")
	}
	return open[0], nil
}

// GetAudit returns the audit with id, or nil.
func (r *Repository) GetAudit(ctx context.Context, id uuid.UUID) (*model.Audit, error) {
	a, err := r.audits.Get(ctx, id)
	if err != nil {
		r.logFailure(err, "get", logrus.Fields{"audit_id": id})
		return nil, err
	}
	return a, nil
}

// CompleteAudit stamps the end of a and returns the completed value. The
// end time is never overwritten: an audit that already ended fails with
// ErrAuditCompleted and nothing is written.
func (r *Repository) CompleteAudit(ctx context.Context, a model.Audit, lat, lon *float64, endTime time.Time) (model.Audit, error) {
	done, err := a.Complete(lat, lon, endTime)
	if err != nil {
		return a, err
	}

	ok, err := r.audits.SetEnded(ctx, a.ID, *done.EndedAt, lat, lon)
	if err != nil {
		r.logFailure(err, "complete", logrus.Fields{"audit_id": a.ID})
		return a, err
	}
	if !ok {
		stored, err := r.audits.Get(ctx, a.ID)
		if err != nil {
			return a, err
		}
		if stored == nil {
			return a, fmt.Errorf("%w: %s", ErrAuditNotFound, a.ID)
		}
		return *stored, ErrAuditCompleted
	}

	r.logger.WithField("audit_id", a.ID).Info("audit completed")
	return done, nil
}

// ReopenAudit clears the end time and end position of a completed audit.
// The id and start time are kept. Reopening fails with ErrAuditOpen when the
// user has started another audit in the meantime.
func (r *Repository) ReopenAudit(ctx context.Context, a model.Audit) (model.Audit, error) {
	reopened, err := a.Reopen()
	if err != nil {
		return a, err
	}

	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		audits := r.audits.WithTx(tx)
		open, err := audits.OpenFor(ctx, a.UserID)
		if err != nil {
			return err
		}
		for _, o := range open {
			if o.ID != a.ID {
				return fmt.Errorf("%w: %s", ErrAuditOpen, o.ID)
			}
		}
		ok, err := audits.ClearEnded(ctx, a.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrAuditNotFound, a.ID)
		}
		return nil
	})
	if err != nil {
		if !IsAuditOpen(err) && !IsNotFound(err) {
			r.logFailure(err, "reopen", logrus.Fields{"audit_id": a.ID})
		}
		return a, err
	}

	r.logger.WithField("audit_id", a.ID).Info("audit reopened")
	return reopened, nil
}

// CompletedAudits returns the audits of userID waiting for upload, in the
// order they were completed.
func (r *Repository) CompletedAudits(ctx context.Context, userID int64) ([]model.Audit, error) {
	list, err := r.audits.CompletedFor(ctx, userID)
	if err != nil {
		r.logFailure(err, "completed", logrus.Fields{"user_id": userID})
		return nil, err
	}
	res := make([]model.Audit, 0, len(list))
	for _, a := range list {
		res = append(res, *a)
	}
	return res, nil
}

// CountAudits counts the completed or open audits of userID.
func (r *Repository) CountAudits(ctx context.Context, userID int64, completed bool) (int, error) {
	n, err := r.audits.Count(ctx, userID, completed)
	if err != nil {
		r.logFailure(err, "count", logrus.Fields{"user_id": userID})
		return 0, err
	}
	return n, nil
}

// DeleteAudit removes a and every scan, report, condition selection and note
// that references it, in one transaction.
func (r *Repository) DeleteAudit(ctx context.Context, a model.Audit) error {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		steps := []struct {
			name string
			run  func() error
		}{
			{"scans", func() error { _, err := r.scans.WithTx(tx).DeleteFor(ctx, a.ID); return err }},
			{"reports", func() error { _, err := r.reports.WithTx(tx).DeleteFor(ctx, a.ID); return err }},
			{"conditions", func() error { _, err := r.conditions.WithTx(tx).DeleteFor(ctx, a.ID); return err }},
			{"notes", func() error { _, err := r.notes.WithTx(tx).DeleteFor(ctx, a.ID); return err }},
			{"audit", func() error { return r.audits.WithTx(tx).Delete(ctx, a.ID) }},
		}
		for _, s := range steps {
			if err := r.step("delete:" + s.name); err != nil {
				return fmt.Errorf("failed to delete %s: %w", s.name, err)
			}
			if err := s.run(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logFailure(err, "delete", logrus.Fields{"audit_id": a.ID})
		return fmt.Errorf("failed to remove audit %s from local cache: %w", a.ID, err)
	}

	r.logger.WithField("audit_id", a.ID).Info("audit deleted")
	return nil
}
