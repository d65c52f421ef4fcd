package audit

import (
	"errors"

	"github.com/joostmulder/AuditPro/internal/model"
)

var (
	// ErrAuditOpen is returned when the user already has an open audit.
	ErrAuditOpen = errors.New("an audit is already open for this user")

	// ErrAuditCompleted is returned when completing an audit that has ended.
	ErrAuditCompleted = model.ErrAlreadyCompleted

	// ErrAuditNotCompleted is returned when reopening an audit that is open.
	ErrAuditNotCompleted = model.ErrNotCompleted

	// ErrAuditNotFound is returned when the audit row does not exist.
	ErrAuditNotFound = errors.New("audit not found")

	// ErrScanNotFound is returned by UpdateScan for an unknown scan.
	ErrScanNotFound = errors.New("scan not found")

	// ErrReportNotFound is returned by UpsertReport for an unknown report id.
	ErrReportNotFound = errors.New("report not found")

	// ErrNoSession is returned by operations that need the signed-in user.
	ErrNoSession = errors.New("no signed-in user")
)

// IsAuditOpen reports whether err is ErrAuditOpen.
func IsAuditOpen(err error) bool {
	return errors.Is(err, ErrAuditOpen)
}

// IsNotFound reports whether err means the audit, scan or report is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAuditNotFound) ||
		errors.Is(err, ErrScanNotFound) ||
		errors.Is(err, ErrReportNotFound)
}
