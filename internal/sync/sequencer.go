package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/joostmulder/AuditPro/internal/gateway"
	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/joostmulder/AuditPro/internal/session"
	"github.com/joostmulder/AuditPro/internal/tables"
	"github.com/sirupsen/logrus"
)

var (
	// ErrRunning is returned when a pass is started while another is running.
	ErrRunning = errors.New("sync already in progress")

	// ErrNoSession is returned when there is no logged in user to sync for.
	ErrNoSession = errors.New("no active session")
)

// Gateway is the part of the web service client a pass needs.
type Gateway interface {
	UploadAuditPayload(ctx context.Context, token, payload string) error
	FetchStores(ctx context.Context, token string) ([]model.Store, error)
	FetchProducts(ctx context.Context, token string) ([]model.Product, error)
}

// Audits is the part of the audit repository a pass needs.
type Audits interface {
	CompletedAudits(ctx context.Context, userID int64) ([]model.Audit, error)
	Serialize(ctx context.Context, a model.Audit) (string, error)
	DeleteAudit(ctx context.Context, a model.Audit) error
}

// Catalog is the part of the catalog repository a pass needs.
type Catalog interface {
	ApplyRefresh(ctx context.Context, stores []model.Store, products []model.Product) error
}

// Config holds sequencer options.
type Config struct {
	Logger   logrus.FieldLogger
	Observer Observer
	Now      func() time.Time
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logger: logrus.StandardLogger().WithField("component", "sync"),
		Now:    time.Now,
	}
}

// Sequencer runs sync passes for one session. Only one pass runs at a time.
type Sequencer struct {
	audits   Audits
	catalog  Catalog
	gateway  Gateway
	session  *session.Session
	logger   logrus.FieldLogger
	observer Observer
	now      func() time.Time

	mu      stdsync.Mutex
	running bool
	cancel  context.CancelFunc
	state   State
}

// New creates a sequencer with default configuration.
func New(audits Audits, catalog Catalog, gw Gateway, sess *session.Session) *Sequencer {
	return NewWithConfig(audits, catalog, gw, sess, DefaultConfig())
}

// NewWithConfig creates a sequencer with custom configuration.
func NewWithConfig(audits Audits, catalog Catalog, gw Gateway, sess *session.Session, cfg *Config) *Sequencer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	def := DefaultConfig()
	logger := cfg.Logger
	if logger == nil {
		logger = def.Logger
	}
	now := cfg.Now
	if now == nil {
		now = def.Now
	}
	return &Sequencer{
		audits:   audits,
		catalog:  catalog,
		gateway:  gw,
		session:  sess,
		logger:   logger,
		observer: cfg.Observer,
		now:      now,
	}
}

// State returns the state of the current or last pass.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether a pass is in progress.
func (s *Sequencer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Cancel stops the running pass, if any. Audits already sent stay deleted.
func (s *Sequencer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sequencer) begin(ctx context.Context) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, nil, ErrRunning
	}
	s.running = true
	s.state = StateIdle
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		cancel()
		s.cancel = nil
		s.running = false
	}, nil
}

// pass tracks one run of the sequencer.
type pass struct {
	s      *Sequencer
	ctx    context.Context
	log    logrus.FieldLogger
	result Result
}

func (p *pass) emit(e Event) {
	e.At = p.s.now()
	p.s.mu.Lock()
	p.s.state = e.State
	p.s.mu.Unlock()
	if p.s.observer != nil {
		p.s.observer.OnEvent(e)
	}
}

func (p *pass) finish(state State, message string, err error) Result {
	p.result.State = state
	p.result.Message = message
	p.result.Err = err
	p.result.Finished = p.s.now()

	fields := logrus.Fields{
		"state":    state,
		"uploaded": p.result.Uploaded,
		"pending":  p.result.Pending,
		"elapsed":  p.result.Finished.Sub(p.result.Started),
	}
	switch state {
	case StateFailed:
		p.log.WithFields(fields).WithError(err).Warn(message)
	default:
		p.log.WithFields(fields).Info(message)
	}

	p.emit(Event{State: state, Message: message})
	return p.result
}

// canceled reports whether the pass was stopped, either before err or as
// its cause.
func (p *pass) canceled(err error) bool {
	return errors.Is(p.ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled)
}

func (p *pass) cancelResult() Result {
	return p.finish(StateCanceled, "Sync canceled", context.Canceled)
}

// Run performs one pass: upload every completed audit of the session user
// in end-time order, then refresh the catalog.
func (s *Sequencer) Run(ctx context.Context) Result {
	started := s.now()
	ctx, done, err := s.begin(ctx)
	if err != nil {
		return Result{State: StateFailed, Message: "A sync is already in progress", Err: err, Started: started, Finished: started}
	}
	defer done()

	p := &pass{s: s, ctx: ctx, log: s.logger, result: Result{Started: started}}
	if s.session == nil || s.session.Token == "" {
		return p.finish(StateFailed, "Login required to synchronize", ErrNoSession)
	}
	p.log = s.logger.WithField("user_id", s.session.User.ID)

	if r, ok := p.upload(); !ok {
		return r
	}
	return p.refreshCatalog()
}

func (p *pass) upload() (Result, bool) {
	s := p.s
	audits, err := s.audits.CompletedAudits(p.ctx, s.session.User.ID)
	if err != nil {
		if p.canceled(err) {
			return p.cancelResult(), false
		}
		return p.finish(StateFailed, "Failed to read completed audits", err), false
	}
	p.result.Pending = len(audits)

	for i, a := range audits {
		if p.canceled(nil) {
			return p.cancelResult(), false
		}
		p.emit(Event{State: StateUploadingAudit, Index: i, Total: len(audits), AuditID: a.ID, Message: a.StoreDescription})
		log := p.log.WithFields(logrus.Fields{"audit_id": a.ID, "index": i})

		payload, err := s.audits.Serialize(p.ctx, a)
		if err != nil {
			if p.canceled(err) {
				return p.cancelResult(), false
			}
			p.result.FailedAudit = a.ID
			return p.finish(StateFailed, fmt.Sprintf("Failed to prepare audit for %s", a.StoreDescription), err), false
		}

		if err := s.gateway.UploadAuditPayload(p.ctx, s.session.Token, payload); err != nil {
			if p.canceled(err) {
				return p.cancelResult(), false
			}
			p.result.FailedAudit = a.ID
			return p.finish(StateFailed, fmt.Sprintf("Failed to send audit for %s: %s", a.StoreDescription, gateway.Message(err)), err), false
		}

		// The service has the audit now; finish removing it even if the
		// pass is canceled meanwhile.
		if err := s.audits.DeleteAudit(context.WithoutCancel(p.ctx), a); err != nil {
			p.result.FailedAudit = a.ID
			return p.finish(StateFailed, fmt.Sprintf("Sent audit for %s but failed to remove it", a.StoreDescription), err), false
		}
		p.result.Uploaded++
		p.result.Pending--
		log.Info("audit sent")
	}
	return Result{}, true
}

func (p *pass) refreshCatalog() Result {
	s := p.s
	token := s.session.Token

	if p.canceled(nil) {
		return p.cancelResult()
	}
	p.emit(Event{State: StateFetchingStores})
	stores, err := s.gateway.FetchStores(p.ctx, token)
	if err != nil {
		if p.canceled(err) {
			return p.cancelResult()
		}
		return p.finish(StateFailed, "Failed to get stores: "+gateway.Message(err), err)
	}

	if p.canceled(nil) {
		return p.cancelResult()
	}
	p.emit(Event{State: StateFetchingProducts})
	products, err := s.gateway.FetchProducts(p.ctx, token)
	if err != nil {
		if p.canceled(err) {
			return p.cancelResult()
		}
		return p.finish(StateFailed, "Failed to get products: "+gateway.Message(err), err)
	}

	if p.canceled(nil) {
		return p.cancelResult()
	}
	p.emit(Event{State: StateApplyingCatalog})
	if err := s.catalog.ApplyRefresh(p.ctx, stores, products); err != nil {
		if p.canceled(err) {
			return p.cancelResult()
		}
		return p.finish(StateFailed, "Failed to save the stores and products to the database", err)
	}
	p.result.Stores = len(stores)
	p.result.Products = len(products)

	if err := s.session.MarkCatalogSynced(tables.SchemaVersion, s.now()); err != nil {
		p.log.WithError(err).Warn("failed to record catalog sync")
	}
	return p.finish(StateDone, "Sync complete", nil)
}
