// Package session drives one client through the exam: landing, waiting for
// approval, the quiz, the result and the certificate, plus the admin view.
package session

import (
	"strings"
	"sync"

	"github.com/xelth-com/examroom/internal/approval"
	"github.com/xelth-com/examroom/internal/certificate"
	"github.com/xelth-com/examroom/internal/quiz"
	"github.com/xelth-com/examroom/internal/utils"
)

// Registry is the part of approval.Registry the controller needs
type Registry interface {
	RequestAccess(name string) (string, error)
	Approve(id string) error
	ClearAll() error
	ObserveAll(fn func([]approval.AccessRequest)) approval.Unsubscribe
	ObserveOne(id string, fn func(approval.Status)) approval.Unsubscribe
}

// Notifier shows a blocking message to the user
type Notifier interface {
	Alert(msg string)
}

// Confirmer asks the user to confirm a destructive action
type Confirmer interface {
	Confirm(msg string) bool
}

// QuizRun is a running quiz attempt
type QuizRun interface {
	Start() error
	Stop()
}

// QuizFactory creates a quiz for userName that reports through onComplete exactly once
type QuizFactory func(userName string, onComplete func(quiz.Results)) QuizRun

// Options wires a Controller
type Options struct {
	Registry   Registry
	Notifier   Notifier
	Confirmer  Confirmer
	Quiz       QuizFactory
	Passphrase string
	// Defaults to utils.CheckPassphrase
	CheckPassphrase func(input, configured string) bool
	// Defaults to certificate.NewID
	CertificateID func(score int) string
}

// Snapshot is an immutable view of the controller
type Snapshot struct {
	State         State
	AdminPrompt   bool
	Name          string
	Passphrase    string
	RequestID     string
	Results       *quiz.Results
	CertificateID string
	Requests      []approval.AccessRequest
	Quiz          QuizRun
}

// Controller is the per-client state machine.
// Subscription callbacks may arrive on transport goroutines at any time,
// including after the state they were attached for has been left; each
// carries the generation it was created under and is dropped once stale.
type Controller struct {
	opts Options

	mu          sync.Mutex
	state       State
	adminPrompt bool
	name        string
	passphrase  string
	submitting  bool
	requestID   string
	results     *quiz.Results
	certID      string
	requests    []approval.AccessRequest
	run         QuizRun

	waitGen  uint64
	adminGen uint64
	quizGen  uint64
	unwatch  approval.Unsubscribe
	unadmin  approval.Unsubscribe

	listeners []func(Snapshot)
}

// New creates a controller on the Landing screen
func New(opts Options) *Controller {
	if opts.CheckPassphrase == nil {
		opts.CheckPassphrase = utils.CheckPassphrase
	}
	if opts.CertificateID == nil {
		opts.CertificateID = certificate.NewID
	}
	return &Controller{opts: opts, state: Landing}
}

// OnChange registers a listener called after every transition or update, outside the lock
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Snapshot returns the current view
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		State:         c.state,
		AdminPrompt:   c.adminPrompt,
		Name:          c.name,
		Passphrase:    c.passphrase,
		RequestID:     c.requestID,
		CertificateID: c.certID,
		Quiz:          c.run,
	}
	if c.results != nil {
		r := *c.results
		s.Results = &r
	}
	if c.requests != nil {
		s.Requests = append([]approval.AccessRequest(nil), c.requests...)
	}
	return s
}

// SetName updates the name field. The admin sentinel opens the passphrase prompt instead.
func (c *Controller) SetName(v string) {
	c.mu.Lock()
	if c.state != Landing {
		c.mu.Unlock()
		return
	}
	if v == AdminSentinel {
		c.adminPrompt = true
		c.name = ""
	} else {
		c.name = v
	}
	c.mu.Unlock()
	c.notify()
}

// SubmitName requests access and moves to Waiting without waiting for the relay
func (c *Controller) SubmitName() error {
	c.mu.Lock()
	if c.state != Landing || c.adminPrompt || c.submitting {
		defer c.mu.Unlock()
		return invalid(c.state, "submit name")
	}
	name := c.name
	if strings.TrimSpace(name) == "" {
		c.mu.Unlock()
		c.opts.Notifier.Alert(MsgEmptyName)
		return ErrEmptyName
	}
	c.submitting = true
	c.mu.Unlock()

	id, err := c.opts.Registry.RequestAccess(name)

	c.mu.Lock()
	c.submitting = false
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.requestID = id
	c.state = Waiting
	c.waitGen++
	gen := c.waitGen
	c.mu.Unlock()
	c.notify()

	unwatch := c.opts.Registry.ObserveOne(id, func(s approval.Status) {
		c.onStatus(gen, s)
	})
	c.keep(&c.unwatch, &c.waitGen, gen, unwatch)
	return nil
}

// onStatus moves a waiting candidate into the quiz on the first approval
func (c *Controller) onStatus(gen uint64, s approval.Status) {
	c.mu.Lock()
	if gen != c.waitGen || c.state != Waiting || s != approval.StatusApproved {
		c.mu.Unlock()
		return
	}
	c.state = Quiz
	c.waitGen++
	unwatch := c.unwatch
	c.unwatch = nil
	c.quizGen++
	qgen := c.quizGen
	name := c.name
	c.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	c.startQuiz(qgen, name)
	c.notify()
}

func (c *Controller) startQuiz(qgen uint64, name string) {
	if c.opts.Quiz == nil {
		return
	}
	run := c.opts.Quiz(name, func(r quiz.Results) {
		c.complete(qgen, r)
	})

	c.mu.Lock()
	if qgen != c.quizGen || c.state != Quiz {
		c.mu.Unlock()
		run.Stop()
		return
	}
	c.run = run
	c.mu.Unlock()

	if err := run.Start(); err != nil {
		c.opts.Notifier.Alert(err.Error())
	}
}

// Complete records the quiz results and shows them
func (c *Controller) Complete(r quiz.Results) error {
	c.mu.Lock()
	gen := c.quizGen
	c.mu.Unlock()
	return c.complete(gen, r)
}

func (c *Controller) complete(qgen uint64, r quiz.Results) error {
	c.mu.Lock()
	if c.state != Quiz || qgen != c.quizGen {
		defer c.mu.Unlock()
		return invalid(c.state, "complete")
	}
	c.results = &r
	c.state = Result
	c.quizGen++
	c.run = nil
	c.mu.Unlock()
	c.notify()
	return nil
}

// IssueCertificate moves a passed result to the certificate
func (c *Controller) IssueCertificate() error {
	c.mu.Lock()
	if c.state != Result || c.results == nil || !c.results.Passed {
		defer c.mu.Unlock()
		return invalid(c.state, "issue certificate")
	}
	c.certID = c.opts.CertificateID(c.results.Score)
	c.state = Certificate
	c.mu.Unlock()
	c.notify()
	return nil
}

// Retry discards the result and returns to Landing. The old approval stays as it is.
func (c *Controller) Retry() error {
	c.mu.Lock()
	if c.state != Result {
		defer c.mu.Unlock()
		return invalid(c.state, "retry")
	}
	c.toLandingLocked()
	c.mu.Unlock()
	c.notify()
	return nil
}

// BackToLanding leaves the certificate
func (c *Controller) BackToLanding() error {
	c.mu.Lock()
	if c.state != Certificate {
		defer c.mu.Unlock()
		return invalid(c.state, "back to landing")
	}
	c.toLandingLocked()
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Controller) toLandingLocked() {
	c.state = Landing
	c.results = nil
	c.certID = ""
	c.requestID = ""
}

// SubmitPassphrase checks the admin key and enters Admin on a match
func (c *Controller) SubmitPassphrase(p string) error {
	c.mu.Lock()
	if c.state != Landing || !c.adminPrompt {
		defer c.mu.Unlock()
		return invalid(c.state, "submit passphrase")
	}
	if !c.opts.CheckPassphrase(p, c.opts.Passphrase) {
		c.passphrase = p
		c.mu.Unlock()
		c.opts.Notifier.Alert(MsgWrongPassphrase)
		return ErrWrongPassphrase
	}
	c.state = Admin
	c.adminPrompt = false
	c.passphrase = ""
	c.adminGen++
	gen := c.adminGen
	c.mu.Unlock()
	c.notify()

	unadmin := c.opts.Registry.ObserveAll(func(reqs []approval.AccessRequest) {
		c.onRequests(gen, reqs)
	})
	c.keep(&c.unadmin, &c.adminGen, gen, unadmin)
	return nil
}

func (c *Controller) onRequests(gen uint64, reqs []approval.AccessRequest) {
	c.mu.Lock()
	if gen != c.adminGen || c.state != Admin {
		c.mu.Unlock()
		return
	}
	c.requests = reqs
	c.mu.Unlock()
	c.notify()
}

// CancelAdminPrompt closes the passphrase prompt
func (c *Controller) CancelAdminPrompt() {
	c.mu.Lock()
	c.adminPrompt = false
	c.passphrase = ""
	c.mu.Unlock()
	c.notify()
}

// LeaveAdmin returns to Landing and detaches the admin list
func (c *Controller) LeaveAdmin() error {
	c.mu.Lock()
	if c.state != Admin {
		defer c.mu.Unlock()
		return invalid(c.state, "leave admin")
	}
	c.state = Landing
	c.adminGen++
	c.requests = nil
	unadmin := c.unadmin
	c.unadmin = nil
	c.mu.Unlock()

	if unadmin != nil {
		unadmin()
	}
	c.notify()
	return nil
}

// Approve lets a candidate into the quiz
func (c *Controller) Approve(id string) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != Admin {
		return invalid(state, "approve")
	}
	return c.opts.Registry.Approve(id)
}

// ClearAll wipes every request after confirmation. It reports whether the wipe happened.
func (c *Controller) ClearAll() (bool, error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != Admin {
		return false, invalid(state, "clear all")
	}
	if !c.opts.Confirmer.Confirm(MsgConfirmClear) {
		return false, nil
	}
	if err := c.opts.Registry.ClearAll(); err != nil {
		return false, err
	}

	c.mu.Lock()
	if c.state == Admin {
		c.requests = []approval.AccessRequest{}
	}
	c.mu.Unlock()
	c.notify()
	return true, nil
}

// Close detaches every subscription and stops a running quiz
func (c *Controller) Close() {
	c.mu.Lock()
	c.waitGen++
	c.adminGen++
	c.quizGen++
	unwatch, unadmin, run := c.unwatch, c.unadmin, c.run
	c.unwatch, c.unadmin, c.run = nil, nil, nil
	c.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	if unadmin != nil {
		unadmin()
	}
	if run != nil {
		run.Stop()
	}
}

// keep stores unsub in slot if gen is still current, otherwise releases it
func (c *Controller) keep(slot *approval.Unsubscribe, genp *uint64, gen uint64, unsub approval.Unsubscribe) {
	c.mu.Lock()
	if *genp == gen {
		*slot = unsub
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	unsub()
}

func (c *Controller) notify() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	listeners := append([]func(Snapshot){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}
