package quiz

import (
	"errors"
	"math"
	"sync"
	"time"
)

var (
	ErrNoSelection = errors.New("no option selected")
	ErrAnswered    = errors.New("question already answered")
	ErrNotAnswered = errors.New("question not answered yet")
	ErrBadOption   = errors.New("option out of range")
	ErrFinished    = errors.New("quiz finished")
	ErrNoQuestions = errors.New("quiz has no questions")
)

// Options configures an Engine. Zero values fall back to the exam defaults.
type Options struct {
	Questions     []Question
	QuestionTime  time.Duration // 60s
	AutoNextDelay time.Duration // 1.5s
	Threshold     float64       // 80
	Locale        string        // ka-GE
	Clock         Clock
}

func (o *Options) defaults() {
	if o.Questions == nil {
		o.Questions = DefaultQuestions()
	}
	if o.QuestionTime <= 0 {
		o.QuestionTime = 60 * time.Second
	}
	if o.AutoNextDelay <= 0 {
		o.AutoNextDelay = 1500 * time.Millisecond
	}
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.Locale == "" {
		o.Locale = "ka-GE"
	}
	if o.Clock == nil {
		o.Clock = RealClock{}
	}
}

// View is a read-only picture of the running quiz
type View struct {
	Index     int
	Total     int
	Question  Question
	Selected  int // -1 when nothing is selected
	Answered  bool
	TimedOut  bool
	Score     int
	Remaining time.Duration
	AutoNext  bool
	Finished  bool
}

// Progress returns the fraction of questions already behind the candidate
func (v View) Progress() float64 {
	if v.Total == 0 {
		return 0
	}
	return float64(v.Index) / float64(v.Total)
}

// Engine runs one quiz attempt: a countdown per question, check/skip/next,
// optional auto-advance, and a one-shot completion callback.
type Engine struct {
	opts       Options
	userName   string
	onComplete func(Results)

	mu        sync.Mutex
	started   bool
	index     int
	score     int
	selected  int
	answered  bool
	timedOut  bool
	autoNext  bool
	deadline  time.Time
	countdown Timer
	advance   Timer
	finished  bool
	listeners []func()
}

// New prepares a quiz for userName; call Start to arm the first countdown
func New(userName string, opts Options, onComplete func(Results)) *Engine {
	opts.defaults()
	return &Engine{
		opts:       opts,
		userName:   userName,
		onComplete: onComplete,
		selected:   -1,
	}
}

// OnChange registers a listener called after every state change, outside the engine lock.
// Timer-driven changes call it from the timer goroutine.
func (e *Engine) OnChange(fn func()) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// Start arms the countdown for the first question
func (e *Engine) Start() error {
	e.mu.Lock()
	if len(e.opts.Questions) == 0 {
		e.mu.Unlock()
		return ErrNoQuestions
	}
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.armLocked()
	e.mu.Unlock()
	e.notify()
	return nil
}

// Select marks an option for the current question
func (e *Engine) Select(option int) error {
	e.mu.Lock()
	if err := e.checkOpenLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	if option < 0 || option >= len(e.currentLocked().Options) {
		e.mu.Unlock()
		return ErrBadOption
	}
	e.selected = option
	e.mu.Unlock()
	e.notify()
	return nil
}

// Check grades the selected option
func (e *Engine) Check() error {
	e.mu.Lock()
	if err := e.checkOpenLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.selected < 0 {
		e.mu.Unlock()
		return ErrNoSelection
	}
	e.answerLocked(true)
	e.mu.Unlock()
	e.notify()
	return nil
}

// Skip gives up the current question without scoring it
func (e *Engine) Skip() error {
	e.mu.Lock()
	if err := e.checkOpenLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	e.answerLocked(false)
	e.mu.Unlock()
	e.notify()
	return nil
}

// Next moves to the following question, or finishes after the last one
func (e *Engine) Next() error {
	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return ErrFinished
	}
	if !e.answered {
		e.mu.Unlock()
		return ErrNotAnswered
	}
	results, done := e.nextLocked()
	e.mu.Unlock()

	if done {
		e.onComplete(results)
	}
	e.notify()
	return nil
}

// ToggleAutoNext flips auto-advance and returns the new setting
func (e *Engine) ToggleAutoNext() bool {
	e.mu.Lock()
	e.autoNext = !e.autoNext
	on := e.autoNext
	if on && e.answered && !e.finished {
		e.scheduleAdvanceLocked()
	}
	e.mu.Unlock()
	e.notify()
	return on
}

// View returns the current state
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := View{
		Index:    e.index,
		Total:    len(e.opts.Questions),
		Selected: e.selected,
		Answered: e.answered,
		TimedOut: e.timedOut,
		Score:    e.score,
		AutoNext: e.autoNext,
		Finished: e.finished,
	}
	if e.index < len(e.opts.Questions) {
		v.Question = e.opts.Questions[e.index]
	}
	if e.started && !e.answered && !e.finished {
		if rem := e.deadline.Sub(e.opts.Clock.Now()); rem > 0 {
			v.Remaining = rem
		}
	}
	return v
}

// RemainingSeconds is the countdown rounded up, as shown to the candidate
func (v View) RemainingSeconds() int {
	return int(math.Ceil(v.Remaining.Seconds()))
}

// Stop cancels pending timers without completing
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTimersLocked()
	e.finished = true
}

func (e *Engine) checkOpenLocked() error {
	if e.finished {
		return ErrFinished
	}
	if e.answered {
		return ErrAnswered
	}
	return nil
}

func (e *Engine) currentLocked() Question {
	return e.opts.Questions[e.index]
}

// answerLocked closes the current question, scoring it when graded
func (e *Engine) answerLocked(graded bool) {
	if graded && e.selected == e.currentLocked().Correct {
		e.score++
	}
	e.answered = true
	if e.countdown != nil {
		e.countdown.Stop()
		e.countdown = nil
	}
	if e.autoNext || e.timedOut {
		e.scheduleAdvanceLocked()
	}
}

func (e *Engine) armLocked() {
	e.deadline = e.opts.Clock.Now().Add(e.opts.QuestionTime)
	index := e.index
	e.countdown = e.opts.Clock.AfterFunc(e.opts.QuestionTime, func() { e.expire(index) })
}

// expire grades whatever is selected when the countdown runs out
func (e *Engine) expire(index int) {
	e.mu.Lock()
	if e.finished || e.answered || e.index != index {
		e.mu.Unlock()
		return
	}
	e.countdown = nil
	e.timedOut = true
	e.answerLocked(true)
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) scheduleAdvanceLocked() {
	if e.advance != nil {
		return
	}
	index := e.index
	e.advance = e.opts.Clock.AfterFunc(e.opts.AutoNextDelay, func() { e.autoAdvance(index) })
}

func (e *Engine) autoAdvance(index int) {
	e.mu.Lock()
	if e.finished || !e.answered || e.index != index {
		e.mu.Unlock()
		return
	}
	e.advance = nil
	results, done := e.nextLocked()
	e.mu.Unlock()

	if done {
		e.onComplete(results)
	}
	e.notify()
}

func (e *Engine) nextLocked() (Results, bool) {
	e.stopTimersLocked()

	if e.index < len(e.opts.Questions)-1 {
		e.index++
		e.selected = -1
		e.answered = false
		e.timedOut = false
		e.armLocked()
		return Results{}, false
	}

	e.finished = true
	total := len(e.opts.Questions)
	return Results{
		Score:          e.score,
		TotalQuestions: total,
		Passed:         Passed(e.score, total, e.opts.Threshold),
		UserName:       e.userName,
		Date:           FormatDate(e.opts.Clock.Now(), e.opts.Locale),
	}, true
}

func (e *Engine) stopTimersLocked() {
	if e.countdown != nil {
		e.countdown.Stop()
		e.countdown = nil
	}
	if e.advance != nil {
		e.advance.Stop()
		e.advance = nil
	}
}

func (e *Engine) notify() {
	e.mu.Lock()
	listeners := append([]func(){}, e.listeners...)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}
