package console

import (
	"errors"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xelth-com/examroom/internal/certificate"
	"github.com/xelth-com/examroom/internal/quiz"
	"github.com/xelth-com/examroom/internal/session"
)

// AppOptions configures an App
type AppOptions struct {
	Locale  string
	CertDir string
	PDF     certificate.PDFOptions
	Now     func() time.Time
}

// App binds a session controller to a console
type App struct {
	con  *Console
	ctl  *session.Controller
	opts AppOptions

	mu       sync.Mutex
	last     session.State
	rendered bool
	engine   *quiz.Engine
}

// NewApp renders every controller change to con
func NewApp(con *Console, ctl *session.Controller, opts AppOptions) *App {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CertDir == "" {
		opts.CertDir = "."
	}
	a := &App{con: con, ctl: ctl, opts: opts}
	ctl.OnChange(a.render)
	return a
}

// Run reads commands until the input ends or the user types :q
func (a *App) Run() error {
	a.render(a.ctl.Snapshot())
	for {
		line, err := a.con.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) == ":q" {
			return nil
		}
		if err := a.handle(line); err != nil {
			log.Printf("⚠️ %v", err)
		}
	}
}

// handle dispatches one input line. Names keep their spacing; commands are trimmed.
func (a *App) handle(raw string) error {
	line := strings.TrimSpace(raw)
	snap := a.ctl.Snapshot()
	switch snap.State {
	case session.Landing:
		if line == session.AdminSentinel {
			raw = line
		}
		a.ctl.SetName(raw)
		if a.ctl.Snapshot().AdminPrompt {
			return a.adminLogin()
		}
		if err := a.ctl.SubmitName(); err != nil && !errors.Is(err, session.ErrEmptyName) {
			return err
		}
	case session.Waiting:
		a.con.Print(Waiting(snap))
	case session.Quiz:
		return a.quizCommand(snap, line)
	case session.Result:
		switch line {
		case "i":
			return a.ctl.IssueCertificate()
		case "r":
			return a.ctl.Retry()
		}
	case session.Certificate:
		switch line {
		case "d", "p":
			path, err := certificate.WritePDF(a.opts.CertDir, *snap.Results, snap.CertificateID, a.opts.PDF)
			if err != nil {
				return err
			}
			a.con.Printf("📄 %s\n", path)
		case "b":
			return a.ctl.BackToLanding()
		}
	case session.Admin:
		return a.adminCommand(snap, line)
	}
	return nil
}

func (a *App) adminLogin() error {
	for {
		key, err := a.con.ReadSecret("🔑 ")
		if errors.Is(err, io.EOF) {
			a.ctl.CancelAdminPrompt()
			return nil
		}
		if err != nil {
			a.ctl.CancelAdminPrompt()
			return err
		}
		// an empty line backs out to the landing screen
		if key == "" {
			a.ctl.CancelAdminPrompt()
			return nil
		}
		err = a.ctl.SubmitPassphrase(key)
		if errors.Is(err, session.ErrWrongPassphrase) {
			continue
		}
		if err != nil {
			a.ctl.CancelAdminPrompt()
		}
		return err
	}
}

func (a *App) adminCommand(snap session.Snapshot, line string) error {
	switch line {
	case "q":
		return a.ctl.LeaveAdmin()
	case "c":
		_, err := a.ctl.ClearAll()
		return err
	case "":
		a.con.Print(Admin(snap.Requests, a.opts.Now()))
		return nil
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(snap.Requests) {
		return nil
	}
	return a.ctl.Approve(snap.Requests[n-1].ID)
}

func (a *App) quizCommand(snap session.Snapshot, line string) error {
	e, ok := snap.Quiz.(*quiz.Engine)
	if !ok {
		return nil
	}
	switch line {
	case "c":
		return e.Check()
	case "s":
		return e.Skip()
	case "n":
		return e.Next()
	case "a":
		e.ToggleAutoNext()
		return nil
	case "":
		a.con.Print(Question(e.View()))
		return nil
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		return nil
	}
	return e.Select(n - 1)
}

func (a *App) render(s session.Snapshot) {
	a.mu.Lock()
	changed := !a.rendered || s.State != a.last
	a.rendered = true
	a.last = s.State
	var attach *quiz.Engine
	if e, ok := s.Quiz.(*quiz.Engine); ok && e != a.engine {
		a.engine = e
		attach = e
	}
	eng := a.engine
	a.mu.Unlock()

	if attach != nil {
		attach.OnChange(func() { a.con.Print(Question(attach.View())) })
	}

	switch s.State {
	case session.Landing:
		if changed || s.AdminPrompt {
			a.con.Print(Landing(s))
		}
	case session.Waiting:
		if changed {
			a.con.Print(Waiting(s))
		}
	case session.Quiz:
		if changed && eng != nil {
			a.con.Print(Question(eng.View()))
		}
	case session.Result:
		if changed && s.Results != nil {
			a.con.Print(Result(*s.Results, a.opts.Locale))
		}
	case session.Certificate:
		if changed && s.Results != nil {
			a.con.Print(certificate.RenderText(*s.Results, s.CertificateID))
			a.con.Printf("  d %s · b %s\n", LabelDownload, LabelBack)
		}
	case session.Admin:
		a.con.Print(Admin(s.Requests, a.opts.Now()))
	}
}
