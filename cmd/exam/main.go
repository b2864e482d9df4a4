package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/xelth-com/examroom/internal/approval"
	"github.com/xelth-com/examroom/internal/buildinfo"
	"github.com/xelth-com/examroom/internal/certificate"
	"github.com/xelth-com/examroom/internal/config"
	"github.com/xelth-com/examroom/internal/console"
	"github.com/xelth-com/examroom/internal/quiz"
	"github.com/xelth-com/examroom/internal/session"
	"github.com/xelth-com/examroom/internal/store"
	"github.com/xelth-com/examroom/internal/utils"
)

func main() {
	hashPassphrase := flag.Bool("hash-passphrase", false, "read a passphrase and print its bcrypt hash for EXAM_ADMIN_PASSPHRASE")
	flag.Parse()

	if *hashPassphrase {
		printHash()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// the terminal belongs to the exam screens
	closeLog := setupLog(cfg.Client.LogFile)
	defer closeLog()
	log.Printf("🚀 %s", buildinfo.Summary("examroom client"))

	relay := store.NewRelayStore(store.RelayOptions{
		Peers:    cfg.Client.Peers,
		Token:    cfg.Client.RelayToken,
		ClientID: utils.NewClientID("exam"),
	})
	defer relay.Close()

	registry := approval.NewRegistry(relay, cfg.Client.Room)
	registry.Open()
	defer registry.Close()

	con := console.New(os.Stdin, os.Stdout)
	quizOpts := quiz.Options{
		QuestionTime: time.Duration(cfg.Client.QuestionSeconds) * time.Second,
		Threshold:    cfg.Client.PassThreshold,
		Locale:       cfg.Client.Locale,
	}

	ctl := session.New(session.Options{
		Registry:   registry,
		Notifier:   con,
		Confirmer:  con,
		Passphrase: cfg.Client.AdminPassphrase,
		Quiz: func(name string, done func(quiz.Results)) session.QuizRun {
			return quiz.New(name, quizOpts, done)
		},
	})
	defer ctl.Close()

	app := console.NewApp(con, ctl, console.AppOptions{
		Locale:  cfg.Client.Locale,
		CertDir: cfg.Client.CertDir,
		PDF:     certificate.PDFOptions{FontPath: cfg.Client.CertFont},
	})
	if err := app.Run(); err != nil {
		log.Printf("❌ Console stopped: %v", err)
	}
}

func setupLog(path string) func() {
	if path == "" {
		log.SetOutput(io.Discard)
		return func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open log file %s: %v\n", path, err)
		log.SetOutput(io.Discard)
		return func() {}
	}
	log.SetOutput(f)
	return func() { f.Close() }
}

func printHash() {
	fmt.Fprint(os.Stderr, "Passphrase: ")
	var secret []byte
	var err error
	if term.IsTerminal(int(os.Stdin.Fd())) {
		secret, err = term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
	} else {
		var line string
		_, err = fmt.Scanln(&line)
		secret = []byte(line)
	}
	if err != nil {
		log.Fatalf("Failed to read passphrase: %v", err)
	}

	hash, err := utils.HashPassword(string(secret))
	if err != nil {
		log.Fatalf("Failed to hash passphrase: %v", err)
	}
	fmt.Println(hash)
}
