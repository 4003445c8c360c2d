package main

import (
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/meszmate/filibuster/internal/config"
	"github.com/meszmate/filibuster/internal/logging"
	"github.com/meszmate/filibuster/internal/session"
	"github.com/meszmate/filibuster/internal/storage/sqlite"
	"github.com/meszmate/filibuster/internal/ui"
	"github.com/meszmate/filibuster/internal/xmpp"
)

// profileRetentionDays bounds how long unrefreshed cache entries are
// kept before being pruned at startup.
const profileRetentionDays = 30

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	accounts, err := config.LoadAccounts()
	if err != nil {
		log.Fatalf("Failed to load accounts: %v", err)
	}
	if len(accounts.Accounts) == 0 {
		log.Fatalf("No accounts configured; add one to accounts.toml")
	}
	account := accounts.Accounts[0]

	logger, err := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logger.Close()

	var cache session.ProfileCache
	if cfg.Cache.Profiles {
		db, err := sqlite.New(cfg.Cache.Path)
		if err != nil {
			logger.Warn("profile cache unavailable: %v", err)
		} else {
			defer db.Close()
			if err := db.Prune(time.Now().AddDate(0, 0, -profileRetentionDays)); err != nil {
				logger.Warn("profile cache prune failed: %v", err)
			}
			cache = db
		}
	}

	transport := xmpp.NewClient(xmpp.ClientOptions{
		Server:   account.Server,
		Port:     account.Port,
		Resource: account.Resource,
		Logger:   logger,
	})

	sess := session.New(transport, session.Options{
		RosterTimeout: cfg.Session.RosterTimeout(),
		FetchDelay:    cfg.Session.ProfileFetchDelay(),
		Logger:        logger,
		Cache:         cache,
	})
	defer sess.Close()

	model := ui.NewModel(sess, cfg, account.JID)
	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
	)

	// Bridge session events into the program. The forwarder keeps the
	// session's processing path from ever blocking on the renderer;
	// under overflow events are dropped and the next one repaints the
	// full snapshot anyway.
	events := make(chan session.Event, 256)
	sess.Events().SubscribeAll(func(e session.Event) {
		select {
		case events <- e:
		default:
			logger.Warn("renderer lagging, dropping %s event", e.Type)
		}
	})
	go func() {
		for e := range events {
			p.Send(ui.SessionEventMsg{Event: e})
		}
	}()

	if err := sess.Connect(account.JID, account.Password); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}
