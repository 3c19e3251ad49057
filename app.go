package main

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/bassamadnan/replybot/config"
	"github.com/bassamadnan/replybot/credential"
	"github.com/bassamadnan/replybot/draft"
	"github.com/bassamadnan/replybot/gmail"
	"github.com/bassamadnan/replybot/monitor"
	"github.com/bassamadnan/replybot/review"
	"github.com/bassamadnan/replybot/tui"
)

// haltError stops startup because the Gmail credential is missing or
// unusable. It is shown to the operator with provisioning instructions.
type haltError struct {
	err error
}

func (e *haltError) Error() string { return "gmail authentication required: " + e.err.Error() }

func (e *haltError) Unwrap() error { return e.err }

func (e *haltError) Render() string {
	return tui.Notice("Gmail authentication required",
		credential.ProvisioningHelp+"\n\nReason: "+e.err.Error())
}

// app holds everything a command needs once the bot has started.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	logFile   io.Closer
	mailbox   *gmail.Client
	account   string
	registry  *review.Registry
	scheduler *monitor.Scheduler
}

type bootstrapOptions struct {
	configPath string
	// logToStderr mirrors the log file on stderr.
	logToStderr bool
	// forceProcessScope ignores server.session_scope.
	forceProcessScope bool
	// gmailOptions are appended to the Gmail client options; tests point
	// the client at a fake server with them.
	gmailOptions []option.ClientOption
}

func bootstrap(ctx context.Context, opts bootstrapOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	log, logFile, err := setupLogging(cfg.Logging, opts.logToStderr)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, logFile: logFile}
	log.Info().Str("target", cfg.Mail.Target).Int("interval_minutes", cfg.Monitor.IntervalMinutes).Msg("replybot starting")

	ts, err := tokenSource(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, &haltError{err: err}
	}

	gmailOpts := append([]option.ClientOption{option.WithTokenSource(ts)}, opts.gmailOptions...)
	a.mailbox, err = gmail.NewClient(ctx, cfg.Mail.Sender, cfg.Mail.Target, log, gmailOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.account, err = a.mailbox.Sender(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("could not look up the gmail account address")
		a.account = "(unknown)"
	}

	gen, err := draft.New(cfg.AI.Provider, draft.Options{
		APIKey:       cfg.AI.APIKey,
		Model:        cfg.AI.Model,
		SystemPrompt: cfg.AI.SystemPrompt,
		BaseURL:      cfg.AI.BaseURL,
		MaxTokens:    cfg.AI.MaxTokens,
		Temperature:  draft.Float(cfg.AI.Temperature),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	scope, err := review.ParseScope(cfg.Server.SessionScope)
	if err != nil {
		a.Close()
		return nil, err
	}
	if opts.forceProcessScope {
		scope = review.ScopeProcess
	}
	a.registry = review.NewRegistry(scope, func() *review.Loop {
		return review.NewLoop(a.mailbox, gen, review.Options{
			MaxHistory: cfg.Monitor.MaxHistory,
			Log:        log.With().Str("component", "review").Logger(),
		})
	})
	a.scheduler = monitor.New(cfg.PollInterval(), a.registry.Loops, log)
	return a, nil
}

// tokenSource resolves the token record from the keyring, if enabled, and
// the config file, and checks that it can be used.
func tokenSource(ctx context.Context, cfg *config.Config, log zerolog.Logger) (oauth2.TokenSource, error) {
	var store credential.Store
	if cfg.Credentials.Keyring {
		ks, err := credential.OpenKeyring(cfg.Credentials.KeyringDir)
		if err != nil {
			return nil, err
		}
		store = ks
	}
	fallback, err := credential.FromConfig(cfg.GmailToken)
	if err != nil {
		return nil, err
	}
	rec, err := credential.Resolve(store, fallback)
	if err != nil {
		return nil, err
	}
	ts, err := credential.TokenSource(ctx, rec, store, log)
	if err != nil {
		return nil, err
	}
	return ts, nil
}

func (a *app) Close() {
	if a.logFile == nil {
		return
	}
	_ = a.logFile.Close()
	a.logFile = nil
}
