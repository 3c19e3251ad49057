package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"github.com/bassamadnan/replybot/config"
	"github.com/bassamadnan/replybot/credential"
	"github.com/bassamadnan/replybot/tui"
	"github.com/bassamadnan/replybot/web"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	serve := serveCmd(opts)
	cmd := &cobra.Command{
		Use:           "replybot",
		Short:         "Review and send drafted replies to one sender's unread Gmail",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file (default replybot.{yaml,toml,json} in . or "+config.DefaultDir()+")")
	cmd.Flags().AddFlagSet(serve.Flags())
	cmd.AddCommand(serve, consoleCmd(opts), authCmd(opts))
	return cmd
}

func serveCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, addr string) error {
	a, err := bootstrap(ctx, bootstrapOptions{configPath: opts.configPath, logToStderr: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	srv, err := web.New(a.registry, a.scheduler, web.Info{
		Account:  a.account,
		Target:   a.cfg.Mail.Target,
		Interval: a.cfg.PollInterval(),
	}, a.log)
	if err != nil {
		return err
	}

	go a.scheduler.Run(ctx)
	return srv.ListenAndServe(ctx, addr)
}

func consoleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Run the terminal console",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := bootstrap(ctx, bootstrapOptions{configPath: opts.configPath, forceProcessScope: true})
			if err != nil {
				return err
			}
			defer a.Close()

			go a.scheduler.Run(ctx)
			app := tui.NewApp(ctx, a.registry.Get(""), a.scheduler, a.cfg.PollInterval(), a.log)
			if err := app.Run(); err != nil {
				return fmt.Errorf("running console: %w", err)
			}
			a.log.Info().Msg("console stopped")
			return nil
		},
	}
}

func authCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Store a Gmail OAuth token in the system keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuth(cmd.Context(), opts)
		},
	}
}

// tokenForm collects the token record fields. It runs on the alternate
// screen so pasted secrets do not stay in the scrollback.
type tokenForm struct {
	token, refreshToken, clientID, clientSecret, tokenURI string
}

func (f *tokenForm) build() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Gmail token").
				Description("Generate a token for the gmail.modify scope, e.g. with the OAuth Playground\n(https://developers.google.com/oauthplayground), and paste the values below."),
			huh.NewInput().
				Title("Access token").
				Description("Optional; refreshed on first use when empty").
				EchoMode(huh.EchoModePassword).
				Value(&f.token),
			huh.NewInput().
				Title("Refresh token").
				EchoMode(huh.EchoModePassword).
				Value(&f.refreshToken).
				Validate(validateRequired("Refresh token")),
			huh.NewInput().
				Title("Client ID").
				Value(&f.clientID).
				Validate(validateRequired("Client ID")),
			huh.NewInput().
				Title("Client secret").
				EchoMode(huh.EchoModePassword).
				Value(&f.clientSecret).
				Validate(validateRequired("Client secret")),
			huh.NewInput().
				Title("Token URI").
				Placeholder(google.Endpoint.TokenURL).
				Value(&f.tokenURI),
		),
	).WithProgramOptions(tea.WithAltScreen())
}

func (f *tokenForm) record() credential.Record {
	uri := strings.TrimSpace(f.tokenURI)
	if uri == "" {
		uri = google.Endpoint.TokenURL
	}
	return credential.Record{
		Token:        strings.TrimSpace(f.token),
		RefreshToken: strings.TrimSpace(f.refreshToken),
		TokenURI:     uri,
		ClientID:     strings.TrimSpace(f.clientID),
		ClientSecret: strings.TrimSpace(f.clientSecret),
		Scopes:       []string{gmail.GmailModifyScope},
	}
}

func validateRequired(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func runAuth(ctx context.Context, opts *rootOptions) error {
	dir := filepath.Join(config.DefaultDir(), "credentials")
	cfg, err := config.Load(opts.configPath)
	switch {
	case err == nil:
		dir = cfg.Credentials.KeyringDir
	case errors.Is(err, config.ErrMissingTarget):
	default:
		return err
	}

	form := &tokenForm{}
	if err := form.build().RunWithContext(ctx); err != nil {
		return fmt.Errorf("reading token: %w", err)
	}
	rec := form.record()

	store, err := credential.OpenKeyring(dir)
	if err != nil {
		return err
	}
	if err := store.Save(rec); err != nil {
		return err
	}
	if _, err := credential.TokenSource(ctx, rec, store, zerolog.Nop()); err != nil {
		return &haltError{err: err}
	}

	fmt.Println("Token saved to the keyring. Set credentials.keyring: true in the config to use it.")
	return nil
}
