package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vmdash.io/vmdash/internal/app"
	"vmdash.io/vmdash/internal/config"
	"vmdash.io/vmdash/internal/dispatch"
	"vmdash.io/vmdash/internal/domain"
	"vmdash.io/vmdash/internal/notification"
	"vmdash.io/vmdash/internal/pkg/logger"
	"vmdash.io/vmdash/internal/session"
	"vmdash.io/vmdash/internal/view"
)

// errReported marks a failure the user has already been notified about.
var errReported = errors.New("reported")

func reported(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", errReported, err)
}

// streams are the terminal the commands talk to.
type streams struct {
	in       io.Reader
	out      io.Writer
	err      io.Writer
	terminal bool
	browser  dispatch.Browser
}

func newStreams() *streams {
	return &streams{
		in:       os.Stdin,
		out:      os.Stdout,
		err:      os.Stderr,
		terminal: isTerminal(os.Stderr),
		browser:  dispatch.SystemBrowser{},
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// cli holds the flags shared by every command and the session built for the
// running command.
type cli struct {
	io         *streams
	configPath string
	logLevel   string
	output     string
	assumeYes  bool
	// quiet suppresses the login hint, e.g. while logging out.
	quiet bool

	cfg *config.Config
	app *app.Application

	reader *bufio.Reader
}

// execute runs one command line and releases the session afterwards, whether
// the command succeeded or not.
func execute(ctx context.Context, s *streams, args []string) error {
	root, c := newRootCommand(s)
	root.SetArgs(args)
	defer c.teardown()
	return root.ExecuteContext(ctx)
}

func newRootCommand(s *streams) (*cobra.Command, *cli) {
	c := &cli{io: s, reader: bufio.NewReader(s.in)}

	root := &cobra.Command{
		Use:           "vmdash",
		Short:         "Manage VMware and Nutanix virtual machines through the VM management backend",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}
	root.SetIn(s.in)
	root.SetOut(s.out)
	root.SetErr(s.err)

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Config file (default searches ., ./config, ~/.vmdash, /etc/vmdash)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	root.PersistentFlags().StringVarP(&c.output, "output", "o", "text", "Output format (text, json)")

	root.AddCommand(
		newLoginCommand(c),
		newLogoutCommand(c),
		newWhoamiCommand(c),
		newRegisterCommand(c),
		newDashboardCommand(c),
		newVMsCommand(c),
		newCloneCommand(c),
		newCreateCommand(c),
		newSnapshotCommand(c),
		newResourcesCommand(c),
		newSettingsCommand(c),
		newWatchCommand(c),
	)
	return root, c
}

// setup loads the configuration and initializes logging.
func (c *cli) setup() error {
	if c.output != "text" && c.output != "json" {
		return fmt.Errorf("unsupported output format %q", c.output)
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	c.cfg = cfg
	return nil
}

// open bootstraps the client session for a command.
func (c *cli) open(ctx context.Context) (*app.Application, error) {
	if c.app != nil {
		return c.app, nil
	}
	var loading view.Loading = view.NopLoading{}
	var sink notification.Sink = notification.NewWriterSink(c.io.err)
	if c.io.terminal {
		loading = view.NewSpinner(c.io.err)
		sink = notification.NewColorWriterSink(c.io.err)
	}

	application, err := app.Bootstrap(ctx, c.cfg, app.Options{
		Loading:   loading,
		Confirmer: dispatch.ConfirmFunc(c.confirm),
		Browser:   c.io.browser,
		Navigator: c.navigator(),
		Sinks:     []notification.Sink{sink},
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	c.app = application
	return application, nil
}

// enter opens the session, loads the dashboard and requires the session to
// be authenticated.
func (c *cli) enter(ctx context.Context) (*app.Application, error) {
	return c.enterWith(ctx, (*app.Application).Enter)
}

// enterForms is enter for commands that work on the create/clone forms: it
// loads templates, clusters and networks as well.
func (c *cli) enterForms(ctx context.Context) (*app.Application, error) {
	return c.enterWith(ctx, (*app.Application).EnterForms)
}

func (c *cli) enterWith(ctx context.Context, entry func(*app.Application, context.Context) domain.Session) (*app.Application, error) {
	application, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	if sess := entry(application, ctx); !sess.Authenticated {
		return nil, reported(errors.New("not logged in"))
	}
	return application, nil
}

func (c *cli) teardown() {
	if c.app != nil {
		c.app.Shutdown()
		c.app = nil
	}
	_ = logger.Sync()
}

// navigator turns navigation to the login page into a hint.
func (c *cli) navigator() session.Navigator {
	return session.NavigatorFunc(func(path string) {
		logger.Debug("Navigate", zap.String("path", path))
		if path == c.cfg.Session.LoginPath && !c.quiet {
			fmt.Fprintln(c.io.err, "Not logged in. Run 'vmdash login'.")
		}
	})
}

// confirm asks a yes/no question on the terminal. --yes answers it.
func (c *cli) confirm(_ context.Context, prompt string) bool {
	if c.assumeYes {
		return true
	}
	fmt.Fprintf(c.io.err, "%s [y/N]: ", prompt)
	answer, err := c.reader.ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// prompt reads one line, showing label first.
func (c *cli) prompt(label string) (string, error) {
	fmt.Fprintf(c.io.err, "%s: ", label)
	line, err := c.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

func (c *cli) json() bool { return c.output == "json" }
