package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/hashicorp/go-multierror"
	"github.com/jessevdk/go-flags"
	"golang.org/x/term"

	"github.com/umputun/rowbatch/pkg/backend/sqldb"
	"github.com/umputun/rowbatch/pkg/config"
	"github.com/umputun/rowbatch/pkg/report"
	"github.com/umputun/rowbatch/pkg/runner"
	"github.com/umputun/rowbatch/pkg/secrets"
)

type options struct {
	PositionalArgs struct {
		AdHocStatement string `positional-arg-name:"statement" description:"run ad-hoc statement instead of the book queries"`
	} `positional-args:"yes" positional-optional:"yes"`

	BookFile   string            `short:"b" long:"book" env:"ROWBATCH_BOOK" description:"query book file" default:"rowbatch.yml"`
	DSN        string            `short:"d" long:"dsn" env:"ROWBATCH_DSN" description:"connection string, overrides the book default"`
	Queries    []string          `short:"q" long:"query" description:"query name from the book, all queries if not set"`
	Batch      int               `short:"n" long:"batch" env:"ROWBATCH_BATCH" description:"rows per fetch, overrides the book"`
	Limit      int               `long:"limit" description:"max rows per query, 0 for all" default:"0"`
	Concurrent int               `short:"c" long:"concurrent" description:"concurrent queries" default:"1"`
	Vars       map[string]string `short:"v" long:"var" description:"variables for ${name} placeholders of connection strings"`
	AskPass    bool              `long:"ask-password" description:"read ${password} from terminal"`

	Format    string        `short:"f" long:"format" description:"output format" choice:"table" choice:"lines" default:"table"`
	Width     int           `short:"w" long:"width" description:"max cell width, 0 for unlimited" default:"0"`
	NoColor   bool          `long:"no-color" env:"ROWBATCH_NO_COLOR" description:"disable colorized output"`
	MaxText   int           `long:"max-text" env:"ROWBATCH_MAX_TEXT" description:"buffer size for unbounded text columns" default:"4096"`
	WideText  bool          `long:"wide" description:"fetch text columns as utf-16"`
	ConnectTO time.Duration `long:"timeout" env:"ROWBATCH_TIMEOUT" description:"connect timeout" default:"30s"`

	// secrets
	SecretsProvider SecretsProvider `group:"secrets" namespace:"secrets" env-namespace:"ROWBATCH_SECRETS"`

	Version bool `long:"version" description:"show version"`
	Dbg     bool `long:"dbg" description:"debug mode"`
}

// SecretsProvider defines secrets provider options, for all supported providers
type SecretsProvider struct {
	Provider string `long:"provider" env:"PROVIDER" description:"secret provider type" choice:"none" choice:"store" choice:"vault" choice:"aws" choice:"ansible" default:"none"`

	Key  string `long:"key" env:"KEY" description:"secure key for store secrets provider"`
	Conn string `long:"conn" env:"CONN" description:"connection string for store secrets provider" default:"rowbatch-secrets.db"`

	Vault struct {
		Token string `long:"token" env:"TOKEN" description:"vault token"`
		Path  string `long:"path"  env:"PATH" description:"vault path"`
		URL   string `long:"url" env:"URL" description:"vault url"`
	} `group:"vault" namespace:"vault" env-namespace:"VAULT"`

	Aws struct {
		Region    string `long:"region" env:"REGION" description:"aws region"`
		AccessKey string `long:"access-key" env:"ACCESS_KEY" description:"aws access key"`
		SecretKey string `long:"secret-key" env:"SECRET_KEY" description:"aws secret key"`
	} `group:"aws" namespace:"aws" env-namespace:"AWS"`

	Ansible struct {
		Path   string `long:"path" env:"PATH" description:"ansible vault file"`
		Secret string `long:"secret" env:"SECRET" description:"ansible vault password"`
	} `group:"ansible" namespace:"ansible" env-namespace:"ANSIBLE"`
}

var revision = "latest"

// readPassword reads a line from the terminal without echo, replaced in tests
var readPassword = func() (string, error) {
	fmt.Fprint(os.Stderr, "password: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd())) // nolint
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pass), nil
}

func main() {
	fmt.Printf("rowbatch %s\n", revision)

	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		os.Exit(1)
	}
	if opts.Version {
		os.Exit(0) // already printed
	}
	setupLog(opts.Dbg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		if opts.Dbg {
			log.Panicf("[ERROR] %v", err)
		}
		fmt.Printf("failed, %s\n", formatError(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	st := time.Now()
	if opts.NoColor {
		color.NoColor = true
	}

	bookFile, err := expandPath(opts.BookFile)
	if err != nil {
		return fmt.Errorf("can't expand book path %q: %w", opts.BookFile, err)
	}

	overrides := config.Overrides{
		DSN:        opts.DSN,
		Batch:      opts.Batch,
		AdHocQuery: opts.PositionalArgs.AdHocStatement,
		Vars:       map[string]string{},
	}
	for k, v := range opts.Vars {
		overrides.Vars[k] = v
	}
	if opts.AskPass {
		pass, perr := readPassword()
		if perr != nil {
			return fmt.Errorf("can't read password: %w", perr)
		}
		overrides.Vars["password"] = pass
	}

	secretsProvider, err := makeSecretsProvider(opts.SecretsProvider)
	if err != nil {
		return fmt.Errorf("can't make secrets provider: %w", err)
	}

	book, err := config.New(bookFile, &overrides, secretsProvider)
	if err != nil {
		return fmt.Errorf("can't load query book %q: %w", bookFile, err)
	}
	lgr.Setup(lgr.Secret(book.AllSecretValues()...)) // mask secrets in logs

	drv := sqldb.New(sqldb.WithMaxTextSize(opts.MaxText), sqldb.WithWideText(opts.WideText),
		sqldb.WithConnectTimeout(opts.ConnectTO))

	var printer runner.Printer = report.NewTable(out, opts.Width, book.AllSecretValues())
	if opts.Format == "lines" {
		printer = report.NewLines(out, opts.Width, color.NoColor, book.AllSecretValues())
	}

	names := opts.Queries
	if overrides.AdHocQuery != "" {
		names = nil // ad-hoc book has a single query
	}
	r := runner.Process{Driver: drv, Book: book, Concurrency: opts.Concurrent, Printer: printer, Limit: opts.Limit}
	stats, err := r.Run(ctx, names...)
	if err != nil {
		return err
	}
	rows := 0
	for _, s := range stats {
		rows += s.Rows
	}
	log.Printf("[INFO] completed %d queries, %d rows in %v", len(stats), rows, time.Since(st).Truncate(time.Millisecond))
	return nil
}

// makeSecretsProvider creates secrets provider based on options
func makeSecretsProvider(sopts SecretsProvider) (config.SecretsProvider, error) {
	switch sopts.Provider {
	case "none":
		return &secrets.NoOpProvider{}, nil
	case "store":
		return secrets.NewStoreProvider(sopts.Conn, []byte(sopts.Key))
	case "vault":
		return secrets.NewHashiVaultProvider(sopts.Vault.URL, sopts.Vault.Path, sopts.Vault.Token)
	case "aws":
		return secrets.NewAWSSecretsProvider(sopts.Aws.AccessKey, sopts.Aws.SecretKey, sopts.Aws.Region)
	case "ansible":
		return secrets.NewAnsibleVaultProvider(sopts.Ansible.Path, sopts.Ansible.Secret)
	}
	log.Printf("[WARN] unknown secrets provider %q", sopts.Provider)
	return &secrets.NoOpProvider{}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		usr, err := user.Current()
		if err != nil {
			return "", err
		}
		return filepath.Join(usr.HomeDir, path[1:]), nil
	}
	return path, nil
}

// formatError lists failed queries one per line, backend failures with their class and SQLSTATE
func formatError(err error) string {
	var merr *multierror.Error
	if !errors.As(err, &merr) || len(merr.Errors) == 0 {
		return err.Error()
	}
	res := fmt.Sprintf("%d error(s) occurred:\n", len(merr.Errors))
	for i, e := range merr.Errors {
		var qe *runner.QueryError
		if errors.As(e, &qe) {
			res += fmt.Sprintf("   [%d] %s\n", i, report.FormatError(qe.Name, qe.Err))
			continue
		}
		res += fmt.Sprintf("   [%d] %v\n", i, e)
	}
	return res
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Out(io.Discard), lgr.Err(io.Discard)} // default to discard
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
