package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/umputun/rowbatch/pkg/config"
	"github.com/umputun/rowbatch/pkg/secrets"
)

type options struct {
	Key  string `short:"k" long:"key" env:"ROWBATCH_SECRETS_KEY" required:"true" description:"key to use for encryption/decryption"`
	Conn string `short:"c" long:"conn" env:"ROWBATCH_SECRETS_CONN" default:"rowbatch-secrets.db" description:"connection string of the secrets database"`
	Dbg  bool   `long:"dbg" description:"debug mode"`

	SetCmd struct {
		PositionalArgs struct {
			Key   string `positional-arg-name:"key" description:"key to add"`
			Value string `positional-arg-name:"value" description:"value to add, - reads it from stdin"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"set" description:"add a new secret"`

	GetCmd struct {
		PositionalArgs struct {
			Key string `positional-arg-name:"key" description:"key to retrieve, key#field reads a json field"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"get" description:"retrieve a secret"`

	DeleteCmd struct {
		PositionalArgs struct {
			Key string `positional-arg-name:"key" description:"key to delete"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"del" description:"delete a secret"`

	ListCmd struct {
		PositionalArgs struct {
			KeyPrefix string `positional-arg-name:"key-prefix" default:"*" description:"key prefix to list"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"list" description:"list secrets keys"`

	CheckCmd struct {
		Book string            `short:"b" long:"book" default:"rowbatch.yml" description:"query book to check"`
		Vars map[string]string `short:"v" long:"var" description:"book variable, name:value"`
	} `command:"check" description:"verify every secret used by a query book can be resolved"`
}

// keyRe is the set of keys usable in ${secret:key} placeholders, # is reserved for json fields
var keyRe = regexp.MustCompile(`^[A-Za-z0-9_.\-/]+$`)

var revision = "latest"

var exitFunc = os.Exit

func main() {
	fmt.Printf("rowbatch secrets %s\n", revision)

	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		exitFunc(1) // can be redefined in tests
		return
	}
	setupLog(opts.Dbg)

	if err := run(p, opts, os.Stdin, os.Stdout); err != nil {
		log.Printf("[WARN] %v", err)
		exitFunc(1)
	}
}

func run(p *flags.Parser, opts options, in io.Reader, out io.Writer) error {
	if p.Active == nil {
		return fmt.Errorf("no command given")
	}
	sp, err := secrets.NewStoreProvider(opts.Conn, []byte(opts.Key))
	if err != nil {
		return fmt.Errorf("can't create secrets provider: %w", err)
	}
	defer sp.Close()

	switch p.Active.Name {
	case "set":
		return setSecret(sp, opts.SetCmd.PositionalArgs.Key, opts.SetCmd.PositionalArgs.Value, in)
	case "get":
		key := opts.GetCmd.PositionalArgs.Key
		log.Printf("[DEBUG] get command, key=%s", key)
		val, err := sp.Get(key)
		if err != nil {
			return fmt.Errorf("can't get secret for key %q: %w", key, err)
		}
		fmt.Fprintln(out, val)
	case "del":
		key := opts.DeleteCmd.PositionalArgs.Key
		if err := sp.Delete(key); err != nil {
			return fmt.Errorf("can't delete secret: %w", err)
		}
		log.Printf("[INFO] key=%s deleted", key)
	case "list":
		keys, err := sp.List(opts.ListCmd.PositionalArgs.KeyPrefix)
		if err != nil {
			return fmt.Errorf("can't list secrets: %w", err)
		}
		for _, k := range keys {
			fmt.Fprintln(out, k)
		}
	case "check":
		book, err := config.New(opts.CheckCmd.Book, &config.Overrides{Vars: opts.CheckCmd.Vars}, sp)
		if err != nil {
			return fmt.Errorf("book %s can't be resolved: %w", opts.CheckCmd.Book, err)
		}
		fmt.Fprintf(out, "%s: %d queries, all secrets resolved\n", opts.CheckCmd.Book, len(book.Queries))
	}
	return nil
}

// setSecret stores value under key, a value of "-" is read from in up to the end of the first line
func setSecret(sp *secrets.StoreProvider, key, value string, in io.Reader) error {
	if !keyRe.MatchString(key) {
		return fmt.Errorf("invalid key %q, allowed are letters, digits and _.-/", key)
	}
	if value == "-" {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("can't read secret for key %q: %w", key, err)
		}
		value = strings.TrimRight(line, "\r\n")
	}
	if value == "" {
		return fmt.Errorf("can't set empty secret for key %q", key)
	}
	if err := sp.Set(key, value); err != nil {
		return fmt.Errorf("can't set secret for key %q: %w", key, err)
	}
	log.Printf("[INFO] key=%s set", key)
	return nil
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
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
