// Command ordrefab is the operator console for manufacturing orders. It
// talks to the order API with the operator's bearer token, keeps the order
// list reconciled with the calendar and can run the sweep on a schedule.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mfg-ops/ordrefab/availability"
	"github.com/mfg-ops/ordrefab/config"
	"github.com/mfg-ops/ordrefab/gateway"
	"github.com/mfg-ops/ordrefab/lifecycle"
	"github.com/mfg-ops/ordrefab/orderform"
	"github.com/mfg-ops/ordrefab/services"
	"github.com/mfg-ops/ordrefab/store"
	"go.uber.org/zap"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var (
	exitFunc = os.Exit
	// clock drives the engine's and the form's notion of today
	clock = time.Now
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *app, args []string) int
}

var commands = []command{
	{"list", "list orders, after reconciling statuses", runList},
	{"show", "show one order", runShow},
	{"create", "create an order", runCreate},
	{"edit", "edit an order", runEdit},
	{"cancel", "cancel an order", runCancel},
	{"delete", "delete an order", runDelete},
	{"start-today", "start a pending order today", runStartToday},
	{"reschedule", "start a pending order on another date", runReschedule},
	{"availability", "check whether a line is free", runAvailability},
	{"sweep", "reconcile statuses once", runSweep},
	{"watch", "reconcile statuses on a schedule until interrupted", runWatch},
}

// app is what every subcommand works with
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	client  *gateway.Client
	session *services.SessionService
	orders  *store.Orders
	engine  *lifecycle.Engine
	stdin   *bufio.Reader
	stdout  io.Writer
	stderr  io.Writer
}

func main() {
	code := cli(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(stderr)
		if len(args) == 0 {
			return exitUsage
		}
		return exitOK
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return exitUsage
	}

	a, err := newApp(stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "ordrefab: %v\n", err)
		return exitError
	}
	defer func() { _ = a.logger.Sync() }()

	return cmd.run(context.Background(), a, args[1:])
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: ordrefab <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-13s %s\n", c.name, c.summary)
	}
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.Debug("configuration loaded", zap.String("env_file", cfg.EnvFile))

	session := services.NewSessionService(cfg.APIToken)
	client, err := gateway.New(cfg.APIURL,
		gateway.WithCredentials(session),
		gateway.WithPublicPrefix(cfg.PublicPathPrefix),
		gateway.WithTimeout(cfg.HTTPTimeout),
		gateway.WithLogger(logger.Named("gateway")),
	)
	if err != nil {
		return nil, err
	}
	session.SetProfileFetcher(client)

	orders := store.NewOrders()
	return &app{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		session: session,
		orders:  orders,
		engine: lifecycle.NewEngine(client, orders,
			lifecycle.WithClock(clock),
			lifecycle.WithLogger(logger.Named("lifecycle")),
			lifecycle.WithConcurrency(cfg.SweepConcurrency),
		),
		stdin:  bufio.NewReader(stdin),
		stdout: stdout,
		stderr: stderr,
	}, nil
}

func (a *app) form() *orderform.Controller {
	return orderform.New(orderform.Config{
		Writer:  a.client,
		Checker: availability.NewChecker(a.client, a.logger.Named("availability")),
		Owners:  a.session,
		Orders:  a.orders,
		Guard:   a.engine.Guard(),
		Clock:   clock,
		Logger:  a.logger.Named("orderform"),
	})
}

// flags returns a flag set that reports errors on stderr instead of exiting
func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("ordrefab "+name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// fail prints err and returns the error exit code
func (a *app) fail(err error) int {
	for _, line := range describe(err) {
		fmt.Fprintf(a.stderr, "error: %s\n", line)
	}
	return exitError
}

// load fetches the order list, which also runs the sweep
func (a *app) load(ctx context.Context) error {
	report, err := a.engine.Refresh(ctx)
	if err != nil {
		return err
	}
	printTransitions(a.stdout, report)
	return nil
}

// confirm asks a yes/no question on stdin. Anything but y or yes is no.
func (a *app) confirm(question string) bool {
	fmt.Fprintf(a.stdout, "%s [y/N] ", question)
	answer, err := a.stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
