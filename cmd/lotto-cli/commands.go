package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/xenking/lotto-share/internal/backend"
	"github.com/xenking/lotto-share/internal/domain/draw"
	"github.com/xenking/lotto-share/internal/domain/purchase"
	"github.com/xenking/lotto-share/internal/domain/session"
	"github.com/xenking/lotto-share/internal/domain/ticket"
)

const usage = `usage: lotto-cli [flags] <command> [args]

commands:
  login     -phone <number> -password <password>   print a backend token
  tickets                                          list active tickets
  countdown [-once]                                time left until the draw
  watch     <orderId>                              follow a payment order
`

// env holds the settings shared by every command.
type env struct {
	backendURL string
	token      string
	timeout    time.Duration
	clock      clockwork.Clock
	schedule   draw.Schedule
	poller     purchase.PollerConfig
	out        io.Writer
}

func (e *env) client() (*backend.Client, error) {
	if e.backendURL == "" {
		return nil, errors.New("backend URL is required: set -backend or LOTTO_BACKEND_URL")
	}
	return backend.New(e.backendURL, backend.Options{Timeout: e.timeout})
}

func run(ctx context.Context, lg *zap.Logger, args []string, out io.Writer) error {
	e := &env{
		clock:    clockwork.NewRealClock(),
		schedule: draw.DefaultSchedule(),
		poller:   purchase.DefaultPollerConfig(),
		out:      out,
	}
	return runEnv(zctx.Base(ctx, lg), e, args)
}

func runEnv(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("lotto-cli", flag.ContinueOnError)
	fs.SetOutput(e.out)
	fs.Usage = func() { fmt.Fprint(e.out, usage) }
	fs.StringVar(&e.backendURL, "backend", os.Getenv("LOTTO_BACKEND_URL"), "lottery backend base URL")
	fs.StringVar(&e.token, "token", os.Getenv("LOTTO_TOKEN"), "backend token from the login command")
	fs.DurationVar(&e.timeout, "timeout", backend.DefaultTimeout, "backend request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no command")
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "login":
		return loginCmd(ctx, e, rest)
	case "tickets":
		return ticketsCmd(ctx, e)
	case "countdown":
		return countdownCmd(ctx, e, rest)
	case "watch":
		return watchCmd(ctx, e, rest)
	default:
		fs.Usage()
		return errors.Errorf("unknown command %q", cmd)
	}
}

func loginCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(e.out)
	phone := fs.String("phone", "", "phone number")
	password := fs.String("password", os.Getenv("LOTTO_PASSWORD"), "password (or LOTTO_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *phone == "" || *password == "" {
		return errors.New("phone and password are required")
	}

	c, err := e.client()
	if err != nil {
		return err
	}
	token, err := c.Login(ctx, backend.LoginRequest{PhoneNumber: *phone, Password: *password})
	if err != nil {
		return errors.Wrap(err, "login")
	}
	if exp, ok := session.TokenExpiry(token); ok {
		zctx.From(ctx).Info("Logged in", zap.Time("expires", exp))
	}
	_, err = fmt.Fprintln(e.out, token)
	return err
}

func ticketsCmd(ctx context.Context, e *env) error {
	c, err := e.client()
	if err != nil {
		return err
	}
	list, err := c.ActiveTickets(ctx)
	if err != nil {
		return errors.Wrap(err, "load tickets")
	}
	tickets := lo.Map(list, func(t backend.Ticket, _ int) ticket.Ticket {
		return ticket.New(t.ID, t.OID, t.TicketKey, lo.FromPtr(t.AvailableSlot))
	})
	ticket.Sort(tickets)

	for _, t := range tickets {
		numbers := lo.Map(t.Numbers, func(n int, _ int) string { return fmt.Sprint(n) })
		if _, err := fmt.Fprintf(e.out, "%-6d %-20s %-24s %d/%d\n",
			t.ID, t.OID, strings.Join(numbers, " "), t.Slot, ticket.SlotsPerTicket,
		); err != nil {
			return err
		}
	}
	return nil
}

func formatRemaining(seconds int64) string {
	r := draw.Split(seconds)
	return fmt.Sprintf("%dd %02dh %02dm %02ds", r.Days, r.Hours, r.Minutes, r.Seconds)
}

func countdownCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("countdown", flag.ContinueOnError)
	fs.SetOutput(e.out)
	once := fs.Bool("once", false, "print once and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cd := draw.NewCountdown(e.schedule, e.clock)
	if *once {
		_, err := fmt.Fprintln(e.out, formatRemaining(cd.Now()))
		return err
	}
	cd.Run(ctx, func(left int64) {
		_, _ = fmt.Fprintf(e.out, "\r%s", formatRemaining(left))
	})
	_, _ = fmt.Fprintln(e.out)
	return nil
}

func watchCmd(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errors.New("watch needs exactly one order id")
	}
	orderID := purchase.SanitizeOrderID(args[0])
	if orderID == "" {
		return errors.Errorf("invalid order id %q", args[0])
	}
	if e.token == "" {
		return errors.New("token is required: set -token or LOTTO_TOKEN")
	}

	c, err := e.client()
	if err != nil {
		return err
	}
	account, err := c.Account(backend.WithToken(ctx, e.token))
	if err != nil {
		return errors.Wrap(err, "load account")
	}

	lg := zctx.From(ctx).With(zap.String("order_id", orderID))
	poller := purchase.NewPoller(c.ForCustomer(e.token, account.ID), e.poller, e.clock, purchase.NopMetrics())
	res, err := poller.Run(ctx, orderID, func(s purchase.Status) {
		lg.Info("Order status", zap.String("status", string(s)))
	})
	if err != nil {
		return errors.Wrap(err, "watch order")
	}

	if _, err := fmt.Fprintf(e.out, "%s %s\n", orderID, res.Status); err != nil {
		return err
	}
	if res.PurchasesErr != nil {
		lg.Warn("Load purchases", zap.Error(res.PurchasesErr))
	}
	for _, p := range res.Purchases {
		if _, err := fmt.Fprintf(e.out, "  purchase %d ticket %d %s\n", p.ID, p.TicketID, p.TicketNumber); err != nil {
			return err
		}
	}
	return nil
}
