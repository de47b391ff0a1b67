package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/mfg-ops/ordrefab/availability"
	"github.com/mfg-ops/ordrefab/lifecycle"
	"github.com/mfg-ops/ordrefab/models"
	"github.com/mfg-ops/ordrefab/orderform"
	"github.com/mfg-ops/ordrefab/store"
	"github.com/mfg-ops/ordrefab/validation"
)

var errIDRequired = errors.New("-id is required")

func runList(ctx context.Context, a *app, args []string) int {
	fs := a.flags("list")
	statuses := fs.String("status", "", "comma separated statuses to show")
	line := fs.Uint("line", 0, "only orders on this production line")
	query := fs.String("q", "", "match code, product or line name")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	filter := store.Filter{ProductionLineID: *line, Query: *query}
	for _, raw := range strings.Split(*statuses, ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		status, err := models.ParseStatus(raw)
		if err != nil {
			return a.fail(err)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	if err := a.load(ctx); err != nil {
		return a.fail(err)
	}
	printOrders(a.stdout, a.orders.Visible(filter))
	return exitOK
}

func runShow(ctx context.Context, a *app, args []string) int {
	fs := a.flags("show")
	id := fs.Uint("id", 0, "order id")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *id == 0 {
		return a.fail(errIDRequired)
	}

	order, err := a.client.GetOrder(ctx, *id)
	if err != nil {
		return a.fail(err)
	}
	printOrder(a.stdout, order)
	return exitOK
}

// orderFlags are the editable fields shared by create and edit
type orderFlags struct {
	code    *string
	qty     *int
	product *uint
	line    *uint
	start   *string
	end     *string
}

func bindOrderFlags(fs *flag.FlagSet) orderFlags {
	return orderFlags{
		code:    fs.String("code", "", "order code"),
		qty:     fs.Int("qty", 0, "quantity"),
		product: fs.Uint("product", 0, "product id"),
		line:    fs.Uint("line", 0, "production line id"),
		start:   fs.String("start", "", "start date, YYYY-MM-DD"),
		end:     fs.String("end", "", "end date, YYYY-MM-DD"),
	}
}

// apply pushes the flags that were given on the command line into the form
func (f orderFlags) apply(ctx context.Context, fs *flag.FlagSet, form *orderform.Controller) error {
	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	var err error
	if set["code"] {
		err = errors.Join(err, form.SetCode(*f.code))
	}
	if set["qty"] {
		err = errors.Join(err, form.SetQuantity(*f.qty))
	}
	if set["product"] {
		err = errors.Join(err, form.SetProduct(*f.product))
	}
	if set["start"] {
		d, perr := models.ParseDate(*f.start)
		if perr != nil {
			return fmt.Errorf("-start: %w", perr)
		}
		err = errors.Join(err, form.SetStartDate(ctx, d))
	}
	if set["end"] {
		d, perr := models.ParseDate(*f.end)
		if perr != nil {
			return fmt.Errorf("-end: %w", perr)
		}
		err = errors.Join(err, form.SetEndDate(ctx, d))
	}
	if set["line"] {
		err = errors.Join(err, form.SetProductionLine(ctx, *f.line))
	}
	return err
}

func runCreate(ctx context.Context, a *app, args []string) int {
	fs := a.flags("create")
	fields := bindOrderFlags(fs)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	form := a.form()
	form.OpenCreate()
	if err := fields.apply(ctx, fs, form); err != nil {
		return a.fail(err)
	}
	created, err := form.Submit(ctx)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.stdout, "created order %s (id %d)\n", created.Code, created.ID)
	return exitOK
}

func runEdit(ctx context.Context, a *app, args []string) int {
	fs := a.flags("edit")
	id := fs.Uint("id", 0, "order id")
	fields := bindOrderFlags(fs)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *id == 0 {
		return a.fail(errIDRequired)
	}

	if err := a.load(ctx); err != nil {
		return a.fail(err)
	}
	form := a.form()
	if _, err := form.OpenEdit(*id); err != nil {
		return a.fail(err)
	}
	defer form.Close()

	if err := fields.apply(ctx, fs, form); err != nil {
		return a.fail(err)
	}
	updated, err := form.Submit(ctx)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.stdout, "updated order %s\n", updated.Code)
	printOrder(a.stdout, updated)
	return exitOK
}

// idCommand parses the single -id flag of the explicit actions
func idCommand(a *app, name string, args []string) (uint, bool) {
	fs := a.flags(name)
	id := fs.Uint("id", 0, "order id")
	if err := fs.Parse(args); err != nil {
		return 0, false
	}
	if *id == 0 {
		fmt.Fprintf(a.stderr, "error: %v\n", errIDRequired)
		return 0, false
	}
	return *id, true
}

func runCancel(ctx context.Context, a *app, args []string) int {
	id, ok := idCommand(a, "cancel", args)
	if !ok {
		return exitUsage
	}
	if err := a.load(ctx); err != nil {
		return a.fail(err)
	}
	order, err := a.engine.Cancel(ctx, id)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.stdout, "cancelled order %s\n", order.Code)
	return exitOK
}

func runDelete(ctx context.Context, a *app, args []string) int {
	id, ok := idCommand(a, "delete", args)
	if !ok {
		return exitUsage
	}
	if err := a.engine.Delete(ctx, id); err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.stdout, "deleted order %d\n", id)
	return exitOK
}

func runStartToday(ctx context.Context, a *app, args []string) int {
	fs := a.flags("start-today")
	id := fs.Uint("id", 0, "order id")
	yes := fs.Bool("yes", false, "accept a proposed date without asking")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *id == 0 {
		return a.fail(errIDRequired)
	}

	if err := a.load(ctx); err != nil {
		return a.fail(err)
	}
	result, err := a.engine.StartToday(ctx, *id)
	if err != nil {
		return a.fail(err)
	}

	switch r := result.(type) {
	case models.Started:
		fmt.Fprintf(a.stdout, "started order %s, ends %s\n", r.Order.Code, r.Order.EndDate)
		return exitOK
	case models.RescheduleProposal:
		if r.Message != "" {
			fmt.Fprintln(a.stdout, r.Message)
		}
		if !*yes && !a.confirm(fmt.Sprintf("start on %s instead?", r.ProposedDate)) {
			fmt.Fprintln(a.stdout, "order left pending")
			return exitOK
		}
		order, err := a.engine.ConfirmReschedule(ctx, r)
		if err != nil {
			return a.fail(err)
		}
		fmt.Fprintf(a.stdout, "started order %s on %s, ends %s\n", order.Code, order.StartDate, order.EndDate)
		return exitOK
	default:
		return a.fail(fmt.Errorf("unexpected start result %T", result))
	}
}

func runReschedule(ctx context.Context, a *app, args []string) int {
	fs := a.flags("reschedule")
	id := fs.Uint("id", 0, "order id")
	date := fs.String("date", "", "new start date, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *id == 0 {
		return a.fail(errIDRequired)
	}
	start, err := models.ParseDate(*date)
	if err != nil {
		return a.fail(fmt.Errorf("-date: %w", err))
	}

	if err := a.load(ctx); err != nil {
		return a.fail(err)
	}
	order, err := a.engine.Reschedule(ctx, *id, start)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.stdout, "started order %s on %s, ends %s\n", order.Code, order.StartDate, order.EndDate)
	return exitOK
}

func runAvailability(ctx context.Context, a *app, args []string) int {
	fs := a.flags("availability")
	line := fs.Uint("line", 0, "production line id")
	start := fs.String("start", "", "window start, YYYY-MM-DD")
	end := fs.String("end", "", "window end, YYYY-MM-DD")
	exclude := fs.Uint("exclude", 0, "order id to leave out, when moving an order")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	q := models.AvailabilityQuery{LineID: *line}
	var err error
	if q.StartDate, err = models.ParseDate(*start); err != nil {
		return a.fail(fmt.Errorf("-start: %w", err))
	}
	if q.EndDate, err = models.ParseDate(*end); err != nil {
		return a.fail(fmt.Errorf("-end: %w", err))
	}
	if *exclude != 0 {
		q.ExcludeOrderID = exclude
	}
	if !q.Ready() {
		return a.fail(availability.ErrIncompleteQuery)
	}

	result, err := a.client.CheckAvailability(ctx, q)
	if err != nil {
		return a.fail(err)
	}
	if conflict := availability.AsError(q, result); conflict != nil {
		fmt.Fprintln(a.stdout, conflict)
		return exitOK
	}
	fmt.Fprintf(a.stdout, "production line %d is free from %s to %s\n", q.LineID, q.StartDate, q.EndDate)
	return exitOK
}

func runSweep(ctx context.Context, a *app, args []string) int {
	fs := a.flags("sweep")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	report, err := a.engine.Refresh(ctx)
	if err != nil {
		return a.fail(err)
	}
	if report.Empty() {
		fmt.Fprintln(a.stdout, "nothing to do")
		return exitOK
	}
	printTransitions(a.stdout, report)
	if len(report.Failures) > 0 {
		return exitError
	}
	return exitOK
}

// describe renders err one problem per line
func describe(err error) []string {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		var lines []string
		for _, fe := range verrs.List() {
			lines = append(lines, fe.Error())
		}
		return lines
	}
	return []string{err.Error()}
}

func printOrders(w io.Writer, orders []models.ManufacturingOrder) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCODE\tSTATUS\tQTY\tSTART\tEND\tLINE\tPRODUCT")
	for _, o := range orders {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			o.ID, o.Code, o.Status, o.Quantity, o.StartDate, o.EndDate, lineName(o), productName(o))
	}
	_ = tw.Flush()
}

func printOrder(w io.Writer, o models.ManufacturingOrder) {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "id:\t%d\n", o.ID)
	fmt.Fprintf(tw, "code:\t%s\n", o.Code)
	fmt.Fprintf(tw, "status:\t%s\n", o.Status)
	fmt.Fprintf(tw, "quantity:\t%d\n", o.Quantity)
	fmt.Fprintf(tw, "start:\t%s\n", o.StartDate)
	fmt.Fprintf(tw, "end:\t%s\n", o.EndDate)
	fmt.Fprintf(tw, "line:\t%s\n", lineName(o))
	fmt.Fprintf(tw, "product:\t%s\n", productName(o))
	fmt.Fprintf(tw, "locked:\t%s\n", lockedList(o.Status))
	_ = tw.Flush()
}

func printTransitions(w io.Writer, report lifecycle.SweepReport) {
	for _, tr := range report.Transitions {
		fmt.Fprintf(w, "auto: %s %s -> %s\n", tr.Code, tr.From, tr.To)
	}
	for _, f := range report.Failures {
		fmt.Fprintf(w, "auto: %s -> %s failed: %s\n", f.Code, f.Target, f.Error)
	}
}

func lineName(o models.ManufacturingOrder) string {
	if o.ProductionLine != nil {
		return o.ProductionLine.Name
	}
	return fmt.Sprintf("#%d", o.ProductionLineID)
}

func productName(o models.ManufacturingOrder) string {
	if o.Product != nil {
		return o.Product.Name
	}
	return fmt.Sprintf("#%d", o.ProductID)
}

func lockedList(status models.Status) string {
	fields := lifecycle.LockedFields(status)
	if len(fields) == 0 {
		return "-"
	}
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}
