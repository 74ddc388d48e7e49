package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fjod/cheeseshop/internal/client"
	"github.com/fjod/cheeseshop/internal/domain"
	api "github.com/fjod/cheeseshop/internal/http"
	"github.com/fjod/cheeseshop/internal/identity"
	"github.com/fjod/cheeseshop/internal/session"
	"github.com/fjod/cheeseshop/internal/status"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const usage = `usage: shopper [flags] <command>

commands:
  catalog        list the cheeses on sale
  cart           show the cart
  add <id>       put one unit of a cheese into the cart
  remove <id>    take one unit of a cheese out of the cart
  checkout       buy everything in the cart
  history        list past purchases

flags:
`

// loadingDelay is how long a command may run before a loading notice is shown.
var loadingDelay = 300 * time.Millisecond

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("shopper", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	server := flags.StringP("server", "s", envOr("STOREFRONT_URL", "http://localhost:8080"), "storefront base URL")
	sessionFile := flags.String("session-file", defaultSessionFile(), "file holding the session identity")
	timeout := flags.Duration("timeout", 10*time.Second, "per-command timeout")
	verbose := flags.BoolP("verbose", "v", false, "log diagnostics to stderr")
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			logger = l
		}
	}
	defer logger.Sync()

	existing, err := session.LoadIDFile(*sessionFile)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	sessionID, created := session.Resolve(existing, identity.UUID{})
	if created {
		if err := session.SaveIDFile(*sessionFile, sessionID); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		logger.Info("new session", zap.String("session_id", sessionID), zap.String("file", *sessionFile))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := client.New(*server, sessionID)
	stopLoading := showLoading(c.Tracker(), stderr)
	err = dispatch(ctx, c, sessionID, flags.Args(), stdout)
	stopLoading()
	if err != nil {
		var usageErr usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintln(stderr, usageErr)
			flags.Usage()
			return 2
		}
		logger.Warn("command failed", zap.Error(err))
		reportFailure(stderr, c.Tracker(), err)
		return 1
	}
	return 0
}

type usageError string

func (e usageError) Error() string { return string(e) }

func dispatch(ctx context.Context, c *client.Client, sessionID string, args []string, out io.Writer) error {
	switch args[0] {
	case "catalog":
		items, err := c.FetchCatalog(ctx)
		if err != nil {
			return err
		}
		printCatalog(out, items)
	case "cart":
		cart, err := c.Cart(ctx)
		if err != nil {
			return err
		}
		printCart(out, cart)
	case "add", "remove":
		if len(args) != 2 {
			return usageError(args[0] + " needs exactly one item id")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || id <= 0 {
			return usageError("item id must be a positive integer")
		}
		var cart api.CartResponse
		if args[0] == "add" {
			cart, err = c.AddItem(ctx, id)
		} else {
			cart, err = c.RemoveItem(ctx, id)
		}
		if err != nil {
			return err
		}
		printCart(out, cart)
	case "checkout":
		purchase, err := c.Checkout(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "purchase %s placed on %s\n", purchase.ID, purchase.DateTime)
		printLines(out, purchase.Cheeses, purchase.TotalItems, purchase.TotalPrice.StringFixed(2))
	case "history":
		purchases, err := c.FetchPurchaseHistory(ctx, sessionID)
		if err != nil {
			return err
		}
		printHistory(out, purchases)
	default:
		return usageError("unknown command " + strconv.Quote(args[0]))
	}
	return nil
}

// showLoading prints a notice once a call has been pending for loadingDelay.
// The returned func stops the watcher and waits for it.
func showLoading(tracker *status.Tracker, w io.Writer) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(loadingDelay)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if tracker.Loading() {
					fmt.Fprintln(w, "loading...")
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

// reportFailure prints the degraded state. Nothing is retried; running the
// command again starts from a fresh state.
func reportFailure(w io.Writer, tracker *status.Tracker, err error) {
	var se *client.StatusError
	if errors.As(err, &se) && se.StatusCode < 500 {
		fmt.Fprintf(w, "rejected: %s\n", se.Message)
		return
	}
	fmt.Fprintln(w, "the storefront is unavailable right now, try again later")
	for _, call := range []string{status.CallCatalog, status.CallCart, status.CallSubmit, status.CallHistory} {
		if st := tracker.Get(call); st == status.StatusFailed {
			fmt.Fprintf(w, "  %s: %s (%v)\n", call, st, tracker.Err(call))
		}
	}
}

func printCatalog(w io.Writer, items []domain.CatalogItem) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tPRICE")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", it.ID, it.Title, it.Category, it.Price.StringFixed(2))
	}
	tw.Flush()
}

func printCart(w io.Writer, cart api.CartResponse) {
	if len(cart.Items) == 0 {
		fmt.Fprintln(w, "cart is empty")
		return
	}
	printLines(w, cart.Items, cart.TotalItems, cart.TotalPrice.StringFixed(2))
}

func printLines(w io.Writer, lines []domain.CartLineItem, totalItems int, totalPrice string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAMOUNT\tPRICE\tSUBTOTAL")
	for _, l := range lines {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", l.ID, l.Title, l.Amount, l.Price.StringFixed(2), l.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(tw, "\tTOTAL\t%d\t\t%s\n", totalItems, totalPrice)
	tw.Flush()
}

func printHistory(w io.Writer, purchases []domain.Purchase) {
	if len(purchases) == 0 {
		fmt.Fprintln(w, "no purchases yet")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tITEMS\tTOTAL")
	for _, p := range purchases {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.ID, p.DateTime, p.TotalItems, p.TotalPrice.StringFixed(2))
	}
	tw.Flush()
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "cheeseshop", "session")
}

func envOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
