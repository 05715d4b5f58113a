package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/palette/internal/client/client"
	"github.com/dmitrijs2005/palette/internal/client/models"
	"github.com/dmitrijs2005/palette/internal/filex"
	pb "github.com/dmitrijs2005/palette/internal/proto"
)

// Checkout kinds understood by the server.
const (
	kindCredits      = "credits"
	kindSubscription = "subscription"
)

const defaultHistoryLimit = 10

var ensureDir = filex.EnsureSubDir

func (a *App) reportError(err error) {
	var qe *client.QuotaError
	switch {
	case errors.As(err, &qe):
		printlnFn("Generation limit reached.")
		if qe.Entitlement != nil {
			printlnFn(describeEntitlement(qe.Entitlement))
		}
		printlnFn("Run 'buy credits' for a credit pack or 'buy pro' for a subscription.")
	case errors.Is(err, client.ErrUnauthorized):
		printlnFn("Not authorized: check your access token.")
	case errors.Is(err, client.ErrUnavailable):
		printlnFn("Server unavailable, try again later.")
	case errors.Is(err, client.ErrBillingNotConfigured):
		printlnFn("Billing is not available on this server.")
	default:
		printlnFn("Error:", err.Error())
	}
}

func describeEntitlement(e *pb.Entitlement) string {
	if e.HasSubscription {
		if e.IsUnlimited {
			return fmt.Sprintf("Subscription %s: unlimited generations (%d this month).", e.SubscriptionStatus, e.MonthlyGenerations)
		}
		return fmt.Sprintf("Subscription %s: %d generations left this month (%d used).", e.SubscriptionStatus, e.RemainingGenerations, e.MonthlyGenerations)
	}
	return fmt.Sprintf("Generations used: %d. Credits: %d. Remaining: %d.", e.TotalGenerations, e.Credits, e.RemainingGenerations)
}

func (a *App) Status(ctx context.Context) error {
	var ent *pb.Entitlement
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		ent, err = a.service.Status(ctx)
		return err
	})
	if err != nil {
		a.reportError(err)
		return err
	}
	printlnFn(describeEntitlement(ent))
	return nil
}

// parseGenerateArgs accepts the harmony and the size in either order.
func parseGenerateArgs(args []string) (string, int, error) {
	var (
		harmony string
		size    int
	)
	for _, arg := range args {
		if n, err := strconv.Atoi(arg); err == nil {
			size = n
			continue
		}
		if harmony != "" {
			return "", 0, fmt.Errorf("unexpected argument %q", arg)
		}
		harmony = arg
	}
	return harmony, size, nil
}

func (a *App) Generate(ctx context.Context, args []string) error {
	harmony, size, err := parseGenerateArgs(args)
	if err != nil {
		printlnFn("Usage: generate [harmony] [size]")
		return err
	}

	var e *models.HistoryEntry
	err = a.call(ctx, func(ctx context.Context) error {
		var err error
		e, err = a.service.Generate(ctx, harmony, size)
		return err
	})
	if err != nil {
		a.reportError(err)
		return err
	}

	if e.Source == models.SourceLocal {
		a.setMode(ModeOffline)
		printlnFn("Offline preview, not saved to your account:")
	}
	printlnFn(renderPalette(e.Colors, a.color))
	printlnFn(fmt.Sprintf("%s  %s  %s", e.ID, e.Harmony, e.Source))
	return nil
}

func (a *App) History(ctx context.Context, args []string) error {
	limit := defaultHistoryLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			printlnFn("Usage: history [n]")
			return fmt.Errorf("bad limit %q", args[0])
		}
		limit = n
	}

	var (
		entries []*models.HistoryEntry
		offline bool
	)
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		entries, offline, err = a.service.History(ctx, limit)
		return err
	})
	if err != nil {
		a.reportError(err)
		return err
	}
	if offline {
		a.setMode(ModeOffline)
		printlnFn("Showing local history:")
	}
	if len(entries) == 0 {
		printlnFn("No palettes yet.")
		return nil
	}
	for _, e := range entries {
		printlnFn(fmt.Sprintf("%s  %s  %-13s %s", e.CreatedAt.Local().Format("2006-01-02 15:04"), e.ID, e.Harmony, renderPalette(e.Colors, a.color)))
	}
	return nil
}

func (a *App) Buy(ctx context.Context, args []string) error {
	var kind string
	switch args[0] {
	case "credits":
		kind = kindCredits
	case "pro":
		kind = kindSubscription
	default:
		printlnFn("Usage: buy credits|pro")
		return fmt.Errorf("unknown product %q", args[0])
	}

	var url string
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		url, err = a.service.Checkout(ctx, kind)
		return err
	})
	if err != nil {
		a.reportError(err)
		return err
	}
	printlnFn("Complete your purchase at:", url)
	return nil
}

func (a *App) Portal(ctx context.Context) error {
	var url string
	err := a.call(ctx, func(ctx context.Context) error {
		var err error
		url, err = a.service.Portal(ctx)
		return err
	})
	if err != nil {
		a.reportError(err)
		return err
	}
	printlnFn("Manage your billing at:", url)
	return nil
}

func (a *App) Export(ctx context.Context, args []string) error {
	dir, err := ensureDir(exportDir)
	if err != nil {
		a.reportError(err)
		return err
	}

	var path string
	err = a.call(ctx, func(ctx context.Context) error {
		var err error
		path, err = a.service.Export(ctx, args[0], dir)
		return err
	})
	if err != nil {
		a.reportError(err)
		return err
	}
	printlnFn("Exported to", path)
	return nil
}
