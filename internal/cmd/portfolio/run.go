package portfolio

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	entrypoint "github.com/louisbranch/stockfolio/internal/platform/cmd"
	apperrors "github.com/louisbranch/stockfolio/internal/platform/errors"
	"github.com/louisbranch/stockfolio/internal/platform/logging"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/app"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/domain"
	"github.com/phuslu/log"
)

// ErrUsage reports a missing or unknown subcommand.
var ErrUsage = errors.New("usage: stockfolio [flags] create|change|close|show|price|project [args]")

type subcommand func(ctx context.Context, rt *runtime, out *output, args []string) error

var subcommands = map[string]subcommand{
	"create":  runCreate,
	"change":  runChange,
	"close":   runClose,
	"show":    runShow,
	"price":   runPrice,
	"project": runProject,
}

// Run executes the subcommand in cfg.Args, writing results to stdout.
func Run(ctx context.Context, cfg Config, stdout io.Writer) error {
	if len(cfg.Args) == 0 {
		return ErrUsage
	}
	name, args := cfg.Args[0], cfg.Args[1:]
	sub, ok := subcommands[name]
	if !ok {
		return fmt.Errorf("unknown subcommand %q: %w", name, ErrUsage)
	}

	logger := logging.New(cfg.Log, os.Stderr)
	out, err := newOutput(stdout, cfg.Locale)
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServicePortfolio, entrypoint.RunOptions{Logger: logger}, func(ctx context.Context) error {
		return runSubcommand(ctx, cfg, logger, out, sub, args)
	})
}

func runSubcommand(ctx context.Context, cfg Config, logger *log.Logger, out *output, sub subcommand, args []string) (err error) {
	rt, err := openRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return sub(ctx, rt, out, args)
}

// ExitCode maps a Run error to a process exit status. Usage errors exit 2;
// coded errors exit with the numeric gRPC code of their category.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage), errors.Is(err, flag.ErrHelp):
		return 2
	}
	code := int(apperrors.CodeOf(err).GRPCCode())
	if code == 0 {
		return 1
	}
	return code
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func runCreate(ctx context.Context, rt *runtime, out *output, args []string) error {
	fs := newFlagSet("create")
	userID := fs.String("user", "", "Owner user id")
	amount := fs.String("amount", "", "Initial funds")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}
	money, err := parseAmount("amount", *amount)
	if err != nil {
		return err
	}
	id, err := rt.service.CreatePortfolio(ctx, app.CreatePortfolioInput{UserID: *userID, Amount: money})
	if err != nil {
		return err
	}
	out.println(id.String())
	return nil
}

func runChange(ctx context.Context, rt *runtime, out *output, args []string) error {
	fs := newFlagSet("change")
	portfolioID := fs.String("portfolio", "", "Portfolio id")
	symbol := fs.String("stock", "", "Stock symbol")
	quantity := fs.Int64("quantity", 0, "Shares to buy (positive) or sell (negative)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}
	id, err := rt.service.ChangePortfolio(ctx, app.ChangePortfolioInput{
		PortfolioID: *portfolioID,
		Stock:       *symbol,
		Quantity:    *quantity,
	})
	if err != nil {
		return err
	}
	out.println(id.String())
	return nil
}

func runClose(ctx context.Context, rt *runtime, out *output, args []string) error {
	fs := newFlagSet("close")
	portfolioID := fs.String("portfolio", "", "Portfolio id")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}
	id, err := rt.service.ClosePortfolio(ctx, domain.PortfolioID(*portfolioID))
	if err != nil {
		return err
	}
	out.println(id.String())
	return nil
}

func runShow(ctx context.Context, rt *runtime, out *output, args []string) error {
	fs := newFlagSet("show")
	portfolioID := fs.String("portfolio", "", "Portfolio id")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}
	summary, err := rt.service.Summary(ctx, domain.PortfolioID(*portfolioID))
	if err != nil {
		return err
	}
	out.summary(summary)
	return nil
}

func runPrice(ctx context.Context, rt *runtime, out *output, args []string) error {
	fs := newFlagSet("price")
	symbol := fs.String("stock", "", "Stock symbol")
	price := fs.String("price", "", "Unit price; omit to print the current price")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*price) == "" {
		current, err := rt.catalog.FindPriceBySymbol(ctx, domain.Stock(*symbol))
		if err != nil {
			return err
		}
		out.price(domain.Stock(*symbol), current)
		return nil
	}
	money, err := parseAmount("price", *price)
	if err != nil {
		return err
	}
	if err := rt.catalog.SetPrice(ctx, domain.Stock(*symbol), money); err != nil {
		return err
	}
	out.price(domain.Stock(*symbol), money)
	return nil
}

func runProject(ctx context.Context, rt *runtime, out *output, args []string) error {
	fs := newFlagSet("project")
	follow := fs.Bool("follow", false, "Keep polling the feed until interrupted")
	interval := fs.String("interval", rt.pollInterval.String(), "Poll interval when following")
	userID := fs.String("user", "", "Print the projected portfolios of this user")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}

	if *follow {
		return rt.listener.Run(ctx, parseDuration(*interval, rt.pollInterval))
	}
	total := 0
	for {
		result, err := rt.listener.RunOnce(ctx)
		if err != nil {
			return err
		}
		total += result.Inserted
		if result.Read == 0 {
			break
		}
	}
	out.printf("projected %d portfolios\n", total)

	if strings.TrimSpace(*userID) == "" {
		return nil
	}
	records, err := rt.projections.ListPortfolios(ctx, domain.UserID(*userID))
	if err != nil {
		return err
	}
	out.portfolios(records)
	return nil
}

func parseAmount(field, value string) (domain.Money, error) {
	if strings.TrimSpace(value) == "" {
		return domain.Money{}, nil
	}
	money, err := domain.NewMoney(strings.TrimSpace(value))
	if err != nil {
		return domain.Money{}, apperrors.Wrap(apperrors.CodeValidation, fmt.Sprintf("Field '%s' is invalid", field), err)
	}
	return money, nil
}
