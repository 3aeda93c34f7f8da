package portfolio

import (
	"fmt"
	"io"
	"time"

	"github.com/louisbranch/stockfolio/internal/services/portfolio/app"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/domain"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/storage"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// output writes subcommand results with locale-aware number formatting.
type output struct {
	w       io.Writer
	printer *message.Printer
}

func newOutput(w io.Writer, locale string) (*output, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale: %w", err)
	}
	if w == nil {
		w = io.Discard
	}
	return &output{w: w, printer: message.NewPrinter(tag)}, nil
}

func (o *output) printf(format string, args ...any) {
	_, _ = o.printer.Fprintf(o.w, format, args...)
}

func (o *output) println(value string) {
	_, _ = fmt.Fprintln(o.w, value)
}

func (o *output) money(value domain.Money) string {
	return o.printer.Sprintf("%.2f", value.Float64())
}

func (o *output) summary(summary app.Summary) {
	status := "open"
	if summary.Closed {
		status = "closed"
	}
	o.printf("portfolio %s\n", summary.PortfolioID)
	o.printf("  user:     %s\n", summary.UserID)
	o.printf("  status:   %s\n", status)
	o.printf("  funds:    %s\n", o.money(summary.Funds))
	o.printf("  revision: %d\n", summary.Revision)
	if len(summary.Stocks) == 0 {
		o.printf("  stocks:   none\n")
		return
	}
	o.printf("  stocks:\n")
	for _, owned := range summary.Stocks {
		o.printf("    %-8s %d\n", owned.Stock, owned.Quantity)
	}
}

func (o *output) price(symbol domain.Stock, price domain.Money) {
	o.printf("%s %s\n", symbol, o.money(price))
}

func (o *output) portfolios(records []storage.PortfolioRecord) {
	for _, record := range records {
		o.printf("%s %s %s\n", record.ID, o.money(record.Money), record.CreatedAt.Format(time.RFC3339))
	}
}
