// Package console renders scan results and summaries for the CLI.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-engine/business/opportunity/domain"
)

// Reporter writes ranked snapshots as a table.
type Reporter struct {
	out io.Writer
	// Limit caps the rows printed; zero prints everything.
	Limit int
}

// NewReporter creates a Reporter writing to out, or stdout when out is nil.
func NewReporter(out io.Writer) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	return &Reporter{out: out}
}

// Report prints the snapshot header and one row per opportunity.
func (r *Reporter) Report(_ context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		fmt.Fprintln(r.out, mutedStyle.Render("no scan has completed yet"))
		return nil
	}

	fmt.Fprintln(r.out, titleStyle.Render(fmt.Sprintf("%d opportunities", snap.Len())))
	fmt.Fprintln(r.out, mutedStyle.Render("scanned "+snap.Timestamp.Format(time.RFC3339)))
	if snap.Len() == 0 {
		return nil
	}

	table := tablewriter.NewWriter(r.out)
	table.Header("#", "ID", "Provider", "Kind", "Route", "Loan", "Net", "Risk", "Score")

	rows := snap.Opportunities
	if r.Limit > 0 && len(rows) > r.Limit {
		rows = rows[:r.Limit]
	}
	for i, o := range rows {
		if err := table.Append(
			strconv.Itoa(i+1),
			shortID(o.ID),
			o.Provider,
			kindName(o.Kind),
			strings.Join(o.Route, "→"),
			o.LoanAmount.StringFixed(2)+" "+o.LoanToken,
			signed(o.ProfitPotential()),
			fmt.Sprintf("%.2f", o.Risk.Overall()),
			o.Score.StringFixed(4),
		); err != nil {
			return fmt.Errorf("append row: %w", err)
		}
	}
	return table.Render()
}

// Field is one labelled line of a summary box.
type Field struct {
	Label string
	Value string
}

// Summary prints fields in a bordered box under title.
func (r *Reporter) Summary(title string, fields ...Field) {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, labelStyle.Render(f.Label)+f.Value)
	}
	fmt.Fprintln(r.out, titleStyle.Render(title))
	fmt.Fprintln(r.out, boxStyle.Render(strings.Join(lines, "\n")))
}

// Signed renders an amount green when positive and red when negative.
func Signed(d decimal.Decimal) string {
	return signed(d)
}

func signed(d decimal.Decimal) string {
	s := d.StringFixed(4)
	switch d.Sign() {
	case 1:
		return positiveStyle.Render("+" + s)
	case -1:
		return negativeStyle.Render(s)
	default:
		return s
	}
}

func kindName(k domain.Kind) string {
	if k == nil {
		return "-"
	}
	if ce, ok := k.(domain.CrossExchange); ok {
		return fmt.Sprintf("%s (%s→%s)", ce.Name(), ce.BuyVenue, ce.SellVenue)
	}
	return k.Name()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
