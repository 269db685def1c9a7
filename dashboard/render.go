package dashboard

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"backoffice/model"
	"backoffice/money"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Width(18)
	valueStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	cardStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

const barWidth = 24

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func statuses(counts []model.StatusCount) string {
	if len(counts) == 0 {
		return dimStyle.Render("none")
	}
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprintf("%s %d", c.Status, c.Count)
	}
	return dimStyle.Render(strings.Join(parts, " · "))
}

func card(title string, lines ...string) string {
	return cardStyle.Render(titleStyle.Render(title) + "\n" + strings.Join(lines, "\n"))
}

// RenderText writes s as terminal cards. Amounts are formatted in currency.
func RenderText(w io.Writer, s *model.DashboardStats, currency string) error {
	pipeline := card("Pipeline",
		row("Leads", fmt.Sprint(s.LeadsTotal)),
		statuses(s.LeadsByStatus),
		row("Customers", fmt.Sprint(s.CustomersTotal)),
		row("Works", fmt.Sprint(s.WorksTotal)),
		statuses(s.WorksByStatus),
		row("Active staff", fmt.Sprint(s.ActiveStaff)),
	)

	invoiceLines := []string{
		row("Outstanding", money.Format(s.Outstanding, currency)),
		row("Paid this month", money.Format(s.PaidThisMonth, currency)),
	}
	for _, st := range s.InvoicesByStatus {
		invoiceLines = append(invoiceLines,
			row(st.Status, fmt.Sprintf("%d  %s", st.Count, money.Format(st.Total, currency))))
	}
	invoices := card("Invoices", invoiceLines...)

	peak := decimal.Zero
	for _, m := range s.Revenue {
		if m.Revenue.GreaterThan(peak) {
			peak = m.Revenue
		}
	}
	revenueLines := make([]string, 0, len(s.Revenue))
	for _, m := range s.Revenue {
		n := 0
		if peak.IsPositive() {
			n = int(m.Revenue.Mul(decimal.NewFromInt(barWidth)).Div(peak).IntPart())
		}
		revenueLines = append(revenueLines, fmt.Sprintf("%s %s %s",
			dimStyle.Render(m.Month),
			barStyle.Render(strings.Repeat("█", n)+strings.Repeat(" ", barWidth-n)),
			money.Format(m.Revenue, currency)))
	}
	revenue := card("Revenue", revenueLines...)

	out := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, pipeline, " ", invoices),
		revenue,
	)
	_, err := fmt.Fprintln(w, out)
	return err
}
