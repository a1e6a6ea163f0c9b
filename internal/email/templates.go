package email

import (
	"fmt"
	"html"
	"strings"

	"github.com/example/grocery-storefront/internal/money"
	"github.com/shopspring/decimal"
)

type OrderItem struct {
	ItemID   string
	Quantity int
	Price    decimal.Decimal
}

// Confirmation is what one recipient paid. For a shared order Items holds
// only their own lines and DeliveryFee their share of the fee.
type Confirmation struct {
	OrderID     string
	Slot        string
	Shared      bool
	Items       []OrderItem
	DeliveryFee decimal.Decimal
}

func (c Confirmation) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(money.LineTotal(item.Price, item.Quantity))
	}
	return money.Round(total)
}

func (c Confirmation) Total() decimal.Decimal {
	return money.Sum(c.ItemsTotal(), c.DeliveryFee)
}

// BuildOrderConfirmationBody builds the HTML body for order confirmation email
func BuildOrderConfirmationBody(c Confirmation) string {
	var rows strings.Builder
	for _, item := range c.Items {
		fmt.Fprintf(&rows, `<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">%d</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
			</tr>`,
			html.EscapeString(item.ItemID),
			item.Quantity,
			formatAmount(item.Price),
			formatAmount(money.LineTotal(item.Price, item.Quantity)),
		)
	}

	delivery := "Delivery: as soon as possible"
	if c.Slot != "" && c.Slot != "now" {
		delivery = "Delivery slot: " + html.EscapeString(c.Slot)
	}
	feeLabel := "Delivery fee"
	if c.Shared {
		feeLabel = "Your share of the delivery fee"
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #2f855a; padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Thanks for your order</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order number</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
			<p style="margin: 5px 0 0 0; font-size: 14px;">%s</p>
		</div>

		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left; font-weight: 600;">Item</th>
					<th style="padding: 12px; text-align: center; font-weight: 600;">Qty</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Price</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Subtotal</th>
				</tr>
			</thead>
			<tbody>
				%s
			</tbody>
		</table>

		<table style="width: 100%%; padding: 20px; background: #f8f9fa; border-radius: 5px;">
			<tr><td>Basket</td><td style="text-align: right;">%s</td></tr>
			<tr><td>%s</td><td style="text-align: right;">%s</td></tr>
			<tr><td style="font-weight: bold;">Total charged</td><td style="text-align: right; font-size: 20px; font-weight: bold;">%s</td></tr>
		</table>

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">This email was sent automatically.</p>
	</div>
</body>
</html>`,
		html.EscapeString(c.OrderID),
		delivery,
		rows.String(),
		formatAmount(c.ItemsTotal()),
		feeLabel,
		formatAmount(c.DeliveryFee),
		formatAmount(c.Total()),
	)
}

func BuildRefundBody(orderID string, amount decimal.Decimal, reason string) string {
	var why string
	if reason != "" {
		why = fmt.Sprintf(`<p style="margin: 0;">Reason: %s</p>`, html.EscapeString(reason))
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<h1 style="font-size: 22px;">Order %s was canceled</h1>
	<p>%s has been returned to your wallet.</p>
	%s
</body>
</html>`, html.EscapeString(orderID), formatAmount(amount), why)
}

// formatAmount renders a money amount with two decimals and thousands
// separators, e.g. 1,234.50.
func formatAmount(d decimal.Decimal) string {
	s := money.Round(d).StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(whole) <= 3 {
		return sign + whole + "." + frac
	}

	var b strings.Builder
	head := len(whole) % 3
	if head > 0 {
		b.WriteString(whole[:head])
	}
	for i := head; i < len(whole); i += 3 {
		if b.Len() > 0 {
			b.WriteString(",")
		}
		b.WriteString(whole[i : i+3])
	}
	return sign + b.String() + "." + frac
}
