package email

import (
	"fmt"
	"strings"
)

// ReceiptLine represents an order line for receipt purposes
type ReceiptLine struct {
	ProductID string
	Name      string
	Quantity  int
	Price     int
}

// BuildReceiptBody builds the HTML body for the order receipt email.
// Amounts arrive in cents.
func BuildReceiptBody(orderID string, totalInCents int, lines []ReceiptLine) string {
	var linesHTML strings.Builder
	for _, line := range lines {
		name := line.Name
		if name == "" {
			name = line.ProductID
		}
		linesHTML.WriteString(fmt.Sprintf(
			`<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">%d</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
			</tr>`,
			name,
			line.Quantity,
			formatAmount(line.Price),
			formatAmount(line.Price*line.Quantity),
		))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #1f2937; padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Thanks for your order</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">Your payment went through and your order is confirmed.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order number</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
		</div>

		<h2 style="font-size: 18px; border-bottom: 2px solid #1f2937; padding-bottom: 10px;">Order summary</h2>

		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left; font-weight: 600;">Item</th>
					<th style="padding: 12px; text-align: center; font-weight: 600;">Qty</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Unit price</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Subtotal</th>
				</tr>
			</thead>
			<tbody>
				%s
			</tbody>
		</table>

		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
			<span style="font-size: 14px; color: #666;">Total charged</span>
			<span style="font-size: 24px; font-weight: bold; color: #1f2937; margin-left: 10px;">%s</span>
		</div>

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			This is an automated message. If anything looks wrong, contact support and quote your order number.
		</p>
	</div>
</body>
</html>`, orderID, linesHTML.String(), formatAmount(totalInCents))
}

// formatAmount renders cents as a dollar amount, e.g. 2999 -> $29.99.
func formatAmount(cents int) string {
	return fmt.Sprintf("$%s.%02d", formatNumber(cents/100), cents%100)
}

// formatNumber formats a number with comma separators
func formatNumber(n int) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	remainder := len(str) % 3
	if remainder > 0 {
		result.WriteString(str[:remainder])
		result.WriteString(",")
	}

	for i := remainder; i < len(str); i += 3 {
		result.WriteString(str[i : i+3])
		if i+3 < len(str) {
			result.WriteString(",")
		}
	}

	return result.String()
}
