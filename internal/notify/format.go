package notify

import (
	"fmt"
	"html"
	"strings"
	"time"
)

const fallbackOffset = 7 * 60 * 60

// Formatter renders HTML chat messages.
type Formatter struct {
	loc *time.Location
	now func() time.Time
}

// NewFormatter renders times in the named zone, falling back to UTC+7 when it cannot be loaded.
func NewFormatter(timezone string) *Formatter {
	loc, err := time.LoadLocation(strings.TrimSpace(timezone))
	if err != nil || strings.TrimSpace(timezone) == "" {
		loc = time.FixedZone("UTC+7", fallbackOffset)
	}
	return &Formatter{loc: loc, now: time.Now}
}

// Render builds the message body for kind wrapped in the optional header and footer.
func (f *Formatter) Render(kind Kind, p Payload, header, footer string) string {
	var b strings.Builder
	if header != "" {
		b.WriteString(header)
		b.WriteString("\n\n")
	}

	switch kind {
	case KindStockAlert:
		b.WriteString(stockEmoji(p))
		b.WriteString(" <b>Stock Alert</b>\n\n")
		fmt.Fprintf(&b, "📦 Available Products: <b>%d</b>\n", p.Available)
		switch {
		case p.Available == 0:
			b.WriteString("\n🚨 <b>OUT OF STOCK!</b>\nPlease upload more products immediately.")
		case p.Available <= p.Threshold:
			fmt.Fprintf(&b, "\n⚠️ <b>LOW STOCK WARNING</b>\nStock is below threshold (%d)", p.Threshold)
		}
		b.WriteString("\n\n⏰ Time: ")
		b.WriteString(f.timestamp())
	case KindProductsAdded:
		b.WriteString("📦 <b>Products Added</b>\n\n")
		fmt.Fprintf(&b, "➕ New Products: <b>%d</b>\n", p.Quantity)
		if p.Destination != "" {
			fmt.Fprintf(&b, "📥 To: %s\n", html.EscapeString(p.Destination))
		}
		b.WriteString("⏰ Time: ")
		b.WriteString(f.timestamp())
	case KindProductsSold:
		b.WriteString("💰 <b>Products Sold</b>\n\n")
		fmt.Fprintf(&b, "📤 Quantity Sold: <b>%d</b>\n", p.Quantity)
		fmt.Fprintf(&b, "🆔 Order ID: <code>%s</code>\n", html.EscapeString(p.OrderID))
		b.WriteString("⏰ Time: ")
		b.WriteString(f.timestamp())
	case KindProductsMoved:
		b.WriteString("📦 <b>Products Moved</b>\n\n")
		fmt.Fprintf(&b, "🔄 Quantity Moved: <b>%d</b>\n", p.Quantity)
		fmt.Fprintf(&b, "📤 From: %s\n", html.EscapeString(p.Source))
		fmt.Fprintf(&b, "📥 To: %s\n", html.EscapeString(p.Destination))
		b.WriteString("⏰ Time: ")
		b.WriteString(f.timestamp())
	case KindProductsDeleted:
		b.WriteString("🗑️ <b>Products Deleted</b>\n\n")
		fmt.Fprintf(&b, "❌ Quantity Deleted: <b>%d</b>\n", p.Quantity)
		fmt.Fprintf(&b, "📦 From: %s\n", html.EscapeString(p.Source))
		fmt.Fprintf(&b, "❓ Reason: %s\n", html.EscapeString(p.Reason))
		b.WriteString("⏰ Time: ")
		b.WriteString(f.timestamp())
	case KindListDeleted:
		fmt.Fprintf(&b, "🗑️ <b>Bulk delete from %s</b>\n\n", html.EscapeString(p.Source))
		fmt.Fprintf(&b, "✅ Deleted: <b>%d</b>\n", p.Quantity)
		fmt.Fprintf(&b, "❌ Not found: <b>%d</b>\n", p.NotFound)
		b.WriteString("⏰ Time: ")
		b.WriteString(f.timestamp())
	default:
		b.WriteString("✅ <b>Test Message</b>\n\nTelegram notifications are working!\n\n⏰ ")
		b.WriteString(f.timestamp())
	}

	if footer != "" {
		b.WriteString("\n\n")
		b.WriteString(footer)
	}
	return b.String()
}

func stockEmoji(p Payload) string {
	switch {
	case p.Available == 0:
		return "🚨"
	case p.Available <= p.Threshold:
		return "⚠️"
	default:
		return "📊"
	}
}

func (f *Formatter) timestamp() string {
	t := f.now().In(f.loc)
	_, offset := t.Zone()
	label := "UTC"
	if offset != 0 {
		hours := offset / 3600
		mins := (offset % 3600) / 60
		if mins < 0 {
			mins = -mins
		}
		label = fmt.Sprintf("UTC%+d", hours)
		if mins != 0 {
			label = fmt.Sprintf("%s:%02d", label, mins)
		}
	}
	return fmt.Sprintf("%s (%s)", t.Format("2006-01-02 15:04:05"), label)
}
