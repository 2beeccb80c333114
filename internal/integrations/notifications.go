package integrations

import (
	"errors"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"gameshop/internal/models"
)

// ErrNotifierDisabled is returned when no bot or admin chat is configured.
var ErrNotifierDisabled = errors.New("notifier disabled")

// MessageSender is the part of the Bot API the notifier needs.
type MessageSender interface {
	SendMessage(chatID int64, text string) error
	SendPhoto(chatID int64, photoURL, caption string) error
}

// Notifier formats shop events and sends them to the admin chat or to the
// user concerned.
type Notifier struct {
	sender      MessageSender
	adminChatID int64
}

func NewNotifier(sender MessageSender, adminChatID int64) *Notifier {
	return &Notifier{sender: sender, adminChatID: adminChatID}
}

func (n *Notifier) NotifyNewOrder(order models.Order, user models.User) error {
	var inputs []string
	keys := make([]string, 0, len(order.InputValues))
	for k := range order.InputValues {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		inputs = append(inputs, fmt.Sprintf("• %s: %s", esc(k), esc(order.InputValues[k])))
	}

	var b strings.Builder
	b.WriteString("🛒 <b>New Order Received!</b>\n\n")
	fmt.Fprintf(&b, "📦 <b>Product:</b> %s\n", esc(order.ProductName))
	fmt.Fprintf(&b, "💰 <b>Amount:</b> %s\n", FormatCurrency(order.Amount, order.Currency))
	fmt.Fprintf(&b, "🆔 <b>Order ID:</b> %s\n\n", esc(order.OrderID))
	writeCustomer(&b, user)
	fmt.Fprintf(&b, "\n📝 <b>Input Values:</b>\n%s\n\n", strings.Join(inputs, "\n"))
	fmt.Fprintf(&b, "⏰ <b>Time:</b> %s", formatTime(order.CreatedAt))
	return n.toAdmin(b.String())
}

// NotifyNewTopup tells the admin about a top-up request. The proof is sent
// as a photo when it is a URL.
func (n *Notifier) NotifyNewTopup(topup models.Topup, user models.User) error {
	var b strings.Builder
	b.WriteString("💳 <b>New Top-Up Request!</b>\n\n")
	fmt.Fprintf(&b, "💰 <b>Amount:</b> %s\n", FormatCurrency(topup.Amount, "MMK"))
	fmt.Fprintf(&b, "💳 <b>Payment Method:</b> %s\n\n", esc(topup.PaymentMethod))
	writeCustomer(&b, user)
	fmt.Fprintf(&b, "\n⏰ <b>Time:</b> %s\n\n", formatTime(topup.CreatedAt))
	b.WriteString("📸 Payment proof has been uploaded.")

	if n.sender == nil || n.adminChatID == 0 {
		return ErrNotifierDisabled
	}
	if isURL(topup.ProofImage) {
		return n.sender.SendPhoto(n.adminChatID, topup.ProofImage, b.String())
	}
	return n.sender.SendMessage(n.adminChatID, b.String())
}

func (n *Notifier) NotifyOrderStatus(order models.Order) error {
	emoji, label, extra := "❌", "Rejected", "💰 Your payment has been refunded to your wallet balance."
	if order.Status == models.StatusApproved {
		emoji, label, extra = "✅", "Approved", "🎮 Your order has been processed successfully. Please check your game account!"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>Order %s!</b>\n\n", emoji, label)
	fmt.Fprintf(&b, "📦 <b>Product:</b> %s\n", esc(order.ProductName))
	fmt.Fprintf(&b, "💰 <b>Amount:</b> %s\n", FormatCurrency(order.Amount, order.Currency))
	fmt.Fprintf(&b, "🆔 <b>Order ID:</b> %s\n\n", esc(order.OrderID))
	b.WriteString(extra)
	return n.toUser(order.TelegramID, b.String())
}

func (n *Notifier) NotifyTopupStatus(topup models.Topup) error {
	emoji, label := "❌", "Rejected"
	extra := "⚠️ Your top-up request was rejected. Please contact support if you have any questions."
	if topup.Status == models.StatusApproved {
		emoji, label = "✅", "Approved"
		extra = fmt.Sprintf("💰 %s has been added to your wallet!", FormatCurrency(topup.Amount, "MMK"))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>Top-Up %s!</b>\n\n", emoji, label)
	fmt.Fprintf(&b, "💰 <b>Amount:</b> %s\n", FormatCurrency(topup.Amount, "MMK"))
	fmt.Fprintf(&b, "💳 <b>Method:</b> %s\n\n", esc(topup.PaymentMethod))
	b.WriteString(extra)
	return n.toUser(topup.TelegramID, b.String())
}

func (n *Notifier) NotifyBan(telegramID int64, reason string) error {
	text := "⛔ <b>Account Banned</b>\n\n" +
		"Your account has been banned from using this service.\n\n" +
		"<b>Reason:</b> " + esc(reason) + "\n\n" +
		"If you believe this is a mistake, please contact support."
	return n.toChat(telegramID, text)
}

func (n *Notifier) NotifyUnban(telegramID int64) error {
	text := "✅ <b>Account Unbanned</b>\n\n" +
		"Your account has been unbanned. You can now use the service again.\n\n" +
		"Thank you for your patience!"
	return n.toChat(telegramID, text)
}

func (n *Notifier) toAdmin(text string) error {
	if n.adminChatID == 0 {
		return ErrNotifierDisabled
	}
	return n.toChat(n.adminChatID, text)
}

func (n *Notifier) toUser(telegramID, text string) error {
	chatID, err := strconv.ParseInt(telegramID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad chat id %q: %w", telegramID, err)
	}
	return n.toChat(chatID, text)
}

func (n *Notifier) toChat(chatID int64, text string) error {
	if n.sender == nil {
		return ErrNotifierDisabled
	}
	return n.sender.SendMessage(chatID, text)
}

func writeCustomer(b *strings.Builder, user models.User) {
	username := user.Username
	if username == "" {
		username = "N/A"
	}
	fmt.Fprintf(b, "👤 <b>Customer:</b> %s\n", esc(strings.TrimSpace(user.FirstName+" "+user.LastName)))
	fmt.Fprintf(b, "📱 <b>Username:</b> @%s\n", esc(username))
	fmt.Fprintf(b, "🔢 <b>Telegram ID:</b> %s\n", esc(user.TelegramID))
}

// FormatCurrency renders amount with thousands separators, e.g. "10,000 MMK".
func FormatCurrency(amount int64, currency string) string {
	if currency == "" {
		currency = "MMK"
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var out strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(r)
	}
	return sign + out.String() + " " + currency
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("January 2, 2006 at 3:04 PM UTC")
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

func esc(s string) string {
	return html.EscapeString(s)
}
