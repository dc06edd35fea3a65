package messages

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BatmanBruc/bat-bot-freepik/internal/config"
	"github.com/BatmanBruc/bat-bot-freepik/types"
)

const dateLayout = "2006-01-02"

// MinutesPerJob is the rough per-position wait estimate.
const MinutesPerJob = 2

func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// Amount formats a whole-unit price with thousands separators.
func Amount(currency string, amount int64) string {
	raw := strconv.FormatInt(amount, 10)
	neg := strings.HasPrefix(raw, "-")
	raw = strings.TrimPrefix(raw, "-")
	var b strings.Builder
	for i, c := range raw {
		if i > 0 && (len(raw)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	out := b.String()
	if neg {
		out = "-" + out
	}
	return strings.TrimSpace(currency + " " + out)
}

func Welcome(firstName string, userID int64) string {
	return fmt.Sprintf("👋 Welcome to the Premium Asset Downloader, %s!\n\n"+
		"Your User ID: <code>%d</code>\n\n"+
		"This bot helps you download premium resources from Freepik.", Escape(firstName), userID)
}

func MainMenu() string {
	return "🌟 <b>Main Menu</b> 🌟\n\nChoose an option below:"
}

func Help() string {
	return "🔍 <b>How to use this bot:</b>\n\n" +
		"1. Choose Freepik from the main menu\n" +
		"2. Press \"Send Freepik URL\" and paste a link\n" +
		"3. Wait for your download to complete\n" +
		"4. I'll send you the file!\n\n" +
		"Available commands:\n" +
		"/start - Open main menu\n" +
		"/help - Show this help message\n" +
		"/status - Check your download status\n" +
		"/queue - View the current download queue\n" +
		"/subscriptions - Manage your subscriptions"
}

func UnknownCommand() string {
	return "🤔 Unknown command. Use /help to see what I can do."
}

func UseMenu() string {
	return "Please use the menu buttons to navigate the bot. " +
		"If you want to download a Freepik resource, select that option from the menu."
}

func UnsupportedMessage() string {
	return "⚠️ I can only read links and payment receipt photos."
}

// Status

func StatusRunning(phase string) string {
	return "🔄 Your download is in progress!\n\n" +
		"Current status: " + Escape(phase) + "\n\n" +
		"I'll send you the file as soon as it's ready."
}

func StatusQueued(position, length int) string {
	return fmt.Sprintf("⏳ You're in the queue!\n\n"+
		"Position: %d of %d\n"+
		"Estimated wait time: ~%d minutes\n\n"+
		"I'll notify you when your download starts.", position, length, position*MinutesPerJob)
}

func StatusIdle() string {
	return "📭 You don't have any active downloads.\n\nGo to the main menu to start downloading!"
}

// QueueOverview describes the global queue for /queue.
func QueueOverview(length int) string {
	if length == 0 {
		return "✅ The download queue is currently empty!"
	}
	return fmt.Sprintf("👥 Current download queue: %d items\n\n"+
		"Estimated processing time: ~%d minutes\n\n"+
		"Use /status to check your position in the queue.", length, length*MinutesPerJob)
}

// Subscriptions

func SubscriptionList(subs []types.Subscription) string {
	var b strings.Builder
	b.WriteString("💳 <b>Your Subscriptions</b>\n\n")
	if len(subs) == 0 {
		b.WriteString("You don't have any subscriptions yet.\n\n")
	}
	for _, s := range subs {
		fmt.Fprintf(&b, "<b>%s - %s</b>\nStatus: %s\nExpires: %s\n\n",
			Escape(Capitalize(s.Service)), Escape(Capitalize(s.PlanID)),
			Capitalize(string(s.Status)), s.EndDate.Format(dateLayout))
	}
	b.WriteString("Check available plans below:")
	return b.String()
}

// SubscriptionOverview lists active subscriptions and those awaiting
// payment verification.
func SubscriptionOverview(subs []types.Subscription, now time.Time) string {
	var b strings.Builder
	b.WriteString("💳 <b>Your Subscriptions</b>\n\n")
	if len(subs) == 0 {
		b.WriteString("You don't have any subscriptions yet.\n\n")
		b.WriteString("Check out our subscription plans below!")
		return b.String()
	}

	active := 0
	for _, s := range subs {
		if !s.Live(now) {
			continue
		}
		active++
		fmt.Fprintf(&b, "<b>%s - %s</b>\nStatus: Active\nExpires: %s\n\n",
			Escape(Capitalize(s.Service)), Escape(Capitalize(s.PlanID)), s.EndDate.Format(dateLayout))
	}
	if active == 0 {
		b.WriteString("You don't have any active subscriptions.\n\n")
	}

	pending := make([]string, 0)
	for _, s := range subs {
		if s.Status == types.SubscriptionPending {
			pending = append(pending, fmt.Sprintf("• %s - %s (Awaiting payment verification)",
				Escape(Capitalize(s.Service)), Escape(Capitalize(s.PlanID))))
		}
	}
	if len(pending) > 0 {
		b.WriteString("<b>Pending Subscriptions:</b>\n")
		b.WriteString(strings.Join(pending, "\n"))
		b.WriteString("\n\n")
	}
	b.WriteString("Check out our subscription plans below!")
	return b.String()
}

func PlanList(plans []types.Plan) string {
	var b strings.Builder
	b.WriteString("📋 <b>Available Subscription Plans</b>\n\n")
	if len(plans) == 0 {
		b.WriteString("No plans are available right now. Please check back later.")
		return b.String()
	}
	service := ""
	for _, p := range plans {
		if p.Service != service {
			if service != "" {
				b.WriteString("\n")
			}
			service = p.Service
			fmt.Fprintf(&b, "<b>%s Plans:</b>\n", Escape(Capitalize(service)))
		}
		fmt.Fprintf(&b, "• %s: %s (%d downloads/day)\n", Escape(p.Name), Amount(p.Currency, p.Price), p.DownloadLimit)
	}
	b.WriteString("\nPlease select a plan to subscribe:")
	return b.String()
}

func PlanButton(p types.Plan) string {
	return fmt.Sprintf("%s %s - %s", Capitalize(p.Service), p.Name, Amount(p.Currency, p.Price))
}

func PlanNotFound() string {
	return "❌ Selected plan not found. Please try again."
}

func InvalidPlan() string {
	return "❌ Invalid plan selection. Please try again."
}

func PaymentInstructions(p types.Plan, bank config.BankDetails, userID int64) string {
	return fmt.Sprintf("💳 <b>Subscribe to %s %s</b>\n\n"+
		"Amount: %s\n\n"+
		"<b>Payment Instructions:</b>\n"+
		"1. Make a payment to the bank account below\n"+
		"2. Add your Telegram User ID as the reference\n"+
		"3. Take a screenshot/photo of the payment receipt\n"+
		"4. Send the screenshot/photo to this chat\n\n"+
		"<b>Bank Details:</b>\n"+
		"Bank: %s\nBranch: %s\nName: %s\nAccount Number: %s\n\n"+
		"Reference: <code>%d</code> (Your Telegram User ID)\n\n"+
		"Please send a photo of your payment receipt.",
		Escape(Capitalize(p.Service)), Escape(p.Name), Amount(p.Currency, p.Price),
		Escape(bank.BankName), Escape(bank.BranchName), Escape(bank.AccountName), Escape(bank.AccountNumber),
		userID)
}

// Info

// UserInfo is the "My Info" screen.
type UserInfo struct {
	User          *types.User
	UserID        int64
	Username      string
	Name          string
	Subscriptions []types.Subscription
	Quota         *types.QuotaRecord
	Payments      []types.Payment
	Now           time.Time
}

func MyInfo(info UserInfo) string {
	var b strings.Builder
	username := info.Username
	if username == "" {
		username = "Not set"
	} else {
		username = "@" + username
	}
	registered := "Unknown"
	if info.User != nil && !info.User.RegisteredAt.IsZero() {
		registered = info.User.RegisteredAt.Format(dateLayout)
	}
	fmt.Fprintf(&b, "📋 <b>User Information</b>\n\n<b>User ID:</b> <code>%d</code>\n<b>Username:</b> %s\n<b>Name:</b> %s\n<b>Registered:</b> %s",
		info.UserID, Escape(username), Escape(info.Name), registered)

	switch {
	case len(info.Subscriptions) == 0:
		b.WriteString("\n\n<b>No subscriptions found</b>")
	default:
		lines := make([]string, 0)
		for _, s := range info.Subscriptions {
			if s.Live(info.Now) {
				lines = append(lines, fmt.Sprintf("• %s %s (Expires: %s)",
					Escape(Capitalize(s.Service)), Escape(Capitalize(s.PlanID)), s.EndDate.Format(dateLayout)))
			}
		}
		if len(lines) == 0 {
			b.WriteString("\n\n<b>No active subscriptions</b>")
		} else {
			b.WriteString("\n\n<b>Active Subscriptions:</b>\n")
			b.WriteString(strings.Join(lines, "\n"))
		}
	}

	b.WriteString("\n\n<b>Download Stats (Today):</b>\n")
	if info.Quota != nil {
		fmt.Fprintf(&b, "• Freepik: %d/%d downloads", info.Quota.Count, info.Quota.Limit)
	} else {
		b.WriteString("• No stats available")
	}

	if len(info.Payments) > 0 {
		b.WriteString("\n\n<b>Recent Payments:</b>")
		for _, p := range info.Payments {
			fmt.Fprintf(&b, "\n• %s %s: %s - %s (%s)",
				Escape(Capitalize(p.Service)), Escape(Capitalize(p.PlanID)), Amount(p.Currency, p.Amount),
				Capitalize(string(p.Status)), p.PaymentDate.Format(dateLayout))
		}
	}
	b.WriteString("\n\nDownload limits are reset daily at 00:00 UTC.")
	return b.String()
}

// Freepik

func FreepikMenu(sub *types.Subscription, quota *types.QuotaRecord) string {
	var b strings.Builder
	b.WriteString("🌐 <b>Freepik Downloads</b>\n\n")
	if sub != nil {
		fmt.Fprintf(&b, "✅ Active Subscription: %s\nExpires: %s\n", Escape(Capitalize(sub.PlanID)), sub.EndDate.Format(dateLayout))
		if quota != nil {
			fmt.Fprintf(&b, "Daily Limit: %d/%d downloads used today\n", quota.Count, quota.Limit)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("❌ No Active Subscription\nYou need a subscription to download resources.\n\n")
	}
	b.WriteString("What would you like to do?")
	return b.String()
}

func FreepikAbout(plans []types.Plan) string {
	var b strings.Builder
	b.WriteString("<b>About Freepik Downloads</b>\n\n" +
		"Freepik is a popular platform for graphic resources, including:\n" +
		"• Vector graphics\n• Stock photos\n• PSD files\n• Icons and illustrations\n\n" +
		"<b>How to use:</b>\n" +
		"1. Find a resource you like on Freepik\n" +
		"2. Copy the URL\n" +
		"3. Send it to this bot\n" +
		"4. Receive your downloaded file\n\n")
	if len(plans) > 0 {
		b.WriteString("<b>Subscription Details:</b>\n")
		for _, p := range plans {
			fmt.Fprintf(&b, "• %s: %s (%d downloads/day)\n", Escape(p.Name), Amount(p.Currency, p.Price), p.DownloadLimit)
		}
		b.WriteString("\n")
	}
	b.WriteString("Limits reset daily at 00:00 UTC.")
	return b.String()
}

func DownloadsToday(downloads []types.Download, quota *types.QuotaRecord) string {
	var b strings.Builder
	b.WriteString("📥 <b>Your Freepik Downloads Today</b>\n\n")
	if len(downloads) == 0 {
		b.WriteString("You haven't downloaded any Freepik resources today.\n\n")
	}
	for i, d := range downloads {
		fmt.Fprintf(&b, "%d. %s\n   Size: %.2f MB\n   Time: %s\n\n",
			i+1, Escape(d.FileName), float64(d.Size)/(1<<20), d.CreatedAt.UTC().Format("15:04:05"))
	}
	count, limit := 0, 0
	if quota != nil {
		count, limit = quota.Count, quota.Limit
	}
	fmt.Fprintf(&b, "<b>Usage:</b> %d/%d downloads\n<b>Resets:</b> Daily at 00:00 UTC", count, limit)
	return b.String()
}

func NoSubscription() string {
	return "❌ <b>No Active Subscription</b>\n\n" +
		"You need a subscription to download Freepik resources.\n" +
		"Please purchase a subscription to continue."
}

func DailyLimitReached(count, limit int) string {
	return fmt.Sprintf("⚠️ <b>Daily Limit Reached</b>\n\n"+
		"You've used %d/%d downloads today.\n"+
		"Your limit will reset at 00:00 UTC.\n\n"+
		"Please try again tomorrow.", count, limit)
}

func AskForURL(count, limit int) string {
	return fmt.Sprintf("📤 Please paste your Freepik URL below\n\n"+
		"Example: https://www.freepik.com/premium-photo/example_12345.htm\n\n"+
		"You have used %d/%d downloads today.", count, limit)
}

func InvalidURL() string {
	return "❌ That doesn't look like a valid Freepik URL.\n\n" +
		"Please send a link like this:\n" +
		"https://www.freepik.com/premium-photo/example_12345.htm"
}

func AlreadyRunning() string {
	return "⚠️ You already have a download in progress!\n\n" +
		"Please wait for it to complete before requesting another download."
}

func AlreadyQueued() string {
	return "⚠️ You already have a download in the queue!\n\nUse /status to check your position."
}

func QueueFull() string {
	return "😔 I'm sorry, but the download queue is currently full.\n\nPlease try again in a few minutes!"
}

func Enqueued(url string, position int) string {
	return fmt.Sprintf("✅ Your download request has been added to the queue!\n\n"+
		"URL: %s\n"+
		"Queue position: %d\n"+
		"Estimated wait time: ~%d minutes\n\n"+
		"I'll notify you when your download is complete.", Escape(url), position, position*MinutesPerJob)
}

// Payments

func SelectPlanFirst() string {
	return "Please use the menu to select a subscription plan first."
}

func SendReceiptPhoto() string {
	return "Please send a photo/screenshot of your payment receipt."
}

func ReceiptReceived() string {
	return "📸 Received your payment receipt. Processing..."
}

func ReceiptTimedOut() string {
	return "❌ The image download timed out. Please try sending a smaller image or contact support."
}

func PaymentProofAccepted() string {
	return "✅ <b>Payment Proof Received!</b>\n\n" +
		"Thank you for your payment. Your subscription will be activated after our admin verifies your payment.\n\n" +
		"This usually takes 1-24 hours during business days.\n\n" +
		"You'll receive a notification once your subscription is active."
}

func PaymentProofFailed() string {
	return "❌ There was an error processing your payment proof. Please try again later or contact support."
}

func AdminNewPayment(p types.Payment, user *types.User) string {
	var b strings.Builder
	b.WriteString("💰 <b>New Payment Received</b>\n\n")
	if user != nil {
		if user.Username != "" {
			fmt.Fprintf(&b, "Username: @%s\n", Escape(user.Username))
		}
		if name := user.FullName(); name != "" {
			fmt.Fprintf(&b, "Name: %s\n", Escape(name))
		}
	}
	fmt.Fprintf(&b, "User ID: <code>%d</code>\nService: %s\nPlan: %s\nAmount: %s\nPayment ID: <code>%s</code>",
		p.UserID, Escape(Capitalize(p.Service)), Escape(Capitalize(p.PlanID)), Amount(p.Currency, p.Amount), Escape(p.ID))
	if p.UserNotes != "" {
		fmt.Fprintf(&b, "\nNotes: %s", Escape(p.UserNotes))
	}
	b.WriteString("\n\nApprove or reject this payment below.")
	return b.String()
}

func AdminReceiptCaption(paymentID string) string {
	return "Payment receipt for Payment ID: " + paymentID
}

func AdminOnly() string {
	return "You don't have permission to perform this action."
}

func PaymentNotFound(id string) string {
	return fmt.Sprintf("Payment with ID %s not found.", Escape(id))
}

func PaymentAlreadyProcessed(id string, status types.PaymentStatus) string {
	return fmt.Sprintf("ℹ️ Payment %s is already %s.", Escape(id), status)
}

func AdminApproved(paymentID string, userID int64) string {
	return fmt.Sprintf("✅ Payment %s approved successfully.\n\nUser %d has been notified and their subscription is now active.", Escape(paymentID), userID)
}

func AdminRejected(paymentID string, userID int64) string {
	return fmt.Sprintf("❌ Payment %s has been rejected.\n\nUser %d has been notified.", Escape(paymentID), userID)
}

func UserPaymentApproved(service, plan string) string {
	return fmt.Sprintf("✅ <b>Payment Approved!</b>\n\n"+
		"Your payment for %s %s subscription has been approved.\n\n"+
		"Your subscription is now active! You can now use the service.",
		Escape(Capitalize(service)), Escape(Capitalize(plan)))
}

func UserPaymentRejected(service, plan string) string {
	return fmt.Sprintf("❌ <b>Payment Rejected</b>\n\n"+
		"Your payment for %s %s subscription could not be verified.\n\n"+
		"Please contact support if you believe this is an error or try again with a clearer payment proof.",
		Escape(Capitalize(service)), Escape(Capitalize(plan)))
}

// License follow-up

func LicenseQueued() string {
	return "⏳ <b>Processing License Download</b>\n\n" +
		"Please wait while I download the license file for you...\n" +
		"This may take up to 5 minutes to complete."
}

func LicensePatience() string {
	return "ℹ️ License downloads require visiting the Freepik downloads page, which can take some time. " +
		"Please be patient while I retrieve your license file."
}

func LicenseMissingURL() string {
	return "❌ Error: Could not find the resource URL for license download.\n\n" +
		"Please try downloading the resource again."
}

func LicenseDeclined() string {
	return "✅ <b>Download Complete</b>\n\n" +
		"Thank you for using our service!\n" +
		"You can download more resources from the main menu."
}
