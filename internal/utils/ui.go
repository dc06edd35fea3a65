package utils

import (
	"strings"

	"github.com/go-telegram/bot/models"
)

const (
	CallbackLicenseYes = "license_yes"
	CallbackLicenseNo  = "license_no"

	MenuPrefix            = "menu_"
	CallbackMainMenu      = "menu_main"
	CallbackMyInfo        = "menu_my_info"
	CallbackFreepik       = "menu_freepik"
	CallbackFreepikInfo   = "menu_freepik_info"
	CallbackDownloads     = "menu_downloads"
	CallbackSendURL       = "menu_send_url"
	CallbackSubscriptions = "menu_subscriptions"
	CallbackPlans         = "menu_plans"
	CallbackHelp          = "menu_help"
	CallbackStatus        = "menu_status"

	PlanPrefix  = "plan_"
	AdminPrefix = "admin_"

	AdminApprove = "approve"
	AdminReject  = "reject"
)

// PlanCallback encodes a plan choice as plan_<service>_<planID>.
func PlanCallback(service, planID string) string {
	return PlanPrefix + service + "_" + planID
}

// ParsePlanCallback splits plan_<service>_<planID>. The plan id may itself
// contain underscores.
func ParsePlanCallback(data string) (service, planID string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(data), "_", 3)
	if len(parts) != 3 || parts[0]+"_" != PlanPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

func AdminCallback(action, paymentID string) string {
	return AdminPrefix + action + "_" + paymentID
}

// ParseAdminCallback splits admin_<action>_<paymentID>.
func ParseAdminCallback(data string) (action, paymentID string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(data), "_", 3)
	if len(parts) != 3 || parts[0]+"_" != AdminPrefix || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

type Button struct {
	Text         string
	CallbackData string
	URL          string
}

// BuildInlineKeyboard lays buttons out perRow to a row.
func BuildInlineKeyboard(buttons []Button, perRow int) models.InlineKeyboardMarkup {
	if perRow <= 0 {
		perRow = 1
	}
	pad := func(s string) string { return " " + s + " " }
	rows := make([][]models.InlineKeyboardButton, 0)
	row := make([]models.InlineKeyboardButton, 0, perRow)
	for i, button := range buttons {
		if i > 0 && i%perRow == 0 {
			rows = append(rows, row)
			row = make([]models.InlineKeyboardButton, 0, perRow)
		}
		row = append(row, models.InlineKeyboardButton{
			Text:         pad(button.Text),
			CallbackData: button.CallbackData,
			URL:          button.URL,
		})
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	return models.InlineKeyboardMarkup{
		InlineKeyboard: rows,
	}
}

func LicensePromptKeyboard() models.InlineKeyboardMarkup {
	return BuildInlineKeyboard([]Button{
		{Text: "Yes", CallbackData: CallbackLicenseYes},
		{Text: "No", CallbackData: CallbackLicenseNo},
	}, 2)
}

func BackToMainKeyboard() models.InlineKeyboardMarkup {
	return BuildInlineKeyboard([]Button{{Text: "⬅️ Back to Main Menu", CallbackData: CallbackMainMenu}}, 1)
}

func BackToFreepikKeyboard() models.InlineKeyboardMarkup {
	return BuildInlineKeyboard([]Button{{Text: "⬅️ Back to Freepik Menu", CallbackData: CallbackFreepik}}, 1)
}

func MainMenuKeyboard() models.InlineKeyboardMarkup {
	return BuildInlineKeyboard([]Button{
		{Text: "ℹ️ My Info", CallbackData: CallbackMyInfo},
		{Text: "🌐 Freepik", CallbackData: CallbackFreepik},
		{Text: "💳 Subscriptions", CallbackData: CallbackSubscriptions},
		{Text: "📋 Available Plans", CallbackData: CallbackPlans},
		{Text: "❓ Help", CallbackData: CallbackHelp},
	}, 1)
}

func FreepikMenuKeyboard() models.InlineKeyboardMarkup {
	return BuildInlineKeyboard([]Button{
		{Text: "📥 Send Freepik URL", CallbackData: CallbackSendURL},
		{Text: "📋 My Downloads", CallbackData: CallbackDownloads},
		{Text: "💳 Get Subscription", CallbackData: CallbackPlans},
		{Text: "ℹ️ About Freepik", CallbackData: CallbackFreepikInfo},
		{Text: "⬅️ Back to Main Menu", CallbackData: CallbackMainMenu},
	}, 1)
}

func NoSubscriptionKeyboard() models.InlineKeyboardMarkup {
	return BuildInlineKeyboard([]Button{
		{Text: "💳 Get Subscription", CallbackData: CallbackPlans},
		{Text: "⬅️ Back to Freepik Menu", CallbackData: CallbackFreepik},
	}, 1)
}

func CheckStatusKeyboard() models.InlineKeyboardMarkup {
	return BuildInlineKeyboard([]Button{
		{Text: "Check Status", CallbackData: CallbackStatus},
		{Text: "⬅️ Back to Freepik Menu", CallbackData: CallbackFreepik},
	}, 1)
}

func AdminPaymentKeyboard(paymentID string) models.InlineKeyboardMarkup {
	return BuildInlineKeyboard([]Button{
		{Text: "✅ Approve", CallbackData: AdminCallback(AdminApprove, paymentID)},
		{Text: "❌ Reject", CallbackData: AdminCallback(AdminReject, paymentID)},
	}, 2)
}
