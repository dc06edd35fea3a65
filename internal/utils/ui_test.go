package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePlanCallback(t *testing.T) {
	service, planID, ok := ParsePlanCallback(PlanCallback("freepik", "monthly"))
	assert.True(t, ok)
	assert.Equal(t, "freepik", service)
	assert.Equal(t, "monthly", planID)

	_, planID, ok = ParsePlanCallback("plan_freepik_pro_annual")
	assert.True(t, ok)
	assert.Equal(t, "pro_annual", planID)

	for _, bad := range []string{"plan_freepik", "plan__monthly", "admin_freepik_monthly", ""} {
		_, _, ok := ParsePlanCallback(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseAdminCallback(t *testing.T) {
	action, id, ok := ParseAdminCallback(AdminCallback(AdminApprove, "5f2c-11"))
	assert.True(t, ok)
	assert.Equal(t, AdminApprove, action)
	assert.Equal(t, "5f2c-11", id)

	_, _, ok = ParseAdminCallback("admin_approve_")
	assert.False(t, ok)
	_, _, ok = ParseAdminCallback("menu_main")
	assert.False(t, ok)
}

func TestBuildInlineKeyboardRows(t *testing.T) {
	kb := BuildInlineKeyboard([]Button{
		{Text: "a", CallbackData: "1"},
		{Text: "b", CallbackData: "2"},
		{Text: "c", CallbackData: "3"},
	}, 2)
	assert.Len(t, kb.InlineKeyboard, 2)
	assert.Len(t, kb.InlineKeyboard[0], 2)
	assert.Equal(t, "3", kb.InlineKeyboard[1][0].CallbackData)

	admin := AdminPaymentKeyboard("p1")
	assert.Equal(t, "admin_approve_p1", admin.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "admin_reject_p1", admin.InlineKeyboard[0][1].CallbackData)
}
