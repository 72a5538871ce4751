package automation

import (
	"concierge-automation/internal/models"
)

// RuleTemplate is an instantiatable rule preset. Instantiate copies the
// preset into a RuleSpec for the given user; the caller may adjust the
// spec before handing it to AddRule.
type RuleTemplate struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Trigger     models.TriggerSpec  `json:"trigger"`
	Actions     []models.ActionSpec `json:"actions"`
}

// Instantiate builds a RuleSpec for userID from the template.
func (t RuleTemplate) Instantiate(userID string) RuleSpec {
	actions := make([]models.ActionSpec, len(t.Actions))
	copy(actions, t.Actions)
	return RuleSpec{
		UserID:      userID,
		Name:        t.Name,
		Description: t.Description,
		Trigger: models.TriggerSpec{
			Type:       t.Trigger.Type,
			Conditions: copyMap(t.Trigger.Conditions),
		},
		Actions: actions,
	}
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Templates returns the built-in rule presets offered to new users.
func Templates() []RuleTemplate {
	return []RuleTemplate{
		{
			ID:          "invoice-alert",
			Name:        "Invoice alert",
			Description: "Notify me when an invoice arrives by email",
			Trigger: models.TriggerSpec{
				Type:       models.TriggerEmail,
				Conditions: map[string]interface{}{"patterns": []string{"invoice", "payment due"}},
			},
			Actions: []models.ActionSpec{
				{Type: models.ActionNotify, Config: map[string]interface{}{
					"subject": "Invoice received",
					"message": "New invoice from {{from}}: {{subject}}",
				}},
			},
		},
		{
			ID:          "meeting-request-scheduler",
			Name:        "Meeting request scheduler",
			Description: "Auto-schedule a meeting when someone asks for one",
			Trigger: models.TriggerSpec{
				Type:       models.TriggerEmail,
				Conditions: map[string]interface{}{"patterns": []string{"meeting request", "schedule a call"}},
			},
			Actions: []models.ActionSpec{
				{Type: models.ActionSmartSchedule, Config: map[string]interface{}{
					"title":            "Meeting: {{subject}}",
					"duration_minutes": 30,
				}},
				{Type: models.ActionNotify, Config: map[string]interface{}{
					"message": "Scheduled a meeting for {{subject}}",
				}},
			},
		},
		{
			ID:          "morning-briefing",
			Name:        "Morning briefing",
			Description: "Send a daily briefing notification at 8am",
			Trigger: models.TriggerSpec{
				Type:       models.TriggerTimeBased,
				Conditions: map[string]interface{}{"time": "08:00"},
			},
			Actions: []models.ActionSpec{
				{Type: models.ActionNotify, Config: map[string]interface{}{
					"subject": "Morning briefing",
					"message": "Here is your schedule for today",
				}},
			},
		},
	}
}

// Template looks up one preset by id.
func Template(id string) (RuleTemplate, bool) {
	for _, t := range Templates() {
		if t.ID == id {
			return t, true
		}
	}
	return RuleTemplate{}, false
}
