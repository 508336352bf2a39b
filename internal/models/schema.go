package models

type ActionDefinition struct {
	ActionID   string `json:"action_id"`
	Label      string `json:"label"`
	BasePoints int64  `json:"base_points"`
	BonusCap   int64  `json:"bonus_cap"`
}

// Schema is the catalog of awardable actions for one community.
type Schema struct {
	CommunityID string                      `json:"community_id"`
	SchemaID    string                      `json:"schema_id"`
	Actions     map[string]ActionDefinition `json:"actions"`
}

// Label returns the human label for an action id, or a fallback for ids the
// schema no longer knows about (old ledger records outlive schema edits).
func (s *Schema) Label(actionID string) string {
	if s != nil {
		if def, ok := s.Actions[actionID]; ok {
			return def.Label
		}
	}
	return "Unknown Action"
}
