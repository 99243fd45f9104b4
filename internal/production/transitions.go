package production

import "fabrica/models"

// Action is an operation requested on a production order.
type Action string

const (
	ActionCreate   Action = "create"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
	ActionHold     Action = "hold"
	ActionResume   Action = "resume"
)

func (a Action) String() string { return string(a) }

// transitions is the complete set of allowed moves. Anything absent is
// rejected. Completing a draft or planned order goes through start first.
var transitions = map[models.OrderStatus]map[Action]models.OrderStatus{
	models.StatusDraft: {
		ActionStart:  models.StatusInProgress,
		ActionCancel: models.StatusCancelled,
		ActionHold:   models.StatusOnHold,
	},
	models.StatusPlanned: {
		ActionStart:  models.StatusInProgress,
		ActionCancel: models.StatusCancelled,
		ActionHold:   models.StatusOnHold,
	},
	models.StatusInProgress: {
		ActionComplete: models.StatusCompleted,
	},
	models.StatusOnHold: {
		ActionCancel: models.StatusCancelled,
		ActionResume: models.StatusPlanned,
	},
}

// Next returns the status action leads to from status. ok is false when the
// transition is not allowed.
func Next(status models.OrderStatus, action Action) (next models.OrderStatus, ok bool) {
	next, ok = transitions[status][action]
	return next, ok
}

// Allowed lists the actions available from status, in a stable order.
func Allowed(status models.OrderStatus) []Action {
	var actions []Action
	for _, action := range []Action{ActionStart, ActionComplete, ActionCancel, ActionHold, ActionResume} {
		if _, ok := Next(status, action); ok {
			actions = append(actions, action)
			continue
		}
		if action == ActionComplete {
			if _, ok := Next(status, ActionStart); ok {
				actions = append(actions, action)
			}
		}
	}
	return actions
}
