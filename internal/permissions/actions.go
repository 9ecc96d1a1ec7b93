package permissions

import "strings"

// Action is a CRUD-style operation on a resource type.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionRead   Action = "READ"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionManage Action = "MANAGE"
)

var actionSuffixes = map[Action]string{
	ActionCreate: "create",
	ActionRead:   "view",
	ActionUpdate: "update",
	ActionDelete: "delete",
	ActionManage: "manage",
}

// ParseAction normalises user input into an Action.
func ParseAction(value string) (Action, bool) {
	action := Action(strings.ToUpper(strings.TrimSpace(value)))
	_, ok := actionSuffixes[action]
	return action, ok
}

// PermissionsForAction maps an action on a resource type to the permission
// identifiers that grant it. Every action except MANAGE is also granted by the
// resource's manage permission; MANAGE maps only to the manage permission.
func PermissionsForAction(resourceType string, action Action) []string {
	resourceType = strings.ToLower(strings.TrimSpace(resourceType))
	suffix, ok := actionSuffixes[action]
	if resourceType == "" || !ok {
		return nil
	}

	ids := []string{resourceType + "." + suffix}
	if action != ActionManage {
		ids = append(ids, resourceType+".manage")
	}
	return ids
}
