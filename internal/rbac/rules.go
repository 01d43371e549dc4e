package rbac

const (
	PermSessionStart   = "session:start"
	PermSessionSubmit  = "session:submit"
	PermSessionViewOwn = "session:view-own"
	PermMasteryViewOwn = "mastery:view-own"
	PermGradingPreview = "grading:preview"
	PermGradingProcess = "grading:process"
)

// RolePermissions is the default policy. Section ownership is checked by the
// grading engine on top of these.
var RolePermissions = map[string][]string{
	"student": {
		PermSessionStart,
		PermSessionSubmit,
		PermSessionViewOwn,
		PermMasteryViewOwn,
	},
	"teacher": {
		"grading:*",
	},
	"admin": {
		"*", // everything
	},
}
