package auth

import (
	"github.com/thehouse/platform/core/user"
)

type (
	Action   string
	Resource string
)

const (
	ActionList   Action = "list"
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

const (
	ResourceUser         Resource = "user"
	ResourceTeacher      Resource = "teacher"
	ResourceStudent      Resource = "student"
	ResourceClass        Resource = "class"
	ResourceSchedule     Resource = "schedule"
	ResourceEnrollment   Resource = "enrollment"
	ResourceLesson       Resource = "lesson"
	ResourceAttendance   Resource = "attendance"
	ResourceAssessment   Resource = "assessment"
	ResourceAnnouncement Resource = "announcement"
	ResourceEvent        Resource = "event"
	ResourceReservation  Resource = "reservation"
)

var allActions = []Action{ActionList, ActionRead, ActionCreate, ActionUpdate, ActionDelete}

type actionSet map[Action]bool

func actions(acts ...Action) actionSet {
	set := make(actionSet, len(acts))
	for _, act := range acts {
		set[act] = true
	}
	return set
}

func readOnly() actionSet { return actions(ActionList, ActionRead) }
func full() actionSet     { return actions(allActions...) }

// rolePerms is the closed permission table. A role/resource pair absent from
// the table permits nothing. Only canonical roles appear here: retired or
// unknown values fail closed in Authorize.
var rolePerms = map[user.Role]map[Resource]actionSet{
	user.RoleDirector: {
		ResourceUser:         full(),
		ResourceTeacher:      full(),
		ResourceStudent:      full(),
		ResourceClass:        full(),
		ResourceSchedule:     full(),
		ResourceEnrollment:   full(),
		ResourceLesson:       full(),
		ResourceAttendance:   full(),
		ResourceAssessment:   full(),
		ResourceAnnouncement: full(),
		ResourceEvent:        full(),
		ResourceReservation:  full(),
	},
	user.RoleSecretary: {
		ResourceUser:         readOnly(),
		ResourceTeacher:      actions(ActionList, ActionRead, ActionCreate, ActionUpdate),
		ResourceStudent:      full(),
		ResourceClass:        full(),
		ResourceSchedule:     full(),
		ResourceEnrollment:   full(),
		ResourceLesson:       full(),
		ResourceAttendance:   full(),
		ResourceAssessment:   readOnly(),
		ResourceAnnouncement: full(),
		ResourceEvent:        full(),
		ResourceReservation:  full(),
	},
	user.RoleCoordinator: {
		ResourceTeacher:      readOnly(),
		ResourceStudent:      readOnly(),
		ResourceClass:        readOnly(),
		ResourceSchedule:     readOnly(),
		ResourceEnrollment:   readOnly(),
		ResourceLesson:       actions(ActionList, ActionRead, ActionUpdate),
		ResourceAttendance:   readOnly(),
		ResourceAssessment:   actions(ActionList, ActionRead, ActionUpdate),
		ResourceAnnouncement: readOnly(),
		ResourceEvent:        readOnly(),
	},
	user.RoleTeacher: {
		ResourceStudent:      readOnly(),
		ResourceClass:        readOnly(),
		ResourceSchedule:     readOnly(),
		ResourceEnrollment:   actions(ActionList),
		ResourceLesson:       full(),
		ResourceAttendance:   full(),
		ResourceAssessment:   full(),
		ResourceAnnouncement: readOnly(),
		ResourceEvent:        readOnly(),
		ResourceReservation:  actions(ActionList, ActionRead, ActionCreate, ActionDelete),
	},
}

// privilegedRoles bypass ownership checks entirely; scoped roles must also
// satisfy the ownership chain for the non-list actions the table grants them.
var privilegedRoles = map[user.Role]bool{
	user.RoleDirector:    true,
	user.RoleCoordinator: true,
	user.RoleSecretary:   true,
}

// Privileged reports whether the role sees records regardless of ownership.
func Privileged(r user.Role) bool { return privilegedRoles[r] }

// Permits reports whether the permission table grants act on res to the role.
func Permits(r user.Role, act Action, res Resource) bool {
	perms, ok := rolePerms[r]
	if !ok {
		return false
	}
	return perms[res][act]
}

// PermittedActions returns the actions the table grants to the role on res,
// in the table's canonical order.
func PermittedActions(r user.Role, res Resource) []Action {
	perms, ok := rolePerms[r]
	if !ok {
		return nil
	}
	var acts []Action
	for _, act := range allActions {
		if perms[res][act] {
			acts = append(acts, act)
		}
	}
	return acts
}
