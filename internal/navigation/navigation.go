// Package navigation decides which screens a session may reach.
//
// A session is always in exactly one State. The state follows from two
// facts only: whether the session is still loading, and the role of the
// signed-in user (if any). Each state owns its own set of screens and no
// screen belongs to two states, so a worker can never reach an admin
// screen by any route.
package navigation

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/izzacatering/backend/internal/models"
)

// State is a top-level navigation state.
type State string

const (
	Loading         State = "loading"
	Unauthenticated State = "unauthenticated"
	User            State = "user"
	Admin           State = "admin"
	Worker          State = "worker"
)

// Screen names one reachable screen.
type Screen string

const (
	ScreenLogin    Screen = "auth.login"
	ScreenRegister Screen = "auth.register"

	UserDashboard     Screen = "user.dashboard"
	UserEventRequest  Screen = "user.event_request"
	UserMyEvents      Screen = "user.my_events"
	UserEventDetails  Screen = "user.event_details"
	UserAbout         Screen = "user.about"
	UserProfile       Screen = "user.profile"
	UserNotifications Screen = "user.notifications"

	AdminDashboard        Screen = "admin.dashboard"
	AdminEventManagement  Screen = "admin.event_management"
	AdminEventDetails     Screen = "admin.event_details"
	AdminAssignWorkers    Screen = "admin.assign_workers"
	AdminCalendar         Screen = "admin.calendar"
	AdminWorkerManagement Screen = "admin.worker_management"
	AdminPaymentTracking  Screen = "admin.payment_tracking"
	AdminBroadcast        Screen = "admin.broadcast"
	AdminNotifications    Screen = "admin.notifications"

	WorkerDashboard       Screen = "worker.dashboard"
	WorkerAvailableEvents Screen = "worker.available_events"
	WorkerMyAssignments   Screen = "worker.my_assignments"
	WorkerEventDetails    Screen = "worker.event_details"
	WorkerCheckIn         Screen = "worker.check_in"
	WorkerAttendance      Screen = "worker.attendance"
	WorkerEarnings        Screen = "worker.earnings"
	WorkerProfile         Screen = "worker.profile"
	WorkerNotifications   Screen = "worker.notifications"
)

var screens = map[State][]Screen{
	Loading:         nil,
	Unauthenticated: {ScreenLogin, ScreenRegister},
	User: {
		UserDashboard, UserEventRequest, UserMyEvents, UserEventDetails,
		UserAbout, UserProfile, UserNotifications,
	},
	Admin: {
		AdminDashboard, AdminEventManagement, AdminEventDetails, AdminAssignWorkers,
		AdminCalendar, AdminWorkerManagement, AdminPaymentTracking, AdminBroadcast,
		AdminNotifications,
	},
	Worker: {
		WorkerDashboard, WorkerAvailableEvents, WorkerMyAssignments, WorkerEventDetails,
		WorkerCheckIn, WorkerAttendance, WorkerEarnings, WorkerProfile, WorkerNotifications,
	},
}

// owner maps every screen back to the single state that owns it.
var owner = func() map[Screen]State {
	m := make(map[Screen]State)
	for st, list := range screens {
		for _, sc := range list {
			if prev, dup := m[sc]; dup {
				panic(fmt.Sprintf("navigation: screen %s owned by both %s and %s", sc, prev, st))
			}
			m[sc] = st
		}
	}
	return m
}()

// Tabs are the bottom-tab screens of each role, in display order.
var tabs = map[State][]Screen{
	User:   {UserDashboard, UserEventRequest, UserMyEvents},
	Admin:  {AdminDashboard, AdminEventManagement, AdminWorkerManagement, AdminPaymentTracking},
	Worker: {WorkerDashboard, WorkerAvailableEvents, WorkerMyAssignments, WorkerEarnings},
}

// Resolve selects the state for a session snapshot. While loading nothing
// else matters; afterwards a missing user or an unknown role means
// unauthenticated.
func Resolve(loading bool, user *models.User) State {
	if loading {
		return Loading
	}
	if user == nil {
		return Unauthenticated
	}
	switch user.Role {
	case models.RoleUser:
		return User
	case models.RoleAdmin:
		return Admin
	case models.RoleWorker:
		return Worker
	}
	return Unauthenticated
}

// Screens returns the screens reachable from s, sorted.
func (s State) Screens() []Screen {
	out := append([]Screen(nil), screens[s]...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Tabs returns the role's tab screens in display order.
func (s State) Tabs() []Screen {
	return append([]Screen(nil), tabs[s]...)
}

// Allows reports whether screen is reachable from s.
func (s State) Allows(screen Screen) bool {
	st, ok := owner[screen]
	return ok && st == s
}

// IsRole reports whether s is one of the signed-in role states.
func (s State) IsRole() bool {
	return s == User || s == Admin || s == Worker
}

// Owner returns the state that owns screen.
func Owner(screen Screen) (State, bool) {
	st, ok := owner[screen]
	return st, ok
}

var (
	// ErrRoleSwitch is returned when a signed-in session would move
	// straight to another role without signing out first.
	ErrRoleSwitch = errors.New("navigation: cannot switch role without signing out")
	// ErrBackToLoading is returned for any move into the loading state.
	ErrBackToLoading = errors.New("navigation: cannot return to loading")
)

// Machine tracks the navigation state of one session. It starts in
// Loading.
type Machine struct {
	mu    sync.Mutex
	state State
}

// NewMachine returns a machine in the Loading state.
func NewMachine() *Machine {
	return &Machine{state: Loading}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves the machine to next if the move is legal and returns
// the resulting state. Moving to the current state is a no-op.
func (m *Machine) Transition(next State) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.state
	if _, known := screens[next]; !known {
		return cur, fmt.Errorf("navigation: unknown state %q", next)
	}
	switch {
	case next == cur:
		return cur, nil
	case next == Loading:
		return cur, ErrBackToLoading
	case cur == Loading, cur == Unauthenticated:
	case cur.IsRole() && next == Unauthenticated:
	case cur.IsRole() && next.IsRole():
		return cur, ErrRoleSwitch
	default:
		return cur, fmt.Errorf("navigation: unknown transition %s -> %s", cur, next)
	}
	m.state = next
	return next, nil
}
