package domain

// Mode is the single authoritative kiosk session state. Exactly one mode is
// active per device session; transitions happen only through named actions
// validated against the session state machine's transition table.
type Mode string

const (
	ModeReceptionistLogin Mode = "receptionist-login"
	ModeHome              Mode = "home"
	ModeSignIn            Mode = "sign-in"
	ModeBooking           Mode = "booking"
	ModeTraining          Mode = "training"
	ModePhoto             Mode = "photo"
	ModeSignOut           Mode = "sign-out"
	ModeEmployeeLogin     Mode = "employee-login"
	ModeEmployeeDashboard Mode = "employee-dashboard"
	ModeSuccess           Mode = "success"
)

// Modes lists every legal session mode.
var Modes = []Mode{
	ModeReceptionistLogin,
	ModeHome,
	ModeSignIn,
	ModeBooking,
	ModeTraining,
	ModePhoto,
	ModeSignOut,
	ModeEmployeeLogin,
	ModeEmployeeDashboard,
	ModeSuccess,
}

// Valid reports whether m is one of the enumerated modes.
func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// Action names a transition trigger in the session state machine.
type Action string

const (
	ActionUnlock         Action = "unlock"
	ActionChooseSignIn   Action = "choose-sign-in"
	ActionChooseBooking  Action = "choose-booking"
	ActionChooseSignOut  Action = "choose-sign-out"
	ActionChooseEmployee Action = "choose-employee-login"
	ActionAutoSignIn     Action = "auto-sign-in"
	ActionStartTraining  Action = "start-training"
	ActionSkipTraining   Action = "skip-training"
	ActionPassTraining   Action = "pass-training"
	ActionCommit         Action = "commit"
	ActionSignOutDone    Action = "sign-out-done"
	ActionEmployeeAuthed Action = "employee-authenticated"
	ActionEmployeeLeave  Action = "employee-sign-out"
	ActionFinish         Action = "finish"
	ActionBack           Action = "back"
	ActionReset          Action = "reset"
)
