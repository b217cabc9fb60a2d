package timeout

import "github.com/agencyhub/portal/internal/view"

// Endpoints used by the countdown dialog script.
const (
	StatusURL   = "/session/timeout"
	StreamURL   = "/session/timeout/ws"
	ExtendURL   = "/session/extend"
	ActivityURL = "/session/activity"
)

// NewDialog builds the countdown dialog view model. The dialog is open exactly
// while the warning is shown, and its only action is extending the session.
func NewDialog(st State) view.SessionDialog {
	return view.SessionDialog{
		Open:             st.WarningShown,
		RemainingSeconds: st.RemainingSeconds,
		ExtendURL:        ExtendURL,
		StatusURL:        StatusURL,
		StreamURL:        StreamURL,
		ActivityURL:      ActivityURL,
	}
}
