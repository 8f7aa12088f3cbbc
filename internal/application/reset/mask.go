package reset

import "strings"

const (
	maskChar    = "*"
	maskMinRun  = 3
	maskVisible = 2
)

// MaskEmail hides all but the first one or two characters of the local part.
// The domain stays readable. At least three mask characters are always shown
// so short local parts are not revealed by the mask length.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		at = len(email)
	}
	local := []rune(email[:at])
	keep := maskVisible
	if len(local) < keep {
		keep = len(local)
	}
	hidden := len(local) - keep
	if hidden < maskMinRun {
		hidden = maskMinRun
	}
	return string(local[:keep]) + strings.Repeat(maskChar, hidden) + email[at:]
}
