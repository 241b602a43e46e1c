package onboard

import "strings"

// Control ids embed the action kind and the target member so a click can
// be routed and authorized without any lookup:
//
//	greet:choice:<memberID>:<label>
//	greet:next:<memberID>
//	greet:confirm:<memberID>
const controlPrefix = "greet"

const (
	KindChoice  = "choice"
	KindNext    = "next"
	KindConfirm = "confirm"
)

type Control struct {
	Kind     string
	MemberID string
	Label    string
}

func ChoiceControlID(memberID, label string) string {
	return controlPrefix + ":" + KindChoice + ":" + memberID + ":" + label
}

func NextControlID(memberID string) string {
	return controlPrefix + ":" + KindNext + ":" + memberID
}

func ConfirmControlID(memberID string) string {
	return controlPrefix + ":" + KindConfirm + ":" + memberID
}

// ParseControlID decodes a control id. ok=false means the control does
// not belong to this bot and should be ignored.
func ParseControlID(id string) (Control, bool) {
	parts := strings.SplitN(strings.TrimSpace(id), ":", 4)
	if len(parts) < 3 || parts[0] != controlPrefix {
		return Control{}, false
	}

	c := Control{Kind: parts[1], MemberID: parts[2]}
	if strings.TrimSpace(c.MemberID) == "" {
		return Control{}, false
	}

	switch c.Kind {
	case KindChoice:
		if len(parts) < 4 || strings.TrimSpace(parts[3]) == "" {
			return Control{}, false
		}
		c.Label = parts[3]
		return c, true
	case KindNext, KindConfirm:
		if len(parts) > 3 {
			return Control{}, false
		}
		return c, true
	default:
		return Control{}, false
	}
}
