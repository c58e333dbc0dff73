package indicator

import (
	"os"
	"strings"
)

type locale string

const (
	localeEnglish locale = "en"
)

type messages struct {
	connecting      string
	active          string
	stopped         string
	stoppedFeedback string
	errorText       string
	interviewer     string
	candidate       string
}

func indicatorMessagesFromEnv() messages {
	return indicatorMessages(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "en") {
		return localeEnglish
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeEnglish:
		fallthrough
	default:
		return messages{
			connecting:      "Connecting…",
			active:          "Interview live",
			stopped:         "Interview ended",
			stoppedFeedback: "Interview ended; feedback available",
			errorText:       "Interview error",
			interviewer:     "Interviewer",
			candidate:       "You",
		}
	}
}
