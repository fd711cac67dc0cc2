package intent

import (
	"regexp"
	"strings"
)

// Rule matches normalized text. Rules are evaluated in order and the first
// match wins.
type Rule struct {
	Name  string
	Match func(text string) (Intent, bool)
}

var (
	playOnlinePattern = regexp.MustCompile(`^play (?:the )?(?P<query>.+?) (?:on|in|via) (?P<service>spotify|youtube|yt)$`)
	playPattern       = regexp.MustCompile(`^play (?:the )?(?P<query>.+)$`)
	launchPattern     = regexp.MustCompile(`^(?:open|start|launch|run) (?:the )?(?P<app>.+)$`)
	stopMediaPattern  = regexp.MustCompile(`\bstop (?:the )?(?:music|playback|song|video)\b`)
)

var terminationPhrases = map[string]bool{
	"quit":           true,
	"exit":           true,
	"stop":           true,
	"bye":            true,
	"goodbye":        true,
	"good bye":       true,
	"shut down":      true,
	"stop listening": true,
}

// DefaultRules is the command table in precedence order.
var DefaultRules = []Rule{
	{Name: "empty", Match: matchEmpty},
	{Name: "terminate", Match: matchTerminate},
	{Name: "media_control", Match: matchMediaControl},
	{Name: "play_online", Match: matchPlayOnline},
	{Name: "play_local", Match: matchPlayLocal},
	{Name: "launch_app", Match: matchLaunch},
	{Name: "system_query", Match: matchSystemQuery},
}

type Resolver struct {
	rules []Rule
}

func NewResolver(rules []Rule) *Resolver {
	if rules == nil {
		rules = DefaultRules
	}

	return &Resolver{rules: rules}
}

// Resolve always returns an intent. Text that no rule claims is Converse.
func (r *Resolver) Resolve(text string) Intent {
	normalized := Normalize(text)

	for _, rule := range r.rules {
		if in, ok := rule.Match(normalized); ok {
			return in
		}
	}

	// the model gets the words as they were said
	return Converse(strings.TrimSpace(text))
}

// Normalize lowercases text, collapses whitespace and drops trailing
// sentence punctuation.
func Normalize(text string) string {
	text = strings.ToLower(strings.Join(strings.Fields(text), " "))
	text = strings.TrimRight(text, ".?!,")

	return strings.TrimSpace(text)
}

func matchEmpty(text string) (Intent, bool) {
	if text == "" {
		return Converse(""), true
	}

	return Intent{}, false
}

func matchTerminate(text string) (Intent, bool) {
	if terminationPhrases[text] {
		return Terminate(), true
	}

	return Intent{}, false
}

func matchMediaControl(text string) (Intent, bool) {
	words := strings.Fields(text)

	for _, w := range words {
		switch strings.Trim(w, ",") {
		case "pause":
			return MediaControl(ControlPause), true
		case "resume", "unpause":
			return MediaControl(ControlResume), true
		}
	}

	if stopMediaPattern.MatchString(text) {
		return MediaControl(ControlStop), true
	}

	return Intent{}, false
}

func matchPlayOnline(text string) (Intent, bool) {
	m := playOnlinePattern.FindStringSubmatch(text)
	if m == nil {
		return Intent{}, false
	}

	service, _ := ParseService(m[playOnlinePattern.SubexpIndex("service")])

	return PlayOnline(m[playOnlinePattern.SubexpIndex("query")], service), true
}

func matchPlayLocal(text string) (Intent, bool) {
	m := playPattern.FindStringSubmatch(text)
	if m == nil {
		return Intent{}, false
	}

	return PlayLocal(m[playPattern.SubexpIndex("query")]), true
}

func matchLaunch(text string) (Intent, bool) {
	m := launchPattern.FindStringSubmatch(text)
	if m == nil {
		return Intent{}, false
	}

	return LaunchApp(m[launchPattern.SubexpIndex("app")]), true
}

func matchSystemQuery(text string) (Intent, bool) {
	has := func(words ...string) bool {
		for _, w := range words {
			if containsWord(text, w) {
				return true
			}
		}

		return false
	}

	switch {
	case has("time", "clock"):
		return SystemQuery(QueryTime), true
	case has("date", "day", "today"):
		return SystemQuery(QueryDate), true
	case has("battery", "charge"):
		return SystemQuery(QueryBattery), true
	case strings.Contains(text, "system info"), strings.Contains(text, "what system"),
		strings.Contains(text, "operating system"):
		return SystemQuery(QuerySystem), true
	}

	return Intent{}, false
}

func containsWord(text, word string) bool {
	for _, w := range strings.Fields(text) {
		if strings.Trim(w, ",'") == word {
			return true
		}
	}

	return false
}
