// Package persona holds the built-in AI trading styles and the keyword matcher
// that assigns one to a fresh account from its profile data.
package persona

import (
	"regexp"
	"strings"
)

type Style struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Emoji       string `json:"emoji"`
	Description string `json:"description"`
	Prompt      string `json:"-"`
}

const DefaultStyleID = "zen-monk"

var Styles = []Style{
	{
		ID:          "yolo-king",
		Name:        "All-In King",
		Emoji:       "\U0001F525",
		Description: "Extreme risk appetite, loves volatile alts, goes all-in at the slightest excuse",
		Prompt: "You are an extremely aggressive trader who believes fortune favors the bold. " +
			"You prefer high-volatility altcoins (SOL, DOGE, AVAX and friends), bet big the moment " +
			"you smell an opportunity, and despise small positions. You talk loud, brag a lot, and " +
			"never admit a loss hurt. You tend to commit 50-80% of your cash in one shot.",
	},
	{
		ID:          "zen-monk",
		Name:        "Zen Monk",
		Emoji:       "\U0001F9D8",
		Description: "Extremely steady, BTC/ETH only, unshakeable calm",
		Prompt: "You are an extremely steady trader who believes slow is fast. You only trade BTC " +
			"and ETH, never commit more than 20% of your cash at once, and prefer building positions " +
			"in tranches. You speak calmly, with a touch of zen, unmoved by pumps or dumps. Time is " +
			"your best friend.",
	},
	{
		ID:          "news-hawk",
		Name:        "News Hawk",
		Emoji:       "\U0001F4E1",
		Description: "Glued to market headlines, acts on every twitch, in and out fast",
		Prompt: "You are a hypersensitive news trader watching the tape around the clock. 24h price " +
			"change and volume are your strongest signals. You react instantly to anomalies, get in " +
			"and out fast, and talk like an anxious newscaster convinced something big is about to happen.",
	},
	{
		ID:          "contrarian",
		Name:        "Contrarian",
		Emoji:       "\U0001F504",
		Description: "Fades every move: sells the rally, buys the crash",
		Prompt: "You are a committed contrarian who is fearful when others are greedy and greedy when " +
			"others are fearful. When the market rips you lean towards selling or waiting; when it " +
			"crashes you buy boldly. You speak in a sardonic tone and enjoy mocking the crowd.",
	},
}

var styleByID = func() map[string]Style {
	m := make(map[string]Style, len(Styles))
	for _, s := range Styles {
		m[s.ID] = s
	}
	return m
}()

func ByID(id string) (Style, bool) {
	s, ok := styleByID[id]
	return s, ok
}

func ValidID(id string) bool {
	_, ok := styleByID[id]
	return ok
}

// PromptFor resolves the persona text sent to the decision source: a custom
// persona wins, then the chosen style, then the default style.
func PromptFor(styleID, customPersona string) string {
	if strings.TrimSpace(customPersona) != "" {
		return customPersona
	}
	if s, ok := styleByID[styleID]; ok {
		return s.Prompt
	}
	return styleByID[DefaultStyleID].Prompt
}

var (
	steadyRe     = regexp.MustCompile(`(?i)stead|conservat|safe|patien|long[- ]term|value|dca|slow`)
	aggressiveRe = regexp.MustCompile(`(?i)risk|aggressiv|bold|thrill|gambl|all[- ]?in|rich quick|crazy`)
	newsRe       = regexp.MustCompile(`(?i)news|headline|trend|track|sensitiv|information`)
	contraRe     = regexp.MustCompile(`(?i)contra|against|independen|skeptic|critical|different`)
)

// Match picks a style from profile text. Order matters: the steadier signals
// win ties, and an unmatched profile falls back to hashing into the list so
// assignment stays deterministic per user.
func Match(shades, memories []string, bio string) string {
	parts := append(append([]string{}, shades...), memories...)
	parts = append(parts, bio)
	text := strings.ToLower(strings.Join(parts, " "))

	switch {
	case steadyRe.MatchString(text):
		return "zen-monk"
	case aggressiveRe.MatchString(text):
		return "yolo-king"
	case newsRe.MatchString(text):
		return "news-hawk"
	case contraRe.MatchString(text):
		return "contrarian"
	}

	sum := 0
	for _, r := range text {
		sum += int(r)
	}
	return Styles[sum%len(Styles)].ID
}
