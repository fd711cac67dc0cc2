// Package intent classifies a transcribed or typed command into exactly one
// action variant.
package intent

type Kind string

const (
	KindLaunchApp    Kind = "launch_app"
	KindPlayLocal    Kind = "play_local"
	KindPlayOnline   Kind = "play_online"
	KindMediaControl Kind = "media_control"
	KindSystemQuery  Kind = "system_query"
	KindTerminate    Kind = "terminate"
	KindConverse     Kind = "converse"
)

type Service string

const (
	ServiceYouTube Service = "youtube"
	ServiceSpotify Service = "spotify"
)

type Control string

const (
	ControlPause  Control = "pause"
	ControlResume Control = "resume"
	ControlStop   Control = "stop"
)

type QueryKind string

const (
	QueryTime    QueryKind = "time"
	QueryDate    QueryKind = "date"
	QueryBattery QueryKind = "battery"
	QuerySystem  QueryKind = "system"
)

// Intent is a tagged value. Only the fields belonging to Kind are set.
type Intent struct {
	Kind Kind
	// Name is the application named by LaunchApp.
	Name string
	// Query is the media searched for by PlayLocal and PlayOnline.
	Query   string
	Service Service
	Control Control
	// Info is the subject of a SystemQuery.
	Info QueryKind
	// Text is the utterance passed to Converse.
	Text string
}

func LaunchApp(name string) Intent {
	return Intent{Kind: KindLaunchApp, Name: name}
}

func PlayLocal(query string) Intent {
	return Intent{Kind: KindPlayLocal, Query: query}
}

func PlayOnline(query string, service Service) Intent {
	return Intent{Kind: KindPlayOnline, Query: query, Service: service}
}

func MediaControl(control Control) Intent {
	return Intent{Kind: KindMediaControl, Control: control}
}

func SystemQuery(info QueryKind) Intent {
	return Intent{Kind: KindSystemQuery, Info: info}
}

func Terminate() Intent {
	return Intent{Kind: KindTerminate}
}

func Converse(text string) Intent {
	return Intent{Kind: KindConverse, Text: text}
}

// ParseService maps spoken service names to a Service. "yt" is YouTube.
func ParseService(s string) (Service, bool) {
	switch s {
	case "youtube", "yt":
		return ServiceYouTube, true
	case "spotify":
		return ServiceSpotify, true
	}

	return "", false
}
