package collab

import "log"

// Alerter surfaces a failure to the user.
type Alerter interface {
	Alert(title string, err error)
}

type AlertFunc func(title string, err error)

func (f AlertFunc) Alert(title string, err error) { f(title, err) }

type logAlerter struct{}

func (logAlerter) Alert(title string, err error) { log.Printf("%s: %v", title, err) }

var LogAlerter Alerter = logAlerter{}
