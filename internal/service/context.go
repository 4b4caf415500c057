package service

import (
	"strings"
	"time"
)

// RequestContext carries who is acting and with which credential. It is
// passed explicitly into every operation.
type RequestContext struct {
	Actor      string
	Credential string
	ClientTime *time.Time
}

func (rc RequestContext) actor() (string, error) {
	actor := strings.TrimSpace(rc.Actor)
	if actor == "" {
		return "", invalidArgument("an actor name is required for changes")
	}
	return actor, nil
}
