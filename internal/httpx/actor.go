package httpx

import (
	"errors"
	"net/http"
	"strings"
)

type Role string

const (
	RoleBuyer  Role = "BUYER"
	RoleVendor Role = "VENDOR"
	RoleAdmin  Role = "ADMIN"
)

const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

var errUnauthenticated = errors.New("missing caller identity")

// Actor is the caller as established by the upstream auth layer.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) Operator() bool { return a.Role == RoleAdmin || a.Role == RoleVendor }

func actorFrom(r *http.Request) (Actor, error) {
	a := Actor{
		UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Role:   Role(strings.ToUpper(strings.TrimSpace(r.Header.Get(HeaderRole)))),
	}
	if a.UserID == "" {
		return a, errUnauthenticated
	}
	switch a.Role {
	case "":
		a.Role = RoleBuyer
	case RoleBuyer, RoleVendor, RoleAdmin:
	default:
		return a, errUnauthenticated
	}
	return a, nil
}
