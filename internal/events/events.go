// Package events defines the authorization domain events. Event is a tagged
// union: Kind selects exactly one non-nil payload field.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/odyssey-erp/retail-authz/internal/shared"
)

// Kind discriminates the Event union.
type Kind string

const (
	KindUserLoggedIn      Kind = "user.logged_in"
	KindUserLoginFailed   Kind = "user.login_failed"
	KindUserLoggedOut     Kind = "user.logged_out"
	KindSessionRefreshed  Kind = "user.session_refreshed"
	KindPermissionGranted Kind = "permission.granted"
	KindPermissionRevoked Kind = "permission.revoked"
)

// UserLoggedIn is emitted after a successful authentication.
type UserLoggedIn struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	ClientIP  string `json:"clientIp,omitempty"`
}

// UserLoginFailed is emitted for rejected credentials. Username is the
// submitted value and may not exist.
type UserLoginFailed struct {
	Username string `json:"username"`
	ClientIP string `json:"clientIp,omitempty"`
}

// UserLoggedOut is emitted when a session is revoked.
type UserLoggedOut struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// SessionRefreshed is emitted when a refresh token mints a new access token.
type SessionRefreshed struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Rotated   bool   `json:"rotated"`
}

// PermissionGranted is emitted for every created grant.
type PermissionGranted struct {
	GrantID    string     `json:"grantId"`
	MenuID     string     `json:"menuId"`
	TargetType string     `json:"targetType"`
	TargetID   string     `json:"targetId"`
	Permission string     `json:"permissionType"`
	GrantedBy  string     `json:"grantedBy"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// PermissionRevoked is emitted when a grant is deactivated.
type PermissionRevoked struct {
	GrantID   string `json:"grantId"`
	MenuID    string `json:"menuId"`
	RevokedBy string `json:"revokedBy"`
}

// Event is the tagged union of all domain events.
type Event struct {
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`

	LoggedIn    *UserLoggedIn      `json:"loggedIn,omitempty"`
	LoginFailed *UserLoginFailed   `json:"loginFailed,omitempty"`
	LoggedOut   *UserLoggedOut     `json:"loggedOut,omitempty"`
	Refreshed   *SessionRefreshed  `json:"refreshed,omitempty"`
	PermGranted *PermissionGranted `json:"permissionGranted,omitempty"`
	PermRevoked *PermissionRevoked `json:"permissionRevoked,omitempty"`
}

func NewUserLoggedIn(at time.Time, p UserLoggedIn) Event {
	return Event{Kind: KindUserLoggedIn, At: at.UTC(), LoggedIn: &p}
}

func NewUserLoginFailed(at time.Time, p UserLoginFailed) Event {
	return Event{Kind: KindUserLoginFailed, At: at.UTC(), LoginFailed: &p}
}

func NewUserLoggedOut(at time.Time, p UserLoggedOut) Event {
	return Event{Kind: KindUserLoggedOut, At: at.UTC(), LoggedOut: &p}
}

func NewSessionRefreshed(at time.Time, p SessionRefreshed) Event {
	return Event{Kind: KindSessionRefreshed, At: at.UTC(), Refreshed: &p}
}

func NewPermissionGranted(at time.Time, p PermissionGranted) Event {
	return Event{Kind: KindPermissionGranted, At: at.UTC(), PermGranted: &p}
}

func NewPermissionRevoked(at time.Time, p PermissionRevoked) Event {
	return Event{Kind: KindPermissionRevoked, At: at.UTC(), PermRevoked: &p}
}

// Validate checks that the payload matching Kind is the only one set.
func (e Event) Validate() error {
	set := 0
	for _, present := range []bool{
		e.LoggedIn != nil, e.LoginFailed != nil, e.LoggedOut != nil,
		e.Refreshed != nil, e.PermGranted != nil, e.PermRevoked != nil,
	} {
		if present {
			set++
		}
	}
	var matches bool
	switch e.Kind {
	case KindUserLoggedIn:
		matches = e.LoggedIn != nil
	case KindUserLoginFailed:
		matches = e.LoginFailed != nil
	case KindUserLoggedOut:
		matches = e.LoggedOut != nil
	case KindSessionRefreshed:
		matches = e.Refreshed != nil
	case KindPermissionGranted:
		matches = e.PermGranted != nil
	case KindPermissionRevoked:
		matches = e.PermRevoked != nil
	default:
		return fmt.Errorf("%w: unknown event kind %q", shared.ErrValidation, e.Kind)
	}
	if !matches || set != 1 {
		return fmt.Errorf("%w: event %s must carry exactly its own payload", shared.ErrValidation, e.Kind)
	}
	return nil
}

// AuditLog maps the event onto an audit record.
func (e Event) AuditLog() (shared.AuditLog, error) {
	if err := e.Validate(); err != nil {
		return shared.AuditLog{}, err
	}
	log := shared.AuditLog{Action: string(e.Kind), At: e.At}
	var payload any
	switch e.Kind {
	case KindUserLoggedIn:
		log.ActorID, log.Entity, log.EntityID = e.LoggedIn.UserID, "session", e.LoggedIn.SessionID
		payload = e.LoggedIn
	case KindUserLoginFailed:
		log.Entity, log.EntityID = "login", e.LoginFailed.Username
		payload = e.LoginFailed
	case KindUserLoggedOut:
		log.ActorID, log.Entity, log.EntityID = e.LoggedOut.UserID, "session", e.LoggedOut.SessionID
		payload = e.LoggedOut
	case KindSessionRefreshed:
		log.ActorID, log.Entity, log.EntityID = e.Refreshed.UserID, "session", e.Refreshed.SessionID
		payload = e.Refreshed
	case KindPermissionGranted:
		log.ActorID, log.Entity, log.EntityID = e.PermGranted.GrantedBy, "permission_grant", e.PermGranted.GrantID
		payload = e.PermGranted
	case KindPermissionRevoked:
		log.ActorID, log.Entity, log.EntityID = e.PermRevoked.RevokedBy, "permission_grant", e.PermRevoked.GrantID
		payload = e.PermRevoked
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return shared.AuditLog{}, err
	}
	if err := json.Unmarshal(raw, &log.Meta); err != nil {
		return shared.AuditLog{}, err
	}
	if log.EntityID == "" {
		log.EntityID = "-"
	}
	return log, nil
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder captures published events in memory.
type Recorder struct {
	Events []Event
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, evt Event) error {
	if err := evt.Validate(); err != nil {
		return err
	}
	r.Events = append(r.Events, evt)
	return nil
}

// Kinds lists the recorded event kinds in order.
func (r *Recorder) Kinds() []Kind {
	out := make([]Kind, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Kind)
	}
	return out
}
