package domain

import "time"

// CibaGrantStatus is the lifecycle state of a backchannel authentication
// transaction.
type CibaGrantStatus string

const (
	CibaGrantStatusPending    CibaGrantStatus = "PENDING"
	CibaGrantStatusAuthorized CibaGrantStatus = "AUTHORIZED"
	CibaGrantStatusDenied     CibaGrantStatus = "DENIED"
	CibaGrantStatusExpired    CibaGrantStatus = "EXPIRED"
	CibaGrantStatusConsumed   CibaGrantStatus = "CONSUMED"
)

// CibaNotificationMode is the client's registered token delivery mode.
type CibaNotificationMode string

const (
	CibaModePoll CibaNotificationMode = "poll"
	CibaModePing CibaNotificationMode = "ping"
	CibaModePush CibaNotificationMode = "push"
)

// CibaGrant represents one backchannel authentication transaction, created at
// backchannel-authentication-request time, mutated by the authorize/deny
// interaction and consumed exactly once by a token exchange.
type CibaGrant struct {
	AuthReqID               string                `bson:"_id" json:"auth_req_id"`
	Issuer                  string                `bson:"issuer" json:"issuer"`
	ClientID                string                `bson:"client_id" json:"client_id"`
	Status                  CibaGrantStatus       `bson:"status" json:"status"`
	UserID                  string                `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Scope                   string                `bson:"scope" json:"scope"`
	Claims                  string                `bson:"claims,omitempty" json:"claims,omitempty"`
	BindingMessage          string                `bson:"binding_message,omitempty" json:"binding_message,omitempty"`
	AuthorizationDetails    []AuthorizationDetail `bson:"authorization_details,omitempty" json:"authorization_details,omitempty"`
	ClientNotificationToken string                `bson:"client_notification_token,omitempty" json:"client_notification_token,omitempty"`
	NotificationMode        CibaNotificationMode  `bson:"notification_mode,omitempty" json:"notification_mode,omitempty"`
	AuthenticationEvidence  map[string]string     `bson:"authentication_evidence,omitempty" json:"authentication_evidence,omitempty"`
	Interval                int                   `bson:"interval" json:"interval"`
	ExpiresAt               time.Time             `bson:"expires_at" json:"expires_at"`
	LastPolledAt            time.Time             `bson:"last_polled_at,omitempty" json:"last_polled_at,omitempty"`
	CreatedAt               time.Time             `bson:"created_at" json:"created_at"`
}

// Expired reports whether the transaction has passed its configured expiry.
func (g *CibaGrant) Expired(now time.Time) bool {
	return now.After(g.ExpiresAt)
}

// PolledTooFast reports whether a poll at now violates the declared minimum
// inter-poll interval.
func (g *CibaGrant) PolledTooFast(now time.Time) bool {
	if g.LastPolledAt.IsZero() {
		return false
	}
	return now.Before(g.LastPolledAt.Add(time.Duration(g.Interval) * time.Second))
}
