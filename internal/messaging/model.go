package messaging

import (
	"errors"
	"time"

	"church-messaging/internal/identity"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Message is one SMS exchange. Body and Text carry the same content; older
// readers use "message", newer ones "body".
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Body      string    `json:"body"`
	Text      string    `json:"message"`
	Direction Direction `json:"direction"`
	Status    string    `json:"status"`
	SentAt    time.Time `json:"sentAt"`
	Timestamp time.Time `json:"timestamp"`

	ChurchID  string `json:"churchId,omitempty"`
	MemberID  string `json:"memberId,omitempty"`
	VisitorID string `json:"visitorId,omitempty"`
	TwilioSID string `json:"twilioSid,omitempty"`
	IsRead    bool   `json:"isRead"`

	// Outbound only.
	SenderID        string `json:"senderId,omitempty"`
	MemberName      string `json:"memberName,omitempty"`
	VisitorName     string `json:"visitorName,omitempty"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

var (
	ErrConflictingIdentity = errors.New("messaging: message cannot have both memberId and visitorId")
	ErrDuplicateSID        = errors.New("messaging: twilio sid already stored")
	ErrNotFound            = errors.New("messaging: not found")
	ErrInvalidRequest      = errors.New("messaging: invalid request")
	ErrProviderFailed      = errors.New("messaging: sms provider failed")
	ErrSyncBusy            = errors.New("messaging: too many syncs in progress for church")
)

// SetText writes both body fields.
func (m *Message) SetText(s string) {
	m.Body = s
	m.Text = s
}

// Content returns whichever body field is populated.
func (m Message) Content() string {
	if m.Body != "" {
		return m.Body
	}
	return m.Text
}

func (m Message) Attribution() identity.Attribution {
	return identity.Attribution{ChurchID: m.ChurchID, MemberID: m.MemberID, VisitorID: m.VisitorID}
}

func (m *Message) Attribute(a identity.Attribution) {
	m.ChurchID = a.ChurchID
	m.MemberID = a.MemberID
	m.VisitorID = a.VisitorID
}

func (m Message) Validate() error {
	if m.MemberID != "" && m.VisitorID != "" {
		return ErrConflictingIdentity
	}
	if m.Direction != DirectionInbound && m.Direction != DirectionOutbound {
		return errors.New("messaging: unknown direction")
	}
	return nil
}

// Collection is a document-store path that holds messages.
type Collection string

const GlobalMessages Collection = "messages"

func ChurchMessages(churchID string) Collection {
	return Collection("churches/" + churchID + "/messages")
}

func VisitorMessages(churchID string) Collection {
	return Collection("churches/" + churchID + "/visitorMessages")
}

func MemberMessages(memberID string) Collection {
	return Collection("users/" + memberID + "/messages")
}

// CopyCollections lists the tenant-scoped collections a message is copied
// into besides the global one.
func CopyCollections(m Message) []Collection {
	switch {
	case m.ChurchID == "":
		return nil
	case m.VisitorID != "":
		return []Collection{VisitorMessages(m.ChurchID)}
	case m.MemberID != "" && m.Direction == DirectionInbound:
		return []Collection{ChurchMessages(m.ChurchID), MemberMessages(m.MemberID)}
	default:
		return []Collection{ChurchMessages(m.ChurchID)}
	}
}

// UnreadCollection is where unread messages for an identity are counted.
func UnreadCollection(a identity.Attribution) Collection {
	if a.VisitorID != "" {
		return VisitorMessages(a.ChurchID)
	}
	return ChurchMessages(a.ChurchID)
}

// Audience selects one of a church's two unread counter documents.
type Audience string

const (
	AudienceMembers  Audience = "members"
	AudienceVisitors Audience = "visitors"
)

func ParseAudience(s string) (Audience, error) {
	switch Audience(s) {
	case AudienceMembers, AudienceVisitors:
		return Audience(s), nil
	default:
		return "", ErrInvalidRequest
	}
}

// CounterPath is the document path of a church's counter map.
func CounterPath(churchID string, a Audience) string {
	return "churches/" + churchID + "/adminConnect/" + string(a)
}
