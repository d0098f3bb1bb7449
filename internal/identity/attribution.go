package identity

import (
	"context"
	"errors"
	"fmt"
)

// Attribution ties an inbound number to a church and, within it, to at most
// one member or visitor. The zero value means unattributed.
type Attribution struct {
	ChurchID  string `json:"churchId,omitempty"`
	MemberID  string `json:"memberId,omitempty"`
	VisitorID string `json:"visitorId,omitempty"`
}

type Kind string

const (
	KindNone    Kind = "none"
	KindChurch  Kind = "church"
	KindMember  Kind = "member"
	KindVisitor Kind = "visitor"
)

var (
	ErrConflictingIdentity = errors.New("identity: member and visitor are mutually exclusive")
	ErrForeignIdentity     = errors.New("identity: member or visitor does not belong to church")
)

func (a Attribution) Attributed() bool { return a.ChurchID != "" }

func (a Attribution) Kind() Kind {
	switch {
	case a.ChurchID == "":
		return KindNone
	case a.MemberID != "":
		return KindMember
	case a.VisitorID != "":
		return KindVisitor
	default:
		return KindChurch
	}
}

func (a Attribution) Validate() error {
	if a.MemberID != "" && a.VisitorID != "" {
		return ErrConflictingIdentity
	}
	return nil
}

// Directory is the read side of the document store that resolution needs.
//
// Phones passed to FindMemberByPhone/FindVisitorByPhone are in local form
// (see phone.Local). LatestMessageTo takes the normalized form.
type Directory interface {
	// ListChurchIDs returns every tenant in registration order.
	ListChurchIDs(ctx context.Context) ([]string, error)
	FindMemberByPhone(ctx context.Context, churchID, localPhone string) (memberID string, ok bool, err error)
	FindVisitorByPhone(ctx context.Context, churchID, localPhone string) (visitorID string, ok bool, err error)
	// LatestMessageTo returns the attribution of the newest global message
	// addressed to the given number.
	LatestMessageTo(ctx context.Context, normalizedPhone string) (Attribution, bool, error)
}

// Versioner reports a counter that moves whenever any church, member or
// visitor row changes.
type Versioner interface {
	DirectoryVersion(ctx context.Context) (int64, error)
}

// Roster confirms that a member or visitor id belongs to a church.
type Roster interface {
	HasMember(ctx context.Context, churchID, memberID string) (bool, error)
	HasVisitor(ctx context.Context, churchID, visitorID string) (bool, error)
}

// CheckRoster returns ErrForeignIdentity when a names a member or visitor
// that is not in a.ChurchID. Church-only attributions pass.
func CheckRoster(ctx context.Context, r Roster, a Attribution) error {
	if a.ChurchID == "" {
		return nil
	}
	var (
		ok  = true
		err error
	)
	switch {
	case a.MemberID != "":
		ok, err = r.HasMember(ctx, a.ChurchID, a.MemberID)
	case a.VisitorID != "":
		ok, err = r.HasVisitor(ctx, a.ChurchID, a.VisitorID)
	}
	if err != nil {
		return fmt.Errorf("identity: roster lookup: %w", err)
	}
	if !ok {
		return ErrForeignIdentity
	}
	return nil
}

// Resolver maps a normalized phone to an attribution.
type Resolver interface {
	Resolve(ctx context.Context, normalizedPhone string) (Attribution, error)
}
