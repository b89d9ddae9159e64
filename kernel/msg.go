// Package kernel defines the universal message envelope — Msg — and its
// three variants (Command, Query, Event), matching the arc-self platform's
// outbox envelope conventions (see the teacher's consumer.OutboxEvent) but
// generalized into a closed, typed kind instead of a free-form "type"
// string field.
package kernel

import (
	"time"

	"github.com/google/uuid"

	"github.com/arc-self/alchemist-core/alerr"
)

// MaxInlineDefault is the default MAX_INLINE payload size in bytes (1 MiB).
const MaxInlineDefault = 1 << 20

// Kind is the closed set of message variants. Code that branches on the
// variant compares Kind values (see eventlog.FileLog.Append), never a
// type switch over concrete payload types or reflection.
type Kind uint8

const (
	KindUnspecified Kind = iota
	KindCommand
	KindQuery
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "Command"
	case KindQuery:
		return "Query"
	case KindEvent:
		return "Event"
	default:
		return "Unspecified"
	}
}

// Payload is either an inline byte sequence (len <= MaxInline) or a
// content identifier referencing the content store. Exactly one of Inline
// or CID is set.
type Payload struct {
	Inline []byte
	CID    *Cid
}

// IsRef reports whether the payload was externalized to the content store.
func (p Payload) IsRef() bool { return p.CID != nil }

// Msg is the universal envelope described in spec.md §3. All fields are
// immutable once constructed — Build* functions are the only way to
// produce a valid Msg, and they validate every invariant at construction
// time so that publish-time validation never has to reject a message for
// a reason construction should already have caught (kind/payload
// agreement is the caller's responsibility via BuildCommand/BuildQuery/
// BuildEvent; subject/owner/size are checked here).
type Msg struct {
	ID            uuid.UUID
	CorrelationID uuid.UUID // uuid.Nil if absent
	CausationID   uuid.UUID // uuid.Nil if absent
	OwnerID       uuid.UUID
	Subject       Subject
	Kind          Kind
	Payload       Payload
	Timestamp     time.Time
}

// Subject is the four-token dotted subject enforced at construction: no
// wildcards are ever legal on a published Msg (spec.md §3 invariant iii).
// The full wildcard-aware pattern algebra lives in package subject; Msg
// only needs the exact-subject half of it, kept local to avoid a kernel →
// subject import cycle (package subject imports kernel for
// kernel.Subject, not the other way around).
type Subject [4]string

func (s Subject) String() string {
	return s[0] + "." + s[1] + "." + s[2] + "." + s[3]
}

// Options carries the optional correlation/causation ids shared by every
// Build* constructor.
type Options struct {
	Correlation uuid.UUID
	Causation   uuid.UUID
	// MaxInline overrides MaxInlineDefault; zero means "use the default".
	MaxInline int
}

func (o Options) maxInline() int {
	if o.MaxInline > 0 {
		return o.MaxInline
	}
	return MaxInlineDefault
}

// BuildCommand constructs a Command Msg. Payload describes the intended
// state change.
func BuildCommand(subject Subject, inline []byte, owner uuid.UUID, opts Options) (Msg, error) {
	return build(KindCommand, subject, inline, owner, opts)
}

// BuildQuery constructs a Query Msg. Payload describes an observation
// request.
func BuildQuery(subject Subject, inline []byte, owner uuid.UUID, opts Options) (Msg, error) {
	return build(KindQuery, subject, inline, owner, opts)
}

// BuildEvent constructs an Event Msg. Payload describes a past fact.
func BuildEvent(subject Subject, inline []byte, owner uuid.UUID, opts Options) (Msg, error) {
	return build(KindEvent, subject, inline, owner, opts)
}

// BuildEventWithCID constructs an Event Msg whose payload has already been
// externalized to the content store (the caller put() the bytes first).
func BuildEventWithCID(subject Subject, cid Cid, owner uuid.UUID, opts Options) (Msg, error) {
	if err := validateSubject(subject); err != nil {
		return Msg{}, err
	}
	if owner == uuid.Nil {
		return Msg{}, alerr.New(alerr.KindMissingOwner, "kernel.BuildEventWithCID")
	}
	return Msg{
		ID:            uuid.New(),
		CorrelationID: opts.Correlation,
		CausationID:   opts.Causation,
		OwnerID:       owner,
		Subject:       subject,
		Kind:          KindEvent,
		Payload:       Payload{CID: &cid},
		Timestamp:     time.Now().UTC(),
	}, nil
}

func build(kind Kind, subject Subject, inline []byte, owner uuid.UUID, opts Options) (Msg, error) {
	if err := validateSubject(subject); err != nil {
		return Msg{}, err
	}
	if owner == uuid.Nil {
		return Msg{}, alerr.New(alerr.KindMissingOwner, "kernel.build")
	}
	if len(inline) > opts.maxInline() {
		return Msg{}, alerr.New(alerr.KindPayloadTooLarge, "kernel.build")
	}
	return Msg{
		ID:            uuid.New(),
		CorrelationID: opts.Correlation,
		CausationID:   opts.Causation,
		OwnerID:       owner,
		Subject:       subject,
		Kind:          kind,
		Payload:       Payload{Inline: inline},
		Timestamp:     time.Now().UTC(),
	}, nil
}

// validateSubject enforces the exactly-four-tokens, no-wildcard-at-publish
// rule from spec.md §3 invariant (iii) and §6's subject grammar.
func validateSubject(s Subject) error {
	for _, tok := range s {
		if tok == "" {
			return alerr.New(alerr.KindInvalidSubject, "kernel.validateSubject")
		}
		if tok == "*" || tok == ">" {
			return alerr.New(alerr.KindInvalidSubject, "kernel.validateSubject")
		}
		for _, r := range tok {
			if !isSubjectRune(r) {
				return alerr.New(alerr.KindInvalidSubject, "kernel.validateSubject")
			}
		}
	}
	return nil
}

func isSubjectRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		return true
	default:
		return false
	}
}

// ParseSubject splits a dotted "context.aggregate.event.version" string
// into a Subject, validating the four-token/no-wildcard grammar.
func ParseSubject(s string) (Subject, error) {
	var out Subject
	n := 0
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '.' {
			if n >= 4 {
				return Subject{}, alerr.New(alerr.KindInvalidSubject, "kernel.ParseSubject")
			}
			out[n] = s[start:i]
			n++
			start = i + 1
		}
	}
	if n != 4 {
		return Subject{}, alerr.New(alerr.KindInvalidSubject, "kernel.ParseSubject")
	}
	if err := validateSubject(out); err != nil {
		return Subject{}, err
	}
	return out, nil
}
