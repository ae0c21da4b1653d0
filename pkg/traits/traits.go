// Package traits classifies Amazon pages into the structural roles that drive link discovery.
package traits

import "fmt"

// Kind is the structural role of a page
type Kind int

const (
	KindOther Kind = iota
	KindLabeledPortal
	KindItem
	KindPrimaryReview
	KindSecondaryReview
)

var kindNames = [...]string{
	KindOther:           "other",
	KindLabeledPortal:   "labeled_portal",
	KindItem:            "item",
	KindPrimaryReview:   "primary_review",
	KindSecondaryReview: "secondary_review",
}

// Kinds lists every kind, Other first
var Kinds = []Kind{KindOther, KindLabeledPortal, KindItem, KindPrimaryReview, KindSecondaryReview}

// String implements fmt.Stringer
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// PageTraits is the classification of one page. Values are created per page and never mutated.
type PageTraits struct {
	Kind            Kind
	PortalLabel     string // Catalog label, set for labeled portals only
	IsPrimaryPortal bool   // Non-paginated, unfiltered labeled portal
	ASIN            string // Product identifier for items and reviews
}

func (t PageTraits) IsLabeledPortal() bool   { return t.Kind == KindLabeledPortal }
func (t PageTraits) IsItem() bool            { return t.Kind == KindItem }
func (t PageTraits) IsPrimaryReview() bool   { return t.Kind == KindPrimaryReview }
func (t PageTraits) IsSecondaryReview() bool { return t.Kind == KindSecondaryReview }
func (t PageTraits) IsOther() bool           { return t.Kind == KindOther }

// String implements fmt.Stringer for logging
func (t PageTraits) String() string {
	switch t.Kind {
	case KindLabeledPortal:
		return fmt.Sprintf("%s(%s, primary=%v)", t.Kind, t.PortalLabel, t.IsPrimaryPortal)
	case KindItem, KindPrimaryReview, KindSecondaryReview:
		return fmt.Sprintf("%s(%s)", t.Kind, t.ASIN)
	case KindOther:
		return t.Kind.String()
	}
	return t.Kind.String()
}
