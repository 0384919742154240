package model

import "time"

// MediaType identifies the kind of catalog item.  Electronic media has
// a shorter loan duration than printed media.
type MediaType string

const (
	MediaBook       MediaType = "BOOK"
	MediaMagazine   MediaType = "MAGAZINE"
	MediaElectronic MediaType = "ELECTRONIC"
)

// ValidMediaType reports whether m is one of the known media types.
func ValidMediaType(m MediaType) bool {
	switch m {
	case MediaBook, MediaMagazine, MediaElectronic:
		return true
	}
	return false
}

// CopyStatus is the availability state of a single loanable copy.
type CopyStatus string

const (
	CopyAvailable   CopyStatus = "AVAILABLE"
	CopyOnLoan      CopyStatus = "ON_LOAN"
	CopyReserved    CopyStatus = "RESERVED"
	CopyMaintenance CopyStatus = "MAINTENANCE"
)

// Copy is one physical/loanable unit of a catalog item.  A copy has at
// most one active loan at a time; its status tracks where it sits in
// the borrow/reserve lifecycle.
type Copy struct {
	ID        int64      `json:"id"`
	ItemID    int64      `json:"item_id"`
	Status    CopyStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// CatalogItem represents a title in the catalog together with its
// copies.  Copies are ordered by ID so that copy selection is
// deterministic.
//
// Fields:
//  ID        – primary key identifier.
//  Title     – title of the work.
//  Author    – author or publisher.
//  MediaType – BOOK, MAGAZINE or ELECTRONIC.
//  Copies    – the loanable units of this title.
//  CreatedAt – cataloging timestamp.
type CatalogItem struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	MediaType MediaType `json:"media_type"`
	Copies    []Copy    `json:"copies,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}