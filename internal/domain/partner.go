package domain

import "time"

// PartnerLink is the single partner relationship of a local installation.
// PartnerFileHandle is a cache of the partner's shared document and must be
// empty whenever Enabled is false.
type PartnerLink struct {
	Enabled           bool       `json:"enabled"`
	PartnerEmail      string     `json:"partnerEmail"`
	PartnerFileHandle string     `json:"partnerFileId,omitempty"`
	EnabledAt         *time.Time `json:"enabledAt,omitempty"`
}

// DefaultPartnerLink returns the settings of an installation with Partner Mode off.
func DefaultPartnerLink() PartnerLink {
	return PartnerLink{}
}

// Active reports whether Partner Mode is on and a partner is known.
func (p PartnerLink) Active() bool {
	return p.Enabled && p.PartnerEmail != ""
}
