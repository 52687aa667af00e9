// Package model holds the data types shared across the federation pipeline:
// the demographic search key, the caller's SAML identity claims, directory
// entries, and the per-pipeline/per-search execution records.
package model

import "strings"

// AdministrativeGender is the HL7 v3 administrative gender code.
type AdministrativeGender string

const (
	GenderMale    AdministrativeGender = "M"
	GenderFemale  AdministrativeGender = "F"
	GenderUnknown AdministrativeGender = "U"
)

// PatientMetadata is the demographic search key used to drive ITI-55 and the
// record parsed back out of a matched registrationEvent. Required by ITI-55:
// GivenName, FamilyName, BirthTime. Once parsed from a remote response the
// value is never mutated again — construct a new one instead of editing in
// place.
type PatientMetadata struct {
	GivenName         string
	FamilyName        string
	AdministrativeGenderCode AdministrativeGender
	BirthTime         string // normalised YYYY-MM-DD
	PhoneNumber       string
	StreetAddressLine string
	City              string
	State             string
	PostalCode        string
	Country           string
	Email             string
}

// HasAddress reports whether any address field is populated.
func (p PatientMetadata) HasAddress() bool {
	return p.StreetAddressLine != "" || p.City != "" || p.State != "" ||
		p.PostalCode != "" || p.Country != ""
}

// HasTelecom reports whether a phone number or email is populated.
func (p PatientMetadata) HasTelecom() bool {
	return p.PhoneNumber != "" || p.Email != ""
}

// UserQualifications are the caller's SAML identity claims. All fields are
// required before any outbound request is built — absence is a fatal
// precondition error, never silently defaulted.
type UserQualifications struct {
	SubjectName  string
	Organization string
	NPI          string
	OrgHCID      string
	UserID       string
}

// Validate returns an error naming the first missing required field.
func (u UserQualifications) Validate() error {
	switch {
	case u.SubjectName == "":
		return errMissingQualification("subject_name")
	case u.Organization == "":
		return errMissingQualification("organization")
	case u.NPI == "":
		return errMissingQualification("npi")
	case u.OrgHCID == "":
		return errMissingQualification("org_hcid")
	case u.UserID == "":
		return errMissingQualification("user_id")
	}
	return nil
}

type missingQualificationError string

func (e missingQualificationError) Error() string {
	return "missing required user qualification: " + string(e)
}

func errMissingQualification(field string) error {
	return missingQualificationError(field)
}

// ResponderEndpoint is a directory entry describing a remote gateway.
type ResponderEndpoint struct {
	OID            string // HCID, stripped of any urn:oid: prefix
	Name           string
	ITI55Responder string
	ITI38Responder string
	ITI39Responder string
	ZipCode        string
	Longitude      float64
	Latitude       float64
	Address        string
	CountryCode    string
	PartOf         string // parent OID
	ManagingOrg    string
	Status         bool
}

// Valid reports whether all three responder URLs use http(s) and the
// endpoint is active, per spec §3's ResponderEndpoint invariant.
func (e ResponderEndpoint) Valid() bool {
	if !e.Status {
		return false
	}
	return isHTTPURL(e.ITI55Responder) && isHTTPURL(e.ITI38Responder) && isHTTPURL(e.ITI39Responder)
}

func isHTTPURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// StripOIDPrefix removes a leading "urn:oid:" from an OID string, if present.
func StripOIDPrefix(oid string) string {
	return strings.TrimPrefix(oid, "urn:oid:")
}

// DirectoryOrganization is a raw directory record enriched with part_of,
// managing_org, and status derived from an HL7 FHIR Organization resource.
type DirectoryOrganization struct {
	ResponderEndpoint
	ResourceType string
}

// PatientDocID is one (pid, doc_id, rid, type, replacement_hcid) tuple
// extracted from an ITI-38 response, per spec §4.4.
type PatientDocID struct {
	PID             string
	DocID           string
	RID             string
	DocType         string
	ReplacementHCID string
}

// PatientID is a (root, extension) identifier pair extracted from an ITI-55
// response, per spec §4.3.
type PatientID struct {
	Root      string
	Extension string
}
