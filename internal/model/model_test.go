package model

import "testing"

func TestPatientMetadataHasAddress(t *testing.T) {
	if (PatientMetadata{}).HasAddress() {
		t.Fatal("empty metadata should not report an address")
	}
	if !(PatientMetadata{City: "Springfield"}).HasAddress() {
		t.Fatal("a populated City should count as an address")
	}
}

func TestPatientMetadataHasTelecom(t *testing.T) {
	if (PatientMetadata{}).HasTelecom() {
		t.Fatal("empty metadata should not report telecom")
	}
	if !(PatientMetadata{Email: "a@b.com"}).HasTelecom() {
		t.Fatal("a populated Email should count as telecom")
	}
	if !(PatientMetadata{PhoneNumber: "555-0100"}).HasTelecom() {
		t.Fatal("a populated PhoneNumber should count as telecom")
	}
}

func TestUserQualificationsValidate(t *testing.T) {
	full := UserQualifications{
		SubjectName:  "Jane Doe",
		Organization: "Example Health",
		NPI:          "1234567890",
		OrgHCID:      "2.16.840.1",
		UserID:       "jdoe",
	}
	if err := full.Validate(); err != nil {
		t.Fatalf("fully populated qualifications should validate: %v", err)
	}

	cases := []struct {
		name string
		mut  func(*UserQualifications)
	}{
		{"subject_name", func(u *UserQualifications) { u.SubjectName = "" }},
		{"organization", func(u *UserQualifications) { u.Organization = "" }},
		{"npi", func(u *UserQualifications) { u.NPI = "" }},
		{"org_hcid", func(u *UserQualifications) { u.OrgHCID = "" }},
		{"user_id", func(u *UserQualifications) { u.UserID = "" }},
	}
	for _, c := range cases {
		q := full
		c.mut(&q)
		if err := q.Validate(); err == nil {
			t.Fatalf("missing %s should fail validation", c.name)
		}
	}
}

func TestResponderEndpointValid(t *testing.T) {
	active := ResponderEndpoint{
		Status:         true,
		ITI55Responder: "https://gw.example/iti55",
		ITI38Responder: "https://gw.example/iti38",
		ITI39Responder: "https://gw.example/iti39",
	}
	if !active.Valid() {
		t.Fatal("endpoint with three http(s) URLs and Status true should be valid")
	}

	inactive := active
	inactive.Status = false
	if inactive.Valid() {
		t.Fatal("an inactive endpoint should never be valid")
	}

	badURL := active
	badURL.ITI39Responder = "ftp://gw.example/iti39"
	if badURL.Valid() {
		t.Fatal("a non-http(s) responder URL should invalidate the endpoint")
	}
}

func TestStripOIDPrefix(t *testing.T) {
	if got := StripOIDPrefix("urn:oid:2.16.840.1"); got != "2.16.840.1" {
		t.Fatalf("expected prefix stripped, got %q", got)
	}
	if got := StripOIDPrefix("2.16.840.1"); got != "2.16.840.1" {
		t.Fatalf("expected unprefixed OID unchanged, got %q", got)
	}
}
