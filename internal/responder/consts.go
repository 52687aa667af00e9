package responder

const (
	hl7Namespace    = "urn:hl7-org:v3"
	ebRIMNamespace  = "urn:oasis:names:tc:ebxml-regrep:xsd:rim:3.0"
	ebQueryNamespace = "urn:oasis:names:tc:ebxml-regrep:xsd:query:3.0"

	loincSystemOID            = "2.16.840.1.113883.6.1"
	confidentialityCodeSystem = "2.16.840.1.113883.5.25"
	// Scheme UUIDs match internal/xca's so a response this package renders
	// round-trips through xca.ParseITI38Response, per spec §8.
	patientIDSchemeUUID  = "urn:uuid:58a6f841-87b3-4a3e-92fd-a8ffeff98427"
	documentIDSchemeUUID = "urn:uuid:2e82c1f6-a085-4c72-9da3-8640a32e42ab"
	statusApproved       = "urn:oasis:names:tc:ebxml-regrep:StatusType:Approved"
)
