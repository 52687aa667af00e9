// Package xcpd builds and parses the ITI-55 Cross-Gateway Patient Discovery
// HL7 v3 PRPA_IN201305UV02 / PRPA_IN201306UV02 payloads, per spec §4.3.
package xcpd

import (
	"regexp"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/model"
)

const (
	hl7Namespace        = "urn:hl7-org:v3"
	interactionIDRoot   = "2.16.840.1.113883.1.6"
	queryIDRoot         = "61023518-3f6e-4ad5-a465-87082e96b66f"
	controlActCode      = "PRPA_TE201305UV02"
	nationalTimeout     = 45 * time.Second
	regionalTimeout     = 60 * time.Second
)

// RequestParams carries everything needed to build an ITI-55 request body.
type RequestParams struct {
	ResponderHCID string
	SenderHCID    string // this node's own HCID
	SenderOrgHCID string // user_qualifications.org_hcid
	Patient       model.PatientMetadata
	National      bool
}

// Timeout returns the per-spec §4.3 stage timeout: 45s national, 60s
// regional.
func (p RequestParams) Timeout() time.Duration {
	if p.National {
		return nationalTimeout
	}
	return regionalTimeout
}

// BuildRequest constructs the PRPA_IN201305UV02 body element described in
// spec §4.3: device identities, a queryByParameter carrying the required
// demographic parameters, and — for non-national searches with any address
// field set — a patientAddress parameter, plus an optional patientTelecom
// parameter when a phone or email is present.
func BuildRequest(p RequestParams) *etree.Element {
	root := etree.NewElement("PRPA_IN201305UV02")
	root.CreateAttr("xmlns", hl7Namespace)
	root.CreateAttr("ITSVersion", "XML_1.0")

	id := root.CreateElement("id")
	id.CreateAttr("root", uuid.NewString())
	id.CreateAttr("extension", "2211")

	creationTime := root.CreateElement("creationTime")
	creationTime.CreateAttr("value", time.Now().UTC().Format("20060102150405"))

	interactionID := root.CreateElement("interactionId")
	interactionID.CreateAttr("extension", "PRPA_IN201305UV02")
	interactionID.CreateAttr("root", interactionIDRoot)

	root.CreateElement("processingCode").CreateAttr("code", "P")
	root.CreateElement("processingModeCode").CreateAttr("code", "T")
	root.CreateElement("acceptAckCode").CreateAttr("code", "AL")

	receiver := root.CreateElement("receiver")
	receiver.CreateAttr("typeCode", "RCV")
	receiverDevice := receiver.CreateElement("device")
	receiverDevice.CreateAttr("classCode", "DEV")
	receiverDevice.CreateAttr("determinerCode", "INSTANCE")
	receiverDevice.CreateElement("id").CreateAttr("root", p.ResponderHCID)
	receiverAgent := receiverDevice.CreateElement("asAgent")
	receiverAgent.CreateAttr("classCode", "AGNT")
	receiverOrg := receiverAgent.CreateElement("representedOrganization")
	receiverOrg.CreateAttr("classCode", "ORG")
	receiverOrg.CreateAttr("determinerCode", "INSTANCE")
	receiverOrg.CreateElement("id").CreateAttr("root", p.ResponderHCID)

	sender := root.CreateElement("sender")
	sender.CreateAttr("typeCode", "SND")
	senderDevice := sender.CreateElement("device")
	senderDevice.CreateAttr("classCode", "DEV")
	senderDevice.CreateAttr("determinerCode", "INSTANCE")
	senderDevice.CreateElement("id").CreateAttr("root", p.SenderHCID)
	senderAgent := senderDevice.CreateElement("asAgent")
	senderAgent.CreateAttr("classCode", "AGNT")
	senderOrg := senderAgent.CreateElement("representedOrganization")
	senderOrg.CreateAttr("classCode", "ORG")
	senderOrg.CreateAttr("determinerCode", "INSTANCE")
	senderOrg.CreateElement("id").CreateAttr("root", p.SenderOrgHCID)

	controlActProcess := root.CreateElement("controlActProcess")
	controlActProcess.CreateAttr("classCode", "CACT")
	controlActProcess.CreateAttr("moodCode", "EVN")
	code := controlActProcess.CreateElement("code")
	code.CreateAttr("code", controlActCode)
	code.CreateAttr("codeSystemName", interactionIDRoot)
	author := controlActProcess.CreateElement("authorOrPerformer")
	author.CreateAttr("typeCode", "AUT")
	author.CreateElement("assignedPerson").CreateAttr("classCode", "ASSIGNED")

	queryByParameter := controlActProcess.CreateElement("queryByParameter")
	queryByParameter.CreateElement("queryId").CreateAttr("root", queryIDRoot)
	queryByParameter.CreateElement("statusCode").CreateAttr("code", "new")
	queryByParameter.CreateElement("responseModalityCode").CreateAttr("code", "R")
	queryByParameter.CreateElement("responsePriorityCode").CreateAttr("code", "I")
	queryByParameter.CreateElement("matchCriterionList")

	parameterList := queryByParameter.CreateElement("parameterList")
	addDemographicParameters(parameterList, p.Patient)
	if !p.National && p.Patient.HasAddress() {
		addAddressParameter(parameterList, p.Patient)
	}
	if p.Patient.HasTelecom() {
		addTelecomParameter(parameterList, p.Patient)
	}

	return root
}

func addDemographicParameters(parameterList *etree.Element, patient model.PatientMetadata) {
	gender := parameterList.CreateElement("livingSubjectAdministrativeGender")
	gender.CreateElement("value").CreateAttr("code", string(patient.AdministrativeGenderCode))
	gender.CreateElement("semanticsText").SetText("LivingSubject.AdministrativeGender")

	birthTime := parameterList.CreateElement("livingSubjectBirthTime")
	birthTime.CreateElement("value").CreateAttr("value", patient.BirthTime)
	birthTime.CreateElement("semanticsText").SetText("LivingSubject.birthTime")

	name := parameterList.CreateElement("livingSubjectName")
	nameValue := name.CreateElement("value")
	nameValue.CreateElement("family").SetText(patient.FamilyName)
	nameValue.CreateElement("given").SetText(patient.GivenName)
	name.CreateElement("semanticsText").SetText("LivingSubject.name")
}

func addAddressParameter(parameterList *etree.Element, patient model.PatientMetadata) {
	address := parameterList.CreateElement("patientAddress")
	value := address.CreateElement("value")
	if patient.StreetAddressLine != "" {
		value.CreateElement("streetAddressLine").SetText(patient.StreetAddressLine)
	}
	if patient.City != "" {
		value.CreateElement("city").SetText(patient.City)
	}
	if patient.State != "" {
		value.CreateElement("state").SetText(patient.State)
	}
	if patient.PostalCode != "" {
		value.CreateElement("postalCode").SetText(patient.PostalCode)
	}
	if patient.Country != "" {
		value.CreateElement("country").SetText(patient.Country)
	}
	address.CreateElement("semanticsText").SetText("Patient.addr")
}

func addTelecomParameter(parameterList *etree.Element, patient model.PatientMetadata) {
	telecom := parameterList.CreateElement("patientTelecom")
	if patient.PhoneNumber != "" {
		value := telecom.CreateElement("value")
		value.CreateAttr("value", FormatPhone(patient.PhoneNumber))
		value.CreateAttr("use", "HP")
	}
	if patient.Email != "" {
		value := telecom.CreateElement("value")
		value.CreateAttr("value", "mailto:"+patient.Email)
		value.CreateAttr("use", "H")
	}
	telecom.CreateElement("semanticsText").SetText("Patient.telecom")
}

var tenDigits = regexp.MustCompile(`^\d{10}$`)

// FormatPhone renders a phone number per spec §4.3/§8: a 10-digit input is
// rewritten to tel:+1-XXX-XXX-XXXX; anything else is prefixed tel:+1-
// verbatim.
func FormatPhone(raw string) string {
	if tenDigits.MatchString(raw) {
		return "tel:+1-" + raw[:3] + "-" + raw[3:6] + "-" + raw[6:]
	}
	return "tel:+1-" + raw
}
