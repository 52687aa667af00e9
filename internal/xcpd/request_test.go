package xcpd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/model"
)

func TestRequestParamsTimeout(t *testing.T) {
	require.Equal(t, 45*time.Second, RequestParams{National: true}.Timeout())
	require.Equal(t, 60*time.Second, RequestParams{National: false}.Timeout())
}

func TestFormatPhone(t *testing.T) {
	require.Equal(t, "tel:+1-555-123-4567", FormatPhone("5551234567"))
	require.Equal(t, "tel:+1-abc", FormatPhone("abc"))
}

func TestBuildRequestOmitsAddressWhenNational(t *testing.T) {
	patient := model.PatientMetadata{
		GivenName:  "Jane",
		FamilyName: "Doe",
		BirthTime:  "19800101",
		City:       "Springfield",
	}
	body := BuildRequest(RequestParams{National: true, Patient: patient})
	require.Nil(t, body.FindElement(".//patientAddress"))
}

func TestBuildRequestIncludesAddressWhenRegionalAndPresent(t *testing.T) {
	patient := model.PatientMetadata{
		GivenName:  "Jane",
		FamilyName: "Doe",
		BirthTime:  "19800101",
		City:       "Springfield",
	}
	body := BuildRequest(RequestParams{National: false, Patient: patient})
	addr := body.FindElement(".//patientAddress")
	require.NotNil(t, addr)
	require.Equal(t, "Springfield", addr.FindElement("value/city").Text())
}

func TestBuildRequestOmitsAddressWhenRegionalButAbsent(t *testing.T) {
	patient := model.PatientMetadata{GivenName: "Jane", FamilyName: "Doe", BirthTime: "19800101"}
	body := BuildRequest(RequestParams{National: false, Patient: patient})
	require.Nil(t, body.FindElement(".//patientAddress"))
}

func TestBuildRequestIncludesTelecomWhenPresent(t *testing.T) {
	patient := model.PatientMetadata{
		GivenName:   "Jane",
		FamilyName:  "Doe",
		BirthTime:   "19800101",
		PhoneNumber: "5551234567",
		Email:       "jane@example.org",
	}
	body := BuildRequest(RequestParams{National: true, Patient: patient})
	telecom := body.FindElement(".//patientTelecom")
	require.NotNil(t, telecom)
	values := telecom.SelectElements("value")
	require.Len(t, values, 2)
	require.Equal(t, "tel:+1-555-123-4567", values[0].SelectAttrValue("value", ""))
	require.Equal(t, "mailto:jane@example.org", values[1].SelectAttrValue("value", ""))
}

func TestBuildRequestDemographicsAndRouting(t *testing.T) {
	patient := model.PatientMetadata{
		GivenName:                "Jane",
		FamilyName:               "Doe",
		AdministrativeGenderCode: model.GenderFemale,
		BirthTime:                "19800101",
	}
	body := BuildRequest(RequestParams{
		ResponderHCID: "2.16.840.1.responder",
		SenderHCID:    "2.16.840.1.sender",
		SenderOrgHCID: "2.16.840.1.senderorg",
		Patient:       patient,
		National:      true,
	})

	require.Equal(t, "F", body.FindElement(".//livingSubjectAdministrativeGender/value").SelectAttrValue("code", ""))
	require.Equal(t, "19800101", body.FindElement(".//livingSubjectBirthTime/value").SelectAttrValue("value", ""))
	require.Equal(t, "Doe", body.FindElement(".//livingSubjectName/value/family").Text())
	require.Equal(t, "Jane", body.FindElement(".//livingSubjectName/value/given").Text())
	require.Equal(t, "2.16.840.1.responder", body.FindElement(".//receiver/device/id").SelectAttrValue("root", ""))
	require.Equal(t, "2.16.840.1.sender", body.FindElement(".//sender/device/id").SelectAttrValue("root", ""))
}
