package responder

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/pipeline"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/xcpd"
)

const wrongAddresseeEnvelope = `<soapenv:Envelope xmlns:soapenv="http://www.w3.org/2003/05/soap-envelope" xmlns:a="http://www.w3.org/2005/08/addressing">
	<soapenv:Header><a:To>https://someone-else.example/iti55responder</a:To></soapenv:Header>
	<soapenv:Body/>
</soapenv:Envelope>`

func TestITI55HandleRejectsWrongAddressee(t *testing.T) {
	h := &ITI55{LocalURLs: []string{"https://us.example/iti55responder"}, Credentials: testCredentials(t)}
	_, err := h.Handle(context.Background(), []byte(wrongAddresseeEnvelope))
	require.Error(t, err)
	var wrongAddressee *ErrWrongAddressee
	require.ErrorAs(t, err, &wrongAddressee)
	require.Equal(t, "https://someone-else.example/iti55responder", wrongAddressee.To)
}

func TestITI55HandleNotFoundOnMalformedXML(t *testing.T) {
	h := &ITI55{Credentials: testCredentials(t)}
	out, err := h.Handle(context.Background(), []byte("not xml"))
	require.NoError(t, err)
	outcome := xcpd.ParseResponse(out)
	require.Equal(t, pipeline.KindNotFound, outcome.Kind)
}

func TestRenderMatchProducesParsableSingleMatch(t *testing.T) {
	h := &ITI55{OurHCID: "2.16.840.1.us", Credentials: testCredentials(t)}
	resource, err := json.Marshal(fhirPatient{
		Given: "Jane", Family: "Doe", Gender: "F", BirthTime: "19800101",
		Street: "1 Main St", City: "Springfield", State: "NY", PostalCode: "10001", Country: "US",
	})
	require.NoError(t, err)

	out, err := h.renderMatch("2.16.840.1.them", "patient-123", resource)
	require.NoError(t, err)
	require.Contains(t, string(out), "ds:Signature")
	require.Contains(t, string(out), "wsu:Timestamp")

	outcome := xcpd.ParseResponse(out)
	require.Equal(t, pipeline.KindMatched, outcome.Kind)
	require.Len(t, outcome.PatientIDs, 1)
	require.Equal(t, "2.16.840.1.us", outcome.PatientIDs[0].Root)
	require.Equal(t, "patient-123", outcome.PatientIDs[0].Extension)
	require.Equal(t, "Jane", outcome.Patient.GivenName)
	require.Equal(t, "Doe", outcome.Patient.FamilyName)
	require.Equal(t, "19800101", outcome.Patient.BirthTime)
	require.Equal(t, "10001", outcome.Patient.PostalCode)
	require.Equal(t, "US", outcome.Patient.Country)
}

func TestRenderNotFoundProducesParsableNotFound(t *testing.T) {
	h := &ITI55{Credentials: testCredentials(t)}
	out, err := h.renderNotFound("2.16.840.1.them")
	require.NoError(t, err)
	outcome := xcpd.ParseResponse(out)
	require.Equal(t, pipeline.KindNotFound, outcome.Kind)
}

func TestAddressedToUs(t *testing.T) {
	h := &ITI55{LocalURLs: []string{"https://a", "https://b"}}
	require.True(t, h.addressedToUs("https://b"))
	require.False(t, h.addressedToUs("https://c"))
}

func TestExtractDemographics(t *testing.T) {
	const qbp = `<queryByParameter>
		<parameterList>
			<livingSubjectName><value><given>Jane</given><family>Doe</family></value></livingSubjectName>
			<livingSubjectAdministrativeGender><value code="F"/></livingSubjectAdministrativeGender>
			<livingSubjectBirthTime><value value="19800101"/></livingSubjectBirthTime>
		</parameterList>
	</queryByParameter>`
	doc := parseTestXML(t, qbp)
	demo := extractDemographics(doc)
	require.Equal(t, "Jane", demo["given"])
	require.Equal(t, "Doe", demo["family"])
	require.Equal(t, "F", demo["gender"])
	require.Equal(t, "19800101", demo["birthtime"])
	require.Equal(t, "", demo["city"])
}
