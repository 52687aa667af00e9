package xcpd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/pipeline"
)

func wrapQueryResponse(code, body string) []byte {
	return []byte(`<soapenv:Envelope xmlns:soapenv="urn:x"><soapenv:Body><hl7:PRPA_IN201306UV02 xmlns:hl7="urn:hl7-org:v3">` +
		`<hl7:controlActProcess><hl7:queryAck><hl7:queryResponseCode code="` + code + `"/></hl7:queryAck>` + body +
		`</hl7:controlActProcess></hl7:PRPA_IN201306UV02></soapenv:Body></soapenv:Envelope>`)
}

const oneRegistrationEvent = `<hl7:subject1>
	<hl7:registrationEvent>
		<hl7:subject1>
			<hl7:patient>
				<hl7:id root="2.16.840.1.root" extension="PID-123"/>
				<hl7:patientPerson>
					<hl7:name><hl7:given>Jane</hl7:given><hl7:family>Doe</hl7:family></hl7:name>
					<hl7:administrativeGenderCode code="F"/>
					<hl7:birthTime value="19800101"/>
					<hl7:addr>
						<hl7:streetAddressLine>1 Main St</hl7:streetAddressLine>
						<hl7:city>Springfield</hl7:city>
						<hl7:state>IL</hl7:state>
						<hl7:postalCode>62701</hl7:postalCode>
						<hl7:country>US</hl7:country>
					</hl7:addr>
				</hl7:patientPerson>
			</hl7:patient>
		</hl7:subject1>
	</hl7:registrationEvent>
</hl7:subject1>`

func TestParseResponseMatched(t *testing.T) {
	outcome := ParseResponse(wrapQueryResponse("OK", oneRegistrationEvent))
	require.Equal(t, pipeline.KindMatched, outcome.Kind)
	require.Len(t, outcome.PatientIDs, 1)
	require.Equal(t, "2.16.840.1.root", outcome.PatientIDs[0].Root)
	require.Equal(t, "PID-123", outcome.PatientIDs[0].Extension)
	require.Equal(t, "Jane", outcome.Patient.GivenName)
	require.Equal(t, "Doe", outcome.Patient.FamilyName)
	require.Equal(t, "Springfield", outcome.Patient.City)
}

func TestParseResponseNotFoundWhenCodeNotOK(t *testing.T) {
	outcome := ParseResponse(wrapQueryResponse("AE", oneRegistrationEvent))
	require.Equal(t, pipeline.KindNotFound, outcome.Kind)
}

func TestParseResponseNotFoundWhenNoEvents(t *testing.T) {
	outcome := ParseResponse(wrapQueryResponse("OK", ""))
	require.Equal(t, pipeline.KindNotFound, outcome.Kind)
}

func TestParseResponseMultipleMatches(t *testing.T) {
	outcome := ParseResponse(wrapQueryResponse("OK", oneRegistrationEvent+oneRegistrationEvent))
	require.Equal(t, pipeline.KindMultiple, outcome.Kind)
}

func TestParseResponseMalformedXML(t *testing.T) {
	outcome := ParseResponse([]byte("<not><closed>"))
	require.Equal(t, pipeline.KindNotFound, outcome.Kind)
}
