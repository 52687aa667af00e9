package responder

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/store"
	"github.com/Abstractive-Health/abstractivehealth-hie/internal/xca"
)

const iti38WrongAddresseeEnvelope = `<soapenv:Envelope xmlns:soapenv="http://www.w3.org/2003/05/soap-envelope" xmlns:a="http://www.w3.org/2005/08/addressing">
	<soapenv:Header><a:To>https://someone-else.example/iti38responder</a:To></soapenv:Header>
	<soapenv:Body/>
</soapenv:Envelope>`

func TestITI38HandleRejectsWrongAddressee(t *testing.T) {
	h := &ITI38{LocalURLs: []string{"https://us.example/iti38responder"}, Credentials: testCredentials(t)}
	_, err := h.Handle(context.Background(), []byte(iti38WrongAddresseeEnvelope))
	require.Error(t, err)
	var wrongAddressee *ErrWrongAddressee
	require.ErrorAs(t, err, &wrongAddressee)
}

func TestITI38HandleEmptyOnMalformedXML(t *testing.T) {
	h := &ITI38{OurHCID: "2.16.840.1.us", Credentials: testCredentials(t)}
	out, err := h.Handle(context.Background(), []byte("not xml"))
	require.NoError(t, err)

	tuples, err := xca.ParseITI38Response(out, h.OurHCID)
	require.NoError(t, err)
	require.Empty(t, tuples)
}

func TestRenderResponseEncodesOriginatingTableInRepositoryUniqueId(t *testing.T) {
	h := &ITI38{OurHCID: "2.16.840.1.us", Credentials: testCredentials(t)}
	resource, err := json.Marshal(documentCodes{LOINC: "34133-9", PatientFhirID: "patient-123"})
	require.NoError(t, err)

	matches := []store.DocumentMatch{
		{ID: "doc-1", Table: "DiagnosticReport", Resource: resource},
		{ID: "doc-2", Table: "DocumentReference", Resource: resource},
	}
	out, err := h.renderResponse(matches)
	require.NoError(t, err)
	require.Contains(t, string(out), "ds:Signature")

	tuples, err := xca.ParseITI38Response(out, h.OurHCID)
	require.NoError(t, err)
	require.Len(t, tuples, 2)

	byDocID := map[string]string{}
	for _, tup := range tuples {
		byDocID[tup.DocID] = tup.RID
	}
	require.Equal(t, "2.16.840.1.us.DiagnosticReport", byDocID["doc-1"])
	require.Equal(t, "2.16.840.1.us.DocumentReference", byDocID["doc-2"])
	require.Equal(t, "DiagnosticReport", tableFromRepositoryUniqueID(byDocID["doc-1"]))
	require.Equal(t, "DocumentReference", tableFromRepositoryUniqueID(byDocID["doc-2"]))
}

func TestRenderEmptyProducesZeroMatches(t *testing.T) {
	h := &ITI38{OurHCID: "2.16.840.1.us", Credentials: testCredentials(t)}
	out, err := h.renderEmpty()
	require.NoError(t, err)

	tuples, err := xca.ParseITI38Response(out, h.OurHCID)
	require.NoError(t, err)
	require.Empty(t, tuples)
}

func TestExtractPatientID(t *testing.T) {
	require.Equal(t, "PID-1", extractPatientID("PID-1^^^&2.16.840.1.root&ISO"))
	require.Equal(t, "bare-id", extractPatientID("bare-id"))
}

func TestRepositoryUniqueID(t *testing.T) {
	require.Equal(t, "2.16.840.1.us.DocumentReference", repositoryUniqueID("2.16.840.1.us", "DocumentReference"))
}
