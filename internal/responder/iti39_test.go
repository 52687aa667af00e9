package responder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/store"
)

func TestTableFromRepositoryUniqueIDKnownSuffix(t *testing.T) {
	require.Equal(t, "DiagnosticReport", tableFromRepositoryUniqueID("2.16.840.1.us.DiagnosticReport"))
	require.Equal(t, "ClinicalImpression", tableFromRepositoryUniqueID("2.16.840.1.us.ClinicalImpression"))
	require.Equal(t, "DocumentReference", tableFromRepositoryUniqueID("2.16.840.1.us.DocumentReference"))
}

func TestTableFromRepositoryUniqueIDFallsBackOnUnknownSuffix(t *testing.T) {
	require.Equal(t, store.DocumentTables[0], tableFromRepositoryUniqueID("2.16.840.1.peer.SomeOtherTable"))
	require.Equal(t, store.DocumentTables[0], tableFromRepositoryUniqueID("no-dot-at-all"))
}

func TestITI39HandleEmptyOnMalformedXML(t *testing.T) {
	h := &ITI39{OurHCID: "2.16.840.1.us", Credentials: testCredentials(t)}
	out, err := h.Handle(context.Background(), []byte("not xml"))
	require.NoError(t, err)
	require.Contains(t, string(out), "RetrieveDocumentSetResponse")
	require.Contains(t, string(out), "ds:Signature")
}

const iti39RequestForOtherHCID = `<soapenv:Envelope xmlns:soapenv="http://www.w3.org/2003/05/soap-envelope">
	<soapenv:Body>
		<RetrieveDocumentSetRequest xmlns="urn:ihe:iti:xds-b:2007">
			<DocumentRequest>
				<HomeCommunityId>urn:oid:2.16.840.1.someone-else</HomeCommunityId>
				<RepositoryUniqueId>2.16.840.1.someone-else.DocumentReference</RepositoryUniqueId>
				<DocumentUniqueId>doc-1</DocumentUniqueId>
			</DocumentRequest>
		</RetrieveDocumentSetRequest>
	</soapenv:Body>
</soapenv:Envelope>`

func TestITI39HandleSkipsTriplesForOtherHomeCommunities(t *testing.T) {
	h := &ITI39{OurHCID: "2.16.840.1.us", Credentials: testCredentials(t), Store: store.New(nil)}
	out, err := h.Handle(context.Background(), []byte(iti39RequestForOtherHCID))
	require.NoError(t, err)
	require.NotContains(t, string(out), "DocumentResponse")
}
