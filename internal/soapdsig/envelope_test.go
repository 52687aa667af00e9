package soapdsig

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"
)

func TestBuildRequestSignsTimestampAndTo(t *testing.T) {
	key, cert := testKeyAndCert(t)

	body := etree.NewElement("ns:Payload")
	body.CreateAttr("xmlns:ns", "urn:test:payload")
	body.SetText("hello")

	raw, err := BuildRequest(RequestParams{
		Transaction: TxITI55Request,
		To:          "https://responder.example/iti55responder",
		Body:        body,
		SignKey:     key,
		SignCert:    cert,
	})
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(raw))

	timestamp := doc.FindElement(".//*[@wsu:Id='_0']")
	to := doc.FindElement(".//*[@wsu:Id='_1']")
	require.NotNil(t, timestamp)
	require.NotNil(t, to)
	require.Equal(t, "wsu:Timestamp", timestamp.Tag)
	require.Equal(t, "a:To", to.Tag)

	signature := doc.FindElement(".//ds:Signature")
	require.NotNil(t, signature)
	signedInfo := signature.FindElement("ds:SignedInfo")
	require.NotNil(t, signedInfo)
	sigValue := signature.FindElement("ds:SignatureValue").Text()

	refs := signedInfo.SelectElements("Reference")
	require.Len(t, refs, 2)
	uris := map[string]bool{}
	for _, ref := range refs {
		uris[ref.SelectAttrValue("URI", "")] = true
	}
	require.True(t, uris["#_0"])
	require.True(t, uris["#_1"])

	canon := MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	for _, ref := range refs {
		uri := ref.SelectAttrValue("URI", "")
		digestValue := ref.FindElement("DigestValue").Text()
		var target *etree.Element
		switch uri {
		case "#_0":
			target = timestamp
		case "#_1":
			target = to
		}
		require.NoError(t, VerifyReference(Reference{URI: uri, Digest: digestValue}, target, canon))
	}

	require.NoError(t, VerifySignedInfo(signedInfo, &key.PublicKey, sigValue, canon))

	action := doc.FindElement(".//a:Action")
	require.NotNil(t, action)
	require.Equal(t, TxITI55Request.Action, action.Text())

	payload := doc.FindElement(".//ns:Payload")
	require.NotNil(t, payload)
	require.Equal(t, "hello", payload.Text())
}

func TestExtractEnvelopeTolerant(t *testing.T) {
	raw := []byte("--mime-boundary\r\nContent-Type: application/xop+xml\r\n\r\n<soapenv:Envelope xmlns:soapenv=\"urn:x\"><soapenv:Body>x</soapenv:Body></soapenv:Envelope>\r\n--mime-boundary--")
	env := ExtractEnvelope(raw)
	require.Equal(t, `<soapenv:Envelope xmlns:soapenv="urn:x"><soapenv:Body>x</soapenv:Body></soapenv:Envelope>`, string(env))
}

func TestExtractEnvelopeNoMatch(t *testing.T) {
	require.Nil(t, ExtractEnvelope([]byte("not xml at all")))
}
