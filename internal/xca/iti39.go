package xca

import (
	"regexp"
	"time"

	"github.com/beevik/etree"

	"github.com/Abstractive-Health/abstractivehealth-hie/internal/model"
)

// ITI39Timeout is the fixed per-chunk ITI-39 stage timeout (60s).
func ITI39Timeout() time.Duration { return iti39Timeout }

// Chunk splits ids into groups of documentsPerChunk (5), per spec §4.5:
// for n items, exactly ceil(n/5) chunks are produced, chunk k carrying
// items [5k, 5k+5).
func Chunk(ids []model.PatientDocID) [][]model.PatientDocID {
	var chunks [][]model.PatientDocID
	for i := 0; i < len(ids); i += documentsPerChunk {
		end := i + documentsPerChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}

// BuildITI39Request constructs a RetrieveDocumentSetRequest body carrying
// one DocumentRequest per tuple in chunk.
func BuildITI39Request(chunk []model.PatientDocID) *etree.Element {
	root := etree.NewElement("RetrieveDocumentSetRequest")
	root.CreateAttr("xmlns", "urn:ihe:iti:xds-b:2007")

	for _, doc := range chunk {
		request := root.CreateElement("DocumentRequest")
		request.CreateElement("HomeCommunityId").SetText("urn:oid:" + doc.ReplacementHCID)
		request.CreateElement("RepositoryUniqueId").SetText(doc.RID)
		request.CreateElement("DocumentUniqueId").SetText(doc.DocID)
	}
	return root
}

var clinicalDocumentRegexp = regexp.MustCompile(`(?is)<ClinicalDocument[\s>].*?</ClinicalDocument>`)

// ParseITI39Response implements spec §4.5's response parse: every
// <ClinicalDocument>...</ClinicalDocument> literal substring in raw is
// extracted and appended to docsFound under the doc type of the
// positionally aligned entry in chunk.
func ParseITI39Response(raw []byte, chunk []model.PatientDocID, docsFound map[string][]string) {
	matches := clinicalDocumentRegexp.FindAllString(string(raw), -1)
	for i, doc := range matches {
		docType := "unknown"
		if i < len(chunk) {
			docType = chunk[i].DocType
		}
		docsFound[docType] = append(docsFound[docType], doc)
	}
}
