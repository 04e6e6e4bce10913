package extract

// Kind enumerates the closed set of extraction strategies, in fall-through
// priority order (most reliable first).
type Kind string

// Strategy kinds.
const (
	KindStructured Kind = "structured"
	KindTable      Kind = "table"
	KindDiv        Kind = "div"
	KindLink       Kind = "link"
	KindGeneric    Kind = "generic"
)

// fallthroughOrder is the fixed order tried when the selected strategy
// yields nothing.
var fallthroughOrder = []Kind{KindStructured, KindTable, KindDiv, KindLink, KindGeneric}

// Strategy extracts candidate jobs from a document. Implementations are
// pure over the document; no network access.
type Strategy interface {
	Kind() Kind
	Extract(doc *Document) []*Candidate
}

// strategies returns one instance of each kind, keyed for dispatch.
func strategies() map[Kind]Strategy {
	return map[Kind]Strategy{
		KindStructured: structuredStrategy{},
		KindTable:      tableStrategy{},
		KindDiv:        divStrategy{},
		KindLink:       linkStrategy{},
		KindGeneric:    genericStrategy{},
	}
}
