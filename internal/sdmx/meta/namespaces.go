package meta

// SDMX-ML 2.1 namespace URIs, keyed by the short names used in field and
// class declarations.
const (
	NSMessage   = "http://www.sdmx.org/resources/sdmxml/schemas/v2_1/message"
	NSStructure = "http://www.sdmx.org/resources/sdmxml/schemas/v2_1/structure"
	NSCommon    = "http://www.sdmx.org/resources/sdmxml/schemas/v2_1/common"
	NSRegistry  = "http://www.sdmx.org/resources/sdmxml/schemas/v2_1/registry"
	NSXML       = "http://www.w3.org/XML/1998/namespace"
)

var namespaceURIs = map[string]string{
	"message":   NSMessage,
	"structure": NSStructure,
	"common":    NSCommon,
	"registry":  NSRegistry,
	"xml":       NSXML,
}

var namespacePrefixes = map[string]string{
	"message":   "mes",
	"structure": "str",
	"common":    "com",
	"registry":  "reg",
	"xml":       "xml",
}

// NamespaceURI returns the URI for a namespace key, or "".
func NamespaceURI(key string) string {
	return namespaceURIs[key]
}

// NamespacePrefix returns the conventional prefix for a namespace key, or "".
func NamespacePrefix(key string) string {
	return namespacePrefixes[key]
}
