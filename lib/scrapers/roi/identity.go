package roi

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
)

const idNamespace = "roi_"

var trailingIdRegex = regexp.MustCompile(`/(\d+)/?$`)

// ResolveExternalID derives a stable identifier for an initiative from
// its URL. Initiative URLs carry a trailing numeric path segment
// (e.g. https://www.roi.ru/134431/); when one is absent a short digest
// of the URL is used instead so every record gets a non-empty id.
func ResolveExternalID(rawUrl string) string {
	if m := trailingIdRegex.FindStringSubmatch(rawUrl); m != nil {
		return idNamespace + m[1]
	}
	sum := md5.Sum([]byte(rawUrl))
	return idNamespace + hex.EncodeToString(sum[:])[:8]
}
