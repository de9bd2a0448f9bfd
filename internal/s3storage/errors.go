package s3storage

import (
	"net/url"
	"strings"

	"github.com/dharsanguruparan/ReelDrop/internal/fault"
)

// quotaCodes are S3 and MinIO error codes meaning the store refuses more data.
var quotaCodes = map[string]bool{
	"QuotaExceeded":                  true,
	"XMinioAdminBucketQuotaExceeded": true,
	"XMinioStorageFull":              true,
	"StorageFull":                    true,
	"ServiceQuotaExceededException":  true,
}

func kindForCode(code string) fault.Kind {
	if quotaCodes[code] {
		return fault.QuotaExceeded
	}
	return fault.StoreUnavailable
}

// publicURL joins base and an object key, escaping each key segment.
func publicURL(base, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}
