package storage

import (
	"fmt"

	"github.com/jmylchreest/m3u-proxy/internal/urlutil"
)

// LogoRewriter rewrites channel logo field values for output:
//
//   - internal asset references (@logo:<id>) become absolute URLs against the
//     configured base URL ({base}/api/logos/{id})
//   - absolute external URLs pass through unchanged
//   - relative or empty values become empty
type LogoRewriter struct {
	baseURL string
}

// NewLogoRewriter creates a rewriter against the given base URL.
func NewLogoRewriter(baseURL string) *LogoRewriter {
	return &LogoRewriter{
		baseURL: urlutil.NormalizeBaseURL(baseURL),
	}
}

// Rewrite applies the logo URL rewriting contract to a field value.
func (r *LogoRewriter) Rewrite(value string) string {
	if value == "" {
		return ""
	}

	if assetID := AssetIDFromLogoField(value); assetID != "" {
		return urlutil.JoinPath(r.baseURL, fmt.Sprintf("/api/logos/%s", assetID))
	}

	if !urlutil.IsRemoteURL(value) {
		return ""
	}
	return value
}
