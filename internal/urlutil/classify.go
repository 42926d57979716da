package urlutil

import (
	"net/url"
	"path"
	"strings"
)

// DefaultExcludePatterns are applied to every discovered link on top of a job's
// own exclude patterns. They target URLs that carry no indexable content.
var DefaultExcludePatterns = []string{
	"/wp-admin/*",
	"/wp-login.php*",
	"*/admin/*",
	"*/login*",
	"*/logout*",
	"*/signin*",
	"*/signup*",
	"*/register*",
	"*/cart",
	"*/cart/*",
	"*/checkout*",
	"*/my-account*",
	"*/feed",
	"*/feed/",
	"*/rss*",
	"*/xmlrpc.php*",
	"*/cdn-cgi/*",
}

var nonContentSchemes = []string{"mailto:", "tel:", "javascript:", "data:", "sms:", "ftp:", "file:"}

var staticExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".svg": {}, ".webp": {}, ".ico": {}, ".bmp": {}, ".avif": {},
	".css": {}, ".js": {}, ".mjs": {}, ".map": {}, ".json": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {}, ".otf": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".zip": {}, ".gz": {}, ".tar": {}, ".rar": {}, ".7z": {}, ".exe": {}, ".dmg": {}, ".apk": {},
	".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".wmv": {}, ".webm": {}, ".wav": {}, ".ogg": {},
	".xml": {}, ".rss": {}, ".atom": {}, ".txt": {},
}

var noisyParams = map[string]struct{}{
	"sessionid": {}, "session_id": {}, "sid": {}, "phpsessid": {}, "jsessionid": {},
	"ajax": {}, "_ajax": {}, "callback": {}, "jsonp": {},
	"fbclid": {}, "gclid": {}, "msclkid": {}, "dclid": {}, "yclid": {},
	"replytocom": {}, "share": {}, "print": {}, "preview": {},
}

// IsSEOValueURL reports whether a link (absolute or as written in the href)
// points at content worth crawling for an SEO audit.
func IsSEOValueURL(rawURL string) bool {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, scheme := range nonContentSchemes {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return false
	}
	if ext := strings.ToLower(path.Ext(u.Path)); ext != "" {
		if _, static := staticExtensions[ext]; static {
			return false
		}
	}
	for key := range u.Query() {
		k := strings.ToLower(key)
		if strings.HasPrefix(k, "utm_") {
			return false
		}
		if _, noisy := noisyParams[k]; noisy {
			return false
		}
	}
	return !MatchesPatterns(trimmed, DefaultExcludePatterns)
}
