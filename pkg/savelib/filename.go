package savelib

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// mimeExtensions maps common response content types to a file extension,
// used when a resolved name carries none of its own.
var mimeExtensions = map[string]string{
	"text/plain":                   ".txt",
	"text/html":                    ".html",
	"text/css":                     ".css",
	"text/csv":                     ".csv",
	"application/json":             ".json",
	"application/pdf":              ".pdf",
	"application/zip":              ".zip",
	"application/gzip":             ".gz",
	"application/x-tar":            ".tar",
	"application/x-7z-compressed":  ".7z",
	"application/x-rar-compressed": ".rar",
	"application/msword":           ".doc",
	"application/vnd.ms-excel":     ".xls",
	"application/xml":              ".xml",
	"image/jpeg":                   ".jpg",
	"image/png":                    ".png",
	"image/gif":                    ".gif",
	"image/webp":                   ".webp",
	"image/svg+xml":                ".svg",
	"audio/mpeg":                   ".mp3",
	"audio/wav":                    ".wav",
	"audio/ogg":                    ".ogg",
	"audio/flac":                   ".flac",
	"audio/mp4":                    ".m4a",
	"video/mp4":                    ".mp4",
	"video/webm":                   ".webm",
	"video/x-matroska":             ".mkv",
	"video/quicktime":              ".mov",
	"video/x-msvideo":              ".avi",
}

// NameSource carries everything the resolver may derive a file name from.
type NameSource struct {
	// URL is the source url the item was queued with.
	URL string
	// CustomName, when set, wins over everything else.
	CustomName string
	// Disposition is the raw Content-Disposition response header.
	Disposition string
	// ContentType is the raw Content-Type response header, consulted only
	// to append a missing extension.
	ContentType string
	// UseServerName allows Disposition to override the url-derived name.
	UseServerName bool
}

// ResolveFileName produces a non-empty, filesystem-legal file name from
// the available sources. Preference order: custom name, disposition
// (extended form first), url path segment. The result never contains
// path separators and never ends in a dot.
func ResolveFileName(src NameSource) string {
	var name string
	switch {
	case src.CustomName != "":
		name = src.CustomName
	case src.UseServerName && src.Disposition != "":
		name = parseDisposition(src.Disposition)
	}
	if name == "" {
		name = nameFromURL(src.URL)
	}
	name = SanitizeFilename(name)
	if name == "" {
		name = fmt.Sprintf("unnamed_%s", time.Now().Format("20060102150405"))
	}
	if filepath.Ext(name) == "" {
		if ext := extensionFor(src.ContentType); ext != "" {
			name += ext
		}
	}
	return name
}

// parseDisposition extracts a file name from a Content-Disposition header
// value. mime.ParseMediaType decodes the RFC 5987 extended form
// (filename*) into the same "filename" parameter, which matches the
// preference order wanted here. A crude fallback handles headers the
// parser rejects.
func parseDisposition(cd string) string {
	if _, params, err := mime.ParseMediaType(cd); err == nil {
		if fn := params["filename"]; fn != "" {
			return decodeName(fn)
		}
		return ""
	}
	for _, part := range strings.Split(cd, ";") {
		part = strings.TrimSpace(part)
		key, val, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "filename", "filename*":
			return decodeName(strings.Trim(strings.TrimSpace(val), `"`))
		}
	}
	return ""
}

func nameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return decodeName(path.Base(u.Path))
}

func decodeName(name string) string {
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	return strings.Trim(name, `"`)
}

func extensionFor(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mimeExtensions[strings.ToLower(mt)]
}

// SanitizeFilename removes or replaces characters invalid on Windows and
// Unix filesystems. Every illegal character becomes an underscore and
// trailing dots and spaces are trimmed. The empty string is returned
// as-is; callers substitute their own placeholder.
func SanitizeFilename(name string) string {
	if name == "" {
		return name
	}

	// Invalid on Windows: < > : " / \ | ? *
	for _, char := range []string{"<", ">", ":", "\"", "/", "\\", "|", "?", "*"} {
		name = strings.ReplaceAll(name, char, "_")
	}

	// Strip control characters (0x00-0x1F).
	var b strings.Builder
	for _, r := range name {
		if r >= 32 {
			b.WriteRune(r)
		}
	}
	name = b.String()

	// Windows reserved device names, case-insensitive.
	base, ext := name, ""
	if idx := strings.LastIndex(name, "."); idx > 0 {
		base, ext = name[:idx], name[idx:]
	}
	for _, r := range reservedNames {
		if strings.EqualFold(base, r) {
			base = "_" + base
			break
		}
	}
	name = base + ext

	return strings.Trim(name, " .")
}

var reservedNames = []string{
	"CON", "PRN", "AUX", "NUL",
	"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
	"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9",
}
