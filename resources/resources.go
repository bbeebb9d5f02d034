package resources

import "embed"

// FS holds static assets shipped with the binary: database migrations
// and translated user-facing strings.
//
//go:embed migrations i18n
var FS embed.FS
