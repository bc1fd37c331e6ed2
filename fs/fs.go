// Package appfs embeds static assets needed at runtime: database migrations,
// email templates and the common passwords list.
package appfs

import "embed"

// the _base email layouts are underscore-prefixed, which directory patterns
// skip; they must be listed explicitly.
//
//go:embed migrations assets assets/templates/email/_base.txt assets/templates/email/_base.gohtml
var FS embed.FS
