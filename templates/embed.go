// Package templates provides embedded prompt templates.
package templates

import "embed"

// Prompts contains the prompt templates sent to the worker CLI: the fresh
// phase prompt and the remediation prompt for retry attempts. Projects can
// override any of them with a same-named file under .debussy/prompts/.
//
//go:embed prompts/*.md
var Prompts embed.FS
