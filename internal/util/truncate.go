package util

// TruncateHead keeps at most max bytes from the end of s, prepending a
// truncation marker. Error output is usually most useful at the end (final
// failure lines), so the head is what gets dropped.
func TruncateHead(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return "... (output truncated) ...\n" + s[len(s)-max:]
}

// TruncateTail keeps at most max runes from the start of s, appending "..."
// when anything was cut. Used for one-line displays.
func TruncateTail(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
