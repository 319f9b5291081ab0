package agent

// Tool results are capped before entering the transcript so a single
// verbose result (a full raw message, say) cannot blow the context
// budget on its own.
const (
	maxToolResultChars = 3500
	truncateSuffix     = "\n[... truncated to fit context limit]"
)

// capResult truncates content to maxChars, marking the cut. Content
// that already fits is returned unchanged. The result never exceeds
// maxChars; when the cap is too small to hold the marker the content
// is cut bare.
func capResult(content string, maxChars int) string {
	if len(content) <= maxChars {
		return content
	}
	if maxChars <= len(truncateSuffix) {
		return content[:maxChars]
	}
	return content[:maxChars-len(truncateSuffix)] + truncateSuffix
}
