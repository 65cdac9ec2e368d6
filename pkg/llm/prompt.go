package llm

import (
	"fmt"
	"strings"
)

// EscapePromptContent neutralizes occurrences of the wrapper tag inside
// untrusted text before it is embedded in a prompt, so document content
// cannot terminate its own delimiter.
func EscapePromptContent(text, tag string) string {
	replacer := strings.NewReplacer(
		fmt.Sprintf("<%s>", tag), fmt.Sprintf("&lt;%s&gt;", tag),
		fmt.Sprintf("</%s>", tag), fmt.Sprintf("&lt;/%s&gt;", tag),
	)
	return replacer.Replace(text)
}

// WrapPromptContent escapes text and surrounds it with the wrapper tag.
func WrapPromptContent(text, tag string) string {
	return fmt.Sprintf("<%s>\n%s\n</%s>", tag, EscapePromptContent(text, tag), tag)
}
