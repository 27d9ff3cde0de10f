package driven

// TokenCounter counts model tokens in a piece of text.
type TokenCounter interface {
	// Count returns the number of tokens in text.
	Count(text string) int
}
