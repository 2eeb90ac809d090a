package resolver

// Video is the canonical reference to a resolved video link.
type Video struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}
