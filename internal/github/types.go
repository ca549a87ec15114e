package github

// Label is a GitHub issue label.
type Label struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Milestone is a GitHub milestone attached to an issue.
type Milestone struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	State string `json:"state"`
}

// Issue is the subset of the GitHub issue object we consume.
type Issue struct {
	ID        int64      `json:"id"`
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"`
	HTMLURL   string     `json:"html_url"`
	Labels    []Label    `json:"labels"`
	Milestone *Milestone `json:"milestone"`
}

// PullRequest is the subset of the GitHub pull request object we consume.
type PullRequest struct {
	ID      int64  `json:"id"`
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	State   string `json:"state"`
	HTMLURL string `json:"html_url"`
	Merged  bool   `json:"merged"`
	Head    Ref    `json:"head"`
	Base    Ref    `json:"base"`
}

// Ref identifies one side of a pull request.
type Ref struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// Review is a pull request review.
type Review struct {
	ID    int64  `json:"id"`
	State string `json:"state"`
	Body  string `json:"body"`
}

// WebhookPayload covers the fields shared by the issue, pull request and
// review events we handle. Unused event fields are simply left zero.
type WebhookPayload struct {
	Action      string       `json:"action"`
	Issue       *Issue       `json:"issue"`
	PullRequest *PullRequest `json:"pull_request"`
	Review      *Review      `json:"review"`
	Label       *Label       `json:"label"`
	Milestone   *Milestone   `json:"milestone"`
}
