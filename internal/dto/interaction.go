package dto

// AddCommentRequest payload for commenting on an issue.
type AddCommentRequest struct {
	Body string `json:"body" validate:"required,min=1,max=2000"`
}

// UpvoteResult reports the outcome of an upvote toggle.
type UpvoteResult struct {
	UpvoteCount int  `json:"upvote_count"`
	UserUpvoted bool `json:"user_upvoted"`
}
