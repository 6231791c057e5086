package s3util

// projectTag is the URL-encoded object tagging string for cost allocation.
const projectTag = "Project=etsyflow"

// ProjectTagging returns a pointer to the URL-encoded object tagging string.
func ProjectTagging() *string {
	t := projectTag
	return &t
}
