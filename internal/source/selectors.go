package source

// Default DOM selectors for user-list pages. They live together because the
// markup changes often; override them per campaign in giveaway.yml.
const (
	UserCell     = `[data-testid="UserCell"]`
	UserLink     = `a[href^="/"]`
	UserNameSpan = `[data-testid="UserName"] span, span`
	NextPageLink = `a[rel="next"]`
)
