package collectors

// CategoryToSubreddits lists large communities searched in addition to r/all
// when a subject has a category.
var CategoryToSubreddits = map[string][]string{
	"Technology": {
		"technology",
		"Futurology",
		"programming",
		"gadgets",
	},
	"Business & Finance": {
		"wallstreetbets",
		"investing",
		"finance",
		"stocks",
	},
	"Politics & World Affairs": {
		"politics",
		"worldnews",
		"geopolitics",
		"PoliticalDiscussion",
	},
	"Entertainment & Pop Culture": {
		"movies",
		"television",
		"popculturechat",
		"music",
	},
	"Health & Science": {
		"science",
		"askscience",
		"health",
		"medicine",
	},
	"Sports": {
		"sports",
		"nba",
		"nfl",
		"soccer",
	},
	"Gaming": {
		"gaming",
		"pcgaming",
		"Games",
	},
}

// SubredditsFor returns the category's subreddits, or nil for an unknown
// category.
func SubredditsFor(category string) []string {
	return CategoryToSubreddits[category]
}
