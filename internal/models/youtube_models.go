package models

type YouTubeSearchResponse struct {
	Items []YouTubeSearchItem `json:"items"`
}

type YouTubeSearchItem struct {
	ID struct {
		Kind    string `json:"kind"`
		VideoID string `json:"videoId"`
	} `json:"id"`
}

type YouTubeCommentThreadsResponse struct {
	NextPageToken string                 `json:"nextPageToken"`
	Items         []YouTubeCommentThread `json:"items"`
}

type YouTubeCommentThread struct {
	ID      string `json:"id"`
	Snippet struct {
		VideoID         string `json:"videoId"`
		TopLevelComment struct {
			ID      string                `json:"id"`
			Snippet YouTubeCommentSnippet `json:"snippet"`
		} `json:"topLevelComment"`
	} `json:"snippet"`
}

type YouTubeCommentSnippet struct {
	TextDisplay       string `json:"textDisplay"`
	TextOriginal      string `json:"textOriginal"`
	AuthorDisplayName string `json:"authorDisplayName"`
	LikeCount         int    `json:"likeCount"`
	PublishedAt       string `json:"publishedAt"`
}
