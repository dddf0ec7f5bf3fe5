package platform

// Mention is one inbound message addressed to the bot.
type Mention struct {
	ID     int64  `json:"id"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

// Reply is one outbound post threaded under InReplyTo. ImagePath, when set, is uploaded
// and attached.
type Reply struct {
	InReplyTo int64
	Author    string
	Text      string
	ImagePath string
}

type statusRequest struct {
	Text        string   `json:"text"`
	InReplyToID int64    `json:"in_reply_to_id"`
	MediaIDs    []string `json:"media_ids,omitempty"`
}

type statusResponse struct {
	ID int64 `json:"id"`
}

type mediaResponse struct {
	MediaID string `json:"media_id"`
}
