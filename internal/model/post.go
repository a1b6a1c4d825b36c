// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Post はフィードを構成する投稿を表す。
// リモートサービスのJSONペイロードをそのままミラーするため、
// 全フィールドにjsonタグを付与する。識別子はIDのみ。
type Post struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"` // サニタイズ済みHTML（ストア取り込み時に処理）
	Tags      string     `json:"tags"`    // カンマ区切りテキスト（例: "Art, Music"）
	Images    string     `json:"images"`  // カンマ区切りの画像URL列
	Author    UserRef    `json:"author"`
	CreatedAt time.Time  `json:"createdAt"`
	Comments  []Comment  `json:"comments"`
	Reactions []Reaction `json:"reactions"`
}

// TagList はカンマ区切りのタグ文字列をトリム済みトークン列に分解して返す。
// 空トークンは除外する。順序は出現順を保持する。
func (p *Post) TagList() []string {
	return splitCommaJoined(p.Tags)
}

// ImageList はカンマ区切りの画像URL文字列をトリム済みURL列に分解して返す。
func (p *Post) ImageList() []string {
	return splitCommaJoined(p.Images)
}

// FindComment はIDが一致するコメントを返す。見つからない場合はnilを返す。
func (p *Post) FindComment(commentID string) *Comment {
	for i := range p.Comments {
		if p.Comments[i].ID == commentID {
			return &p.Comments[i]
		}
	}
	return nil
}

// Clone はPostの深いコピーを返す。
// ストアの外に出すスナップショットが内部状態を共有しないようにするために使う。
func (p *Post) Clone() *Post {
	clone := *p
	if p.Comments != nil {
		clone.Comments = make([]Comment, len(p.Comments))
		copy(clone.Comments, p.Comments)
	}
	if p.Reactions != nil {
		clone.Reactions = make([]Reaction, len(p.Reactions))
		copy(clone.Reactions, p.Reactions)
	}
	if p.Author.Followers != nil {
		clone.Author.Followers = make([]string, len(p.Author.Followers))
		copy(clone.Author.Followers, p.Author.Followers)
	}
	return &clone
}

// Comment は投稿に紐づくコメントを表す。
// ライフサイクルは親Postのコメント列に束縛される。
type Comment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    UserRef   `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// splitCommaJoined はカンマ区切りテキストをトリム済みトークン列に分解する。
func splitCommaJoined(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		token := strings.TrimSpace(part)
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}
