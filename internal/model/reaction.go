// Package model はドメインモデルを定義する。
package model

// ReactionType はリアクションの種別を表す。
type ReactionType string

const (
	// ReactionLike は「いいね」リアクション。
	ReactionLike ReactionType = "LIKE"
	// ReactionLove は「大好き」リアクション。
	ReactionLove ReactionType = "LOVE"
)

// validReactionTypes は有効なリアクション種別のセット。
var validReactionTypes = map[ReactionType]bool{
	ReactionLike: true,
	ReactionLove: true,
}

// IsValid はリアクション種別が定義済みのものかどうかを返す。
func (t ReactionType) IsValid() bool {
	return validReactionTypes[t]
}

// Reaction はユーザーが投稿に付けたリアクションを表す。
// UIの前提として1ユーザーにつき1投稿あたり1リアクションだが、
// リモートサービスはこれを強制しない。重複の排除はストアの取り込み時に行う。
type Reaction struct {
	UserID string       `json:"userId"`
	Type   ReactionType `json:"reactionType"`
}
