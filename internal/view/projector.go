// Package view はフィードストアの内容から派生するUI向けの純粋な射影を提供する。
// 状態を一切保持せず、(投稿列, フィルタ状態, セッション) の関数として
// 状態変化のたびに呼び出し側が再計算する。インクリメンタルな差分適用は行わず、
// 常に全量の未フィルタコレクションから導出する（古いフィルタ結果の合成を防ぐ）。
package view

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hitoshi/feedsync/internal/model"
)

// Tags は全投稿のカンマ区切りタグからトリム済みトークンの和集合を返す。
// 先頭は必ず番兵値のTagAll（"All"）で、以降は初出順。
func Tags(posts []model.Post) []string {
	tags := []string{model.TagAll}
	seen := map[string]bool{model.TagAll: true}
	for i := range posts {
		for _, tag := range posts[i].TagList() {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

// Apply はフィルタ状態を投稿列に適用した部分列を返す。
// タグフィルタと検索クエリは論理ANDで合成される。
//   - SelectedTagがTagAll以外の場合、トリム済みタグ集合がそれを含む投稿のみを残す
//   - SearchQuery（トリム・小文字化済み）が非空の場合、タイトルまたは本文が
//     それを部分文字列として含む投稿のみをさらに残す（大文字小文字を区別しない）
//
// 本文はHTMLの場合があるため、検索はタグを除いたテキスト内容に対して行う。
// 入力列は変更されず、順序は保たれる。
func Apply(posts []model.Post, filter model.FilterState) []model.Post {
	query := strings.ToLower(strings.TrimSpace(filter.SearchQuery))
	byTag := filter.SelectedTag != "" && filter.SelectedTag != model.TagAll

	filtered := make([]model.Post, 0, len(posts))
	for i := range posts {
		p := &posts[i]
		if byTag && !hasTag(p, filter.SelectedTag) {
			continue
		}
		if query != "" && !matchesQuery(p, query) {
			continue
		}
		filtered = append(filtered, *p)
	}
	return filtered
}

// hasTag は投稿のトリム済みタグ集合がtagを含むかを返す。
func hasTag(p *model.Post, tag string) bool {
	for _, t := range p.TagList() {
		if t == tag {
			return true
		}
	}
	return false
}

// matchesQuery はタイトルまたは本文テキストがクエリを含むかを返す。
// queryは小文字化済みであること。
func matchesQuery(p *model.Post, query string) bool {
	if strings.Contains(strings.ToLower(p.Title), query) {
		return true
	}
	return strings.Contains(strings.ToLower(textContent(p.Content)), query)
}

// textContent はHTML文字列からタグを除いたテキスト内容を取り出す。
// プレーンテキストはそのまま返る。
func textContent(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(tokenizer.Text())
		}
	}
}

// ReactionCount は投稿の指定種別のリアクション数を返す。
func ReactionCount(p *model.Post, typ model.ReactionType) int {
	count := 0
	for _, r := range p.Reactions {
		if r.Type == typ {
			count++
		}
	}
	return count
}

// HasReacted はユーザーが投稿に指定種別のリアクションを付けているかを返す。
// 判定はユーザーIDの等価性で行う。userがnilの場合は常にfalse。
func HasReacted(p *model.Post, typ model.ReactionType, user *model.UserRef) bool {
	if user == nil {
		return false
	}
	for _, r := range p.Reactions {
		if r.UserID == user.ID && r.Type == typ {
			return true
		}
	}
	return false
}

// CommentCount は投稿のコメント数を返す。
func CommentCount(p *model.Post) int {
	return len(p.Comments)
}

// FollowerCount は投稿の著者のフォロワー数を返す。
func FollowerCount(p *model.Post) int {
	return len(p.Author.Followers)
}

// IsFollowing はユーザーが投稿の著者をフォローしているかを返す。
// userがnilの場合は常にfalse。
func IsFollowing(p *model.Post, user *model.UserRef) bool {
	if user == nil {
		return false
	}
	for _, followerID := range p.Author.Followers {
		if followerID == user.ID {
			return true
		}
	}
	return false
}
