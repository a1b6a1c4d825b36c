// Package model はドメインモデルを定義する。
package model

// TagAll は「全タグ」を意味するフィルタの番兵値。
// タグ一覧の先頭に必ず置かれる。
const TagAll = "All"

// FilterState はローカル限定のフィルタ/検索状態を表す。
// 派生ビューの入力であり、リモートサービスには一切送信されない。
type FilterState struct {
	SelectedTag string // 選択中のタグ。TagAllの場合はタグで絞り込まない
	SearchQuery string // 検索クエリ。タイトル/本文への部分一致（大文字小文字を区別しない）
}

// DefaultFilter は何も絞り込まない初期フィルタ状態を返す。
func DefaultFilter() FilterState {
	return FilterState{SelectedTag: TagAll, SearchQuery: ""}
}
