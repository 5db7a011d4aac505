package model

// BaseEstimator は全ての推定器が埋め込む基底構造体。
// 学習済み状態と学習時の次元情報を提供する。
// 埋め込まれたStateManagerの公開フィールドはgobでそのまま永続化される。
type BaseEstimator struct {
	StateManager
}
